package sentence

import (
	"reflect"
	"strings"
	"testing"
	"unicode"
)

func TestSegment(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "three sentences",
			text: "Hello world. How are you? Great!",
			want: []string{"Hello world.", "How are you?", "Great!"},
		},
		{
			name: "empty",
			text: "",
			want: []string{},
		},
		{
			name: "whitespace only",
			text: " \n\t  ",
			want: []string{},
		},
		{
			name: "no terminator",
			text: "  just a fragment  ",
			want: []string{"just a fragment"},
		},
		{
			name: "terminator without trailing space does not split",
			text: "Pi is 3.14 roughly. Done.",
			want: []string{"Pi is 3.14 roughly.", "Done."},
		},
		{
			name: "newlines and page markers",
			text: "\n\n--- Page 1 ---\n\nFirst line.\nSecond line!\n\n",
			want: []string{"--- Page 1 ---\n\nFirst line.", "Second line!"},
		},
		{
			name: "repeated terminators",
			text: "Really?! Yes... ok",
			want: []string{"Really?!", "Yes...", "ok"},
		},
		{
			name: "unicode whitespace",
			text: "One.\u00a0Two.\u2003Three",
			want: []string{"One.", "Two.", "Three"},
		},
		{
			name: "trailing terminator",
			text: "End.",
			want: []string{"End."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Segment(tt.text)
			if got == nil {
				t.Fatal("Segment returned nil slice")
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Segment(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestSegmentPreservesNonWhitespace(t *testing.T) {
	inputs := []string{
		"Hello world. How are you? Great!",
		"Mr. Smith went to Washington. He arrived at 3 p.m. sharp!",
		"\n\n--- Page 1 ---\n\nIntro text.\n\n--- Page 2 ---\n\nMore?  Yes.",
		"no punctuation at all",
		"?!. . . ?",
		"Ünïcödé sentences. 日本語の文。 Another one!",
	}

	strip := func(s string) string {
		return strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) {
				return -1
			}
			return r
		}, s)
	}

	for _, in := range inputs {
		got := Segment(in)
		joined := strings.Join(got, " ")
		if strip(joined) != strip(in) {
			t.Errorf("non-whitespace not preserved for %q: got %q", in, joined)
		}
		for i, s := range got {
			if s == "" || strings.TrimSpace(s) != s {
				t.Errorf("sentence %d of %q is not trimmed/non-empty: %q", i, in, s)
			}
		}
	}
}

func TestCount(t *testing.T) {
	if n := Count("A. B. C."); n != 3 {
		t.Errorf("Count() = %d, want 3", n)
	}
	if n := Count("   "); n != 0 {
		t.Errorf("Count() = %d, want 0", n)
	}
}

func BenchmarkSegment(b *testing.B) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. Does it? It does! ", 500)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Segment(text)
	}
}
