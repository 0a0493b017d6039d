package ui

import (
	"strings"
	"testing"

	"github.com/dgnsrekt/readaloud/internal/sentence"
)

func TestSentenceSpans(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"plain", "One sentence. Another one! A third?"},
		{"page markers", "\n\n--- Page 1 ---\n\nHello there. How are you?\n\n--- Page 2 ---\n\nFine."},
		{"repeated", "Yes. Yes. Yes."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sentences := sentence.Segment(tt.text)
			spans := sentenceSpans(tt.text, sentences)
			if len(spans) != len(sentences) {
				t.Fatalf("got %d spans for %d sentences", len(spans), len(sentences))
			}
			prev := 0
			for i, sp := range spans {
				if got := tt.text[sp.start:sp.end]; got != sentences[i] {
					t.Errorf("span %d = %q, want %q", i, got, sentences[i])
				}
				if sp.start < prev {
					t.Errorf("span %d starts at %d before previous end %d", i, sp.start, prev)
				}
				prev = sp.end
			}
		})
	}
}

func TestSentenceSpansMissing(t *testing.T) {
	spans := sentenceSpans("Alpha. Beta.", []string{"Alpha.", "Gamma.", "Beta."})
	want := []span{{0, 6}, {6, 6}, {7, 12}}
	for i := range want {
		if spans[i] != want[i] {
			t.Errorf("span %d = %v, want %v", i, spans[i], want[i])
		}
	}
}

func TestRenderTextLine(t *testing.T) {
	text := "aaa bbb ccc. ddd eee."
	spans := sentenceSpans(text, []string{"aaa bbb ccc.", "ddd eee."})

	tests := []struct {
		current  int
		wantLine int
	}{
		{current: -1, wantLine: 0},
		{current: 0, wantLine: 0},
		{current: 1, wantLine: 1},
	}
	for _, tt := range tests {
		out, line := renderText(text, spans, tt.current, 8)
		if line != tt.wantLine {
			t.Errorf("current %d: line = %d, want %d", tt.current, line, tt.wantLine)
		}
		if !strings.Contains(out, "ddd") || !strings.Contains(out, "aaa") {
			t.Errorf("current %d: output lost text: %q", tt.current, out)
		}
	}
}

func TestIsPageMarker(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"--- Page 1 ---", true},
		{"  --- Page 12 ---  ", true},
		{"--- Page 1", false},
		{"Page 1 ---", false},
		{"---", false},
		{"See --- Page 3 --- for details", false},
	}
	for _, tt := range tests {
		if got := isPageMarker(tt.line); got != tt.want {
			t.Errorf("isPageMarker(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}
