// Package sentence splits extracted document text into the sentence units
// that drive playback.
package sentence

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Segment splits text into an ordered list of non-empty, trimmed sentences.
//
// A sentence ends at '.', '!' or '?' when the terminator is immediately
// followed by whitespace. The whitespace run at the boundary belongs to
// neither sentence. Terminators that are not followed by whitespace (such as
// "3.14" or "e.g.x") do not split. Empty and whitespace-only input yields an
// empty, non-nil slice.
func Segment(text string) []string {
	sentences := make([]string, 0, strings.Count(text, ". ")+1)

	start := 0
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size

		if !isTerminator(r) || i >= len(text) {
			continue
		}

		next, _ := utf8.DecodeRuneInString(text[i:])
		if !unicode.IsSpace(next) {
			continue
		}

		sentences = appendTrimmed(sentences, text[start:i])

		// Consume the whole whitespace run.
		for i < len(text) {
			r, size := utf8.DecodeRuneInString(text[i:])
			if !unicode.IsSpace(r) {
				break
			}
			i += size
		}
		start = i
	}

	return appendTrimmed(sentences, text[start:])
}

// Count returns the number of sentences Segment would produce.
func Count(text string) int {
	return len(Segment(text))
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func appendTrimmed(dst []string, s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return dst
	}
	return append(dst, s)
}
