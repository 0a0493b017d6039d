package ui

import (
	"strings"

	"github.com/muesli/reflow/wordwrap"
)

// span is a sentence's byte range in the document text.
type span struct{ start, end int }

// sentenceSpans locates each sentence in text. Segmentation only trims the
// whitespace between sentences, so each one is found by scanning forward
// from the end of the previous match. A sentence that cannot be found gets
// an empty span at the scan position.
func sentenceSpans(text string, sentences []string) []span {
	spans := make([]span, len(sentences))
	pos := 0
	for i, s := range sentences {
		j := strings.Index(text[pos:], s)
		if j < 0 {
			spans[i] = span{pos, pos}
			continue
		}
		spans[i] = span{pos + j, pos + j + len(s)}
		pos = spans[i].end
	}
	return spans
}

// renderText wraps text to width with the sentence at index current
// highlighted. It also returns the wrapped line on which that sentence
// starts, or 0 when nothing is highlighted.
func renderText(text string, spans []span, current, width int) (string, int) {
	var (
		b    strings.Builder
		pos  int
		line int
	)
	if current >= 0 && current < len(spans) && spans[current].end > spans[current].start {
		sp := spans[current]
		b.WriteString(styleMarkers(text[:sp.start]))
		for i, l := range strings.Split(text[sp.start:sp.end], "\n") {
			if i > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(sentenceStyle.Render(l))
		}
		pos = sp.end
		line = strings.Count(wrap(text[:sp.start], width), "\n")
	}
	b.WriteString(styleMarkers(text[pos:]))
	return wrap(b.String(), width), line
}

// styleMarkers dims the page marker lines inserted during extraction.
func styleMarkers(s string) string {
	if !strings.Contains(s, "--- Page ") {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if isPageMarker(l) {
			lines[i] = pageMarkerStyle.Render(l)
		}
	}
	return strings.Join(lines, "\n")
}

func isPageMarker(line string) bool {
	line = strings.TrimSpace(line)
	return strings.HasPrefix(line, "--- Page ") && strings.HasSuffix(line, " ---")
}

func wrap(s string, width int) string {
	if width <= 0 {
		return s
	}
	return wordwrap.String(s, width)
}
