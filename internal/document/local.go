package document

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"golang.org/x/text/unicode/norm"
)

// Local extracts text in-process.
type Local struct {
	MaxSize int64
}

// Extract reads every page of the PDF at path.
func (l Local) Extract(ctx context.Context, path string) (*Document, error) {
	fi, err := Validate(path, l.MaxSize)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", path, err)
	}

	pages, err := extractPages(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("unable to extract %s: %w", fi.Name(), err)
	}

	var b strings.Builder
	for i, text := range pages {
		b.WriteString(PageMarker(i + 1))
		b.WriteString(text)
	}

	if strings.TrimSpace(strings.Join(pages, "")) == "" {
		return nil, fmt.Errorf("%s: %w", fi.Name(), ErrNoText)
	}

	doc := newDocument(path, fi)
	doc.ID = uuid.NewString()
	doc.Pages = len(pages)
	doc.Text = b.String()
	doc.WordCount = WordCount(doc.Text)

	log.Debug("Extracted PDF", "file", doc.Filename, "pages", doc.Pages, "words", doc.WordCount)
	return doc, nil
}

// extractPages returns the NFC-normalized plain text of each page. The pdf
// package panics on some malformed files; that is reported as an error.
func extractPages(ctx context.Context, data []byte) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	n := r.NumPage()
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, norm.NFC.String(text))
	}
	return pages, nil
}
