// Package document turns PDF files into page-marked text ready for the
// sentence segmenter, either locally or through the reader service.
package document

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// DefaultMaxSize is the largest PDF accepted, matching the service limit.
const DefaultMaxSize = 10 * 1024 * 1024

var (
	// ErrNotPDF is returned for files without a .pdf extension.
	ErrNotPDF = errors.New("only PDF files are allowed")

	// ErrTooLarge is returned for files over the size limit.
	ErrTooLarge = errors.New("file size exceeds limit")

	// ErrNoText is returned when a PDF has no extractable text.
	ErrNoText = errors.New("no text found in PDF")
)

// Document is an extracted PDF.
type Document struct {
	ID        string    `json:"id"`
	PDFID     string    `json:"pdf_id,omitempty"` // server-side ID, needed for chat
	Path      string    `json:"path"`
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	ModTime   time.Time `json:"mod_time"`
	Pages     int       `json:"pages"`
	Text      string    `json:"text"`
	WordCount int       `json:"word_count"`
}

// Describe returns a one-line summary such as
// "paper.pdf · 12 pages · 1,234 words · 1.2 MB".
func (d *Document) Describe() string {
	return fmt.Sprintf("%s · %d pages · %s words · %s",
		d.Filename, d.Pages, humanize.Comma(int64(d.WordCount)), humanize.Bytes(uint64(d.Size)))
}

// Same reports whether d was extracted from the file at path in its current
// state.
func (d *Document) Same(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	return d.Path == abs && d.Size == fi.Size() && d.ModTime.Equal(fi.ModTime())
}

// Extractor produces a Document from a PDF on disk.
type Extractor interface {
	Extract(ctx context.Context, path string) (*Document, error)
}

// Validate checks the extension and size of the file at path. A maxSize of
// zero means DefaultMaxSize.
func Validate(path string, maxSize int64) (os.FileInfo, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrNotPDF)
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("unable to stat %s: %w", path, err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if fi.Size() > maxSize {
		return nil, fmt.Errorf("%s is %s: %w of %s", filepath.Base(path),
			humanize.Bytes(uint64(fi.Size())), ErrTooLarge, humanize.Bytes(uint64(maxSize)))
	}
	return fi, nil
}

// PageMarker is inserted before each page's text.
func PageMarker(page int) string {
	return fmt.Sprintf("\n\n--- Page %d ---\n\n", page)
}

// WordCount counts whitespace-separated words, page markers included.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

func newDocument(path string, fi os.FileInfo) *Document {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return &Document{
		Path:     abs,
		Filename: filepath.Base(path),
		Size:     fi.Size(),
		ModTime:  fi.ModTime(),
	}
}
