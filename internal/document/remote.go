package document

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/readaloud/internal/api"
)

// Service is the part of the reader service the remote extractor needs.
type Service interface {
	UploadPDF(ctx context.Context, filename string, r io.Reader) (*api.Upload, error)
	PDFText(ctx context.Context, id string) (*api.Text, error)
}

// Remote uploads the PDF and lets the service extract it.
type Remote struct {
	Service Service
	MaxSize int64
}

// Extract uploads path and fetches the server-side text.
func (r Remote) Extract(ctx context.Context, path string) (*Document, error) {
	fi, err := Validate(path, r.MaxSize)
	if err != nil {
		return nil, err
	}
	id, err := upload(ctx, r.Service, path)
	if err != nil {
		return nil, err
	}

	txt, err := r.Service.PDFText(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch text for %s: %w", fi.Name(), err)
	}

	doc := newDocument(path, fi)
	doc.ID = id
	doc.PDFID = id
	doc.Pages = txt.Pages
	doc.Text = txt.Text
	doc.WordCount = txt.WordCount
	if doc.WordCount == 0 {
		doc.WordCount = WordCount(doc.Text)
	}
	return doc, nil
}

// Register uploads a locally extracted document so the service can answer
// questions about it. Documents that already have a server ID are left
// alone.
func Register(ctx context.Context, svc Service, doc *Document) error {
	if doc.PDFID != "" {
		return nil
	}
	id, err := upload(ctx, svc, doc.Path)
	if err != nil {
		return err
	}
	doc.PDFID = id
	return nil
}

func upload(ctx context.Context, svc Service, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("unable to open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	up, err := svc.UploadPDF(ctx, filepath.Base(path), f)
	if err != nil {
		return "", fmt.Errorf("unable to upload %s: %w", filepath.Base(path), err)
	}
	log.Debug("Uploaded PDF", "file", up.Filename, "pdf_id", up.PDFID, "pages", up.Pages)
	return up.PDFID, nil
}
