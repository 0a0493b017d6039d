package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
)

// Upload is the upload endpoint response.
type Upload struct {
	PDFID               string `json:"pdf_id"`
	Filename            string `json:"filename"`
	Size                int64  `json:"size"`
	Pages               int    `json:"pages"`
	ExtractedTextLength int    `json:"extracted_text_length"`
}

// Text is the text endpoint response.
type Text struct {
	Text      string `json:"text"`
	Pages     int    `json:"pages"`
	WordCount int    `json:"word_count"`
}

// UploadPDF sends a PDF as multipart form field "file" and returns the
// server's document ID.
func (c *Client) UploadPDF(ctx context.Context, filename string, r io.Reader) (*Upload, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("failed to read pdf: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish form: %w", err)
	}

	var resp Upload
	if err := c.do(ctx, http.MethodPost, "/api/pdf/upload", mw.FormDataContentType(), &buf, &resp); err != nil {
		return nil, err
	}
	if resp.PDFID == "" {
		return nil, fmt.Errorf("upload: %w: missing pdf_id", ErrMalformedResponse)
	}
	return &resp, nil
}

// PDFText returns the server-side extracted text for id.
func (c *Client) PDFText(ctx context.Context, id string) (*Text, error) {
	var resp Text
	if err := c.getJSON(ctx, "/api/pdf/text/"+url.PathEscape(id), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
