package document

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/readaloud/internal/cache"
)

// Store remembers the last extracted document for a limited time so
// reopening the same file skips extraction.
type Store struct {
	records *cache.DocumentStore
}

// OpenStore opens the store in dir. freshness of zero means 24 hours.
func OpenStore(dir string, freshness time.Duration) (*Store, error) {
	records, err := cache.NewDocumentStore(dir, freshness)
	if err != nil {
		return nil, err
	}
	return &Store{records: records}, nil
}

// Save replaces the remembered document.
func (s *Store) Save(doc *Document) error {
	return s.records.Save(doc)
}

// Lookup returns the remembered document when it is fresh and was extracted
// from path in its current state.
func (s *Store) Lookup(path string) (*Document, bool) {
	var doc Document
	if err := s.records.Load(&doc); err != nil {
		return nil, false
	}
	if !doc.Same(path) {
		return nil, false
	}
	return &doc, true
}

// Clear forgets the remembered document.
func (s *Store) Clear() error {
	return s.records.Clear()
}

func (s *Store) Close() error { return s.records.Close() }

// Cached wraps an Extractor with a Store.
type Cached struct {
	Extractor Extractor
	Store     *Store
}

// Extract returns the remembered document for path or extracts and
// remembers it.
func (c Cached) Extract(ctx context.Context, path string) (*Document, error) {
	if doc, ok := c.Store.Lookup(path); ok {
		return doc, nil
	}
	doc, err := c.Extractor.Extract(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := c.Store.Save(doc); err != nil {
		log.Warn("Unable to remember document", "err", err)
	}
	return doc, nil
}
