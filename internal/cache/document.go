package cache

import (
	"encoding/json"
	"fmt"
	"time"
)

// DocumentKey is the single namespaced key the last loaded document lives under.
const DocumentKey = "readaloud:document"

// DefaultFreshness is how long a stored document is served without re-extraction.
const DefaultFreshness = 24 * time.Hour

// DocumentStore keeps one document record on disk. Saving replaces the
// previous record; loading fails with ErrStale once the record is older than
// the freshness window.
type DocumentStore struct {
	disk      *DiskCache
	freshness time.Duration
	now       func() time.Time
}

// NewDocumentStore opens a store in dir.
func NewDocumentStore(dir string, freshness time.Duration) (*DocumentStore, error) {
	disk, err := NewDiskCache(dir, 64*1024*1024, 3)
	if err != nil {
		return nil, err
	}
	if freshness <= 0 {
		freshness = DefaultFreshness
	}
	return &DocumentStore{disk: disk, freshness: freshness, now: time.Now}, nil
}

// Save serializes v under DocumentKey.
func (s *DocumentStore) Save(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if err := s.disk.Put(DocumentKey, b); err != nil {
		return fmt.Errorf("store document: %w", err)
	}
	return s.disk.Flush()
}

// Load decodes the stored record into v. It returns ErrCacheMiss when nothing
// is stored and ErrStale when the record has expired; a stale record is removed.
func (s *DocumentStore) Load(v any) error {
	b, stored, ok := s.disk.GetStored(DocumentKey)
	if !ok {
		return ErrCacheMiss
	}
	if s.now().Sub(stored) > s.freshness {
		_ = s.Clear()
		return ErrStale
	}
	if err := json.Unmarshal(b, v); err != nil {
		_ = s.Clear()
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// Clear removes the stored record.
func (s *DocumentStore) Clear() error {
	if err := s.disk.Delete(DocumentKey); err != nil {
		return err
	}
	return s.disk.Flush()
}

// Close persists the index.
func (s *DocumentStore) Close() error {
	return s.disk.Close()
}
