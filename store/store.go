// Package store persists datasets and the flat file index as a single
// JSON document on disk. The document is read in full at the start of a
// request and written back in full on commit; a single-writer mutex
// serializes commits so concurrent requests cannot lose each other's
// appends.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hazyhaar/dsingest/imgmeta"
)

// ErrPersistence wraps any failure to read or write the document file.
var ErrPersistence = errors.New("store: persistence failure")

// Options records the preprocessing choices a dataset was created with.
type Options struct {
	Resize      bool   `json:"resize"`
	Compress    bool   `json:"compress"`
	Normalize   bool   `json:"normalize"`
	Crop        bool   `json:"crop"`
	Deduplicate bool   `json:"deduplicate"`
	Format      string `json:"format"`
}

// FileRef is a lightweight pointer to one processed or raw-stored file.
type FileRef struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// Dataset is one successful ingestion batch. Immutable once committed.
type Dataset struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	DatasetType string    `json:"datasetType"`
	Version     string    `json:"version"`
	Files       []FileRef `json:"files"`
	Options     Options   `json:"options"`
	CreatedAt   time.Time `json:"createdAt"`
}

// IndexEntry is one row of the flat file index, the dedup universe for
// all future uploads. Hash is nil when dedup was not requested for the
// batch that produced the entry; a nil hash never matches anything.
type IndexEntry struct {
	Filename  string            `json:"filename"`
	URL       string            `json:"url"`
	Hash      *string           `json:"hash"`
	Metadata  *imgmeta.Metadata `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Document is the full persisted state: every dataset plus the file
// index, in commit order.
type Document struct {
	Datasets []Dataset    `json:"datasets"`
	Files    []IndexEntry `json:"files"`
}

// Store owns the JSON document at Path. All mutation goes through
// Commit, which holds mu for the whole read-modify-write cycle.
type Store struct {
	path string

	mu sync.Mutex
}

// Open prepares a store backed by the document at path, creating the
// parent directory and an empty document if none exists yet.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: mkdir: %v", ErrPersistence, err)
	}
	s := &Store{path: path}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := s.write(&Document{Datasets: []Dataset{}, Files: []IndexEntry{}}); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("%w: stat: %v", ErrPersistence, err)
	}
	return s, nil
}

// Path returns the location of the backing document file.
func (s *Store) Path() string { return s.path }

// Snapshot reads the full document. Callers get their own copy; dedup
// decisions made against it see the state as of the read, not of later
// concurrent commits.
func (s *Store) Snapshot() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: read: %v", ErrPersistence, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrPersistence, err)
	}
	if doc.Datasets == nil {
		doc.Datasets = []Dataset{}
	}
	if doc.Files == nil {
		doc.Files = []IndexEntry{}
	}
	return &doc, nil
}

// Commit appends one dataset and its index entries, re-reading the
// document under the writer lock so appends from other requests are
// never discarded. Nothing is persisted if the write fails.
func (s *Store) Commit(ds Dataset, entries []IndexEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.Snapshot()
	if err != nil {
		return err
	}
	doc.Datasets = append(doc.Datasets, ds)
	doc.Files = append(doc.Files, entries...)
	return s.write(doc)
}

// Datasets returns every committed dataset in commit order.
func (s *Store) Datasets() ([]Dataset, error) {
	doc, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	return doc.Datasets, nil
}

// KnownHashes returns the set of non-nil fingerprints in the file
// index. Entries committed without dedup carry nil hashes and are
// absent from the set.
func (s *Store) KnownHashes() (map[string]struct{}, error) {
	doc, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	hashes := make(map[string]struct{}, len(doc.Files))
	for _, f := range doc.Files {
		if f.Hash != nil {
			hashes[*f.Hash] = struct{}{}
		}
	}
	return hashes, nil
}

// write replaces the document atomically via a sibling temp file so a
// crash mid-write never leaves a truncated document behind.
func (s *Store) write(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrPersistence, err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: write: %v", ErrPersistence, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("%w: rename: %v", ErrPersistence, err)
	}
	return nil
}
