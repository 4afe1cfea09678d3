// Package store persists the dashboard's JSON documents under a single
// workspace directory: the migration status snapshot, historical transfer
// metrics, resource predictions, and the preflight configuration.
//
// Reads are forgiving: a document that is missing or unreadable yields an
// empty value so the API can degrade instead of failing. Writes replace the
// whole document atomically so concurrent readers never observe a torn
// record.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Well-known document paths relative to the workspace root. The layout is
// shared with the migration tooling that produces the historical and
// prediction documents.
const (
	StatusDocument      = "status/current.json"
	HistoricalDocument  = "transfer_metrics/historical.json"
	PredictionsDocument = "predictions/resources/prediction.json"
	ConfigDocument      = "config/preflight.json"
)

// DocumentStore reads and writes opaque JSON documents under a base
// directory.
type DocumentStore struct {
	root string
}

// NewDocumentStore creates a DocumentStore rooted at root.
func NewDocumentStore(root string) *DocumentStore {
	return &DocumentStore{root: root}
}

// Load reads the named document as a generic JSON object. A missing or
// undecodable document yields an empty object; the error is returned for
// logging only and the map is always usable.
func (s *DocumentStore) Load(name string) (map[string]any, error) {
	doc := make(map[string]any)

	err := s.LoadInto(name, &doc)
	if err != nil {
		return make(map[string]any), err
	}

	return doc, nil
}

// LoadInto reads the named document into v. A missing document leaves v
// untouched and returns no error.
func (s *DocumentStore) LoadInto(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.root, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("read document %s: %w", name, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode document %s: %w", name, err)
	}

	return nil
}

// Save writes doc as the named document, replacing any previous content in
// one atomic step.
func (s *DocumentStore) Save(name string, doc any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode document %s: %w", name, err)
	}

	if err := writeFileAtomic(filepath.Join(s.root, name), data); err != nil {
		return fmt.Errorf("write document %s: %w", name, err)
	}

	return nil
}

// writeFileAtomic writes data to a temporary file in the target directory
// and renames it into place, creating parent directories as needed. Rename
// within a directory is atomic, so readers see either the old or the new
// content in full.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return err
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())

		return err
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())

		return err
	}

	return nil
}
