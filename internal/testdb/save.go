package testdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Marshal renders the database document with two-space indentation.
func (db *Database) Marshal() ([]byte, error) {
	suites := db.Suites
	if suites == nil {
		suites = []*Suite{}
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(suites); err != nil {
		return nil, fmt.Errorf("failed to encode test database: %w", err)
	}
	return buf.Bytes(), nil
}

// Save writes the whole database to path. The document is written to a
// temporary file in the same directory and renamed over path.
func (db *Database) Save(path string) error {
	data, err := db.Marshal()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary database file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write test database: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write test database: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("failed to write test database: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace test database: %w", err)
	}

	db.dirty = false
	return nil
}
