// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store provides directory-scoped JSON document persistence.
//
// Each concern of the pattern engine (learned patterns, usage history,
// evolution metrics, team repositories, ...) persists as one JSON document
// in a shared data directory. Documents are independently loadable and
// saveable; a missing document means "empty", never an error.
//
// # Durability Model
//
// Persistence is best-effort: in-memory state is authoritative for the
// lifetime of the process, and save failures are surfaced to callers so
// they can log them. Writes go through a temp file plus rename to bound
// the window in which a document is partially written.
//
// # Thread Safety
//
// Directory is safe for concurrent use. Callers serialize access to the
// data they marshal; the store only guards file-level operations.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrNotDirectory is returned when the configured data path exists but is
// not a directory.
var ErrNotDirectory = errors.New("data path is not a directory")

// Directory is a JSON document store rooted at a single data directory.
type Directory struct {
	root string
	mu   sync.Mutex
}

// Open creates (if needed) and returns a document store rooted at dir.
//
// # Inputs
//
//   - dir: Data directory path. Created with 0755 if absent.
//
// # Outputs
//
//   - *Directory: Ready-to-use store.
//   - error: Non-nil if the path cannot be created or is not a directory.
func Open(dir string) (*Directory, error) {
	info, err := os.Stat(dir)
	switch {
	case err == nil:
		if !info.IsDir() {
			return nil, fmt.Errorf("%w: %s", ErrNotDirectory, dir)
		}
	case os.IsNotExist(err):
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	default:
		return nil, fmt.Errorf("stat data directory: %w", err)
	}
	return &Directory{root: dir}, nil
}

// Root returns the data directory path.
func (d *Directory) Root() string {
	return d.root
}

// Load unmarshals the named document into v.
//
// A missing document leaves v untouched and returns nil: absence means
// "empty", not an error. Malformed documents return an error so callers
// can decide whether to start fresh.
func (d *Directory) Load(name string, v any) error {
	data, err := os.ReadFile(d.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// Save marshals v and atomically replaces the named document.
//
// The document is written to a temp file in the same directory and renamed
// into place, so readers never observe a torn write.
func (d *Directory) Save(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	tmp, err := os.CreateTemp(d.root, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, d.path(name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

// Exists reports whether the named document is present on disk.
func (d *Directory) Exists(name string) bool {
	_, err := os.Stat(d.path(name))
	return err == nil
}

func (d *Directory) path(name string) string {
	return filepath.Join(d.root, name)
}
