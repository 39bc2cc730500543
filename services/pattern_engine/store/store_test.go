// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"os"
	"path/filepath"
	"testing"
)

type testDoc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestOpen_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")

	d, err := Open(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Root() != dir {
		t.Errorf("expected root %q, got %q", dir, d.Root())
	}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("expected directory to exist, stat err: %v", err)
	}
}

func TestOpen_RejectsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(path); err == nil {
		t.Fatal("expected error for non-directory path")
	}
}

func TestLoad_MissingDocumentMeansEmpty(t *testing.T) {
	d, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	var doc testDoc
	if err := d.Load("absent.json", &doc); err != nil {
		t.Fatalf("missing document should not error, got: %v", err)
	}
	if doc.Name != "" || doc.Count != 0 {
		t.Errorf("expected zero value, got %+v", doc)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	d, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	in := testDoc{Name: "learned_patterns", Count: 7}
	if err := d.Save("doc.json", in); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if !d.Exists("doc.json") {
		t.Error("expected document to exist after save")
	}

	var out testDoc
	if err := d.Load("doc.json", &out); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if out != in {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestSave_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	d, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Save("doc.json", testDoc{Name: "a"}); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected exactly one file after save, got %d", len(entries))
	}
}

func TestLoad_MalformedDocumentErrors(t *testing.T) {
	dir := t.TempDir()
	d, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	var doc testDoc
	if err := d.Load("bad.json", &doc); err == nil {
		t.Fatal("expected error for malformed document")
	}
}
