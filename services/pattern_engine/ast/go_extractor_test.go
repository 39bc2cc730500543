// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"errors"
	"testing"
)

const goSample = `// Package widgets renders widgets.
package widgets

import (
	"fmt"
	"strings"
)

// Widget is a renderable thing.
type Widget struct {
	Name string
	Size int
}

// Render returns the widget's display form.
func (w *Widget) Render() string {
	return strings.ToUpper(w.Name)
}

func (w *Widget) resize(n int) {
	if n > 0 && n < 100 {
		w.Size = n
	}
}

func helper(a, b int, label string) string {
	out := make([]string, 0, b)
	for i := a; i < b; i++ {
		out = append(out, label)
	}
	return fmt.Sprint(out)
}
`

func TestGoExtract_StructAndMethods(t *testing.T) {
	e := NewGoExtractor()
	fs, err := e.Extract(context.Background(), []byte(goSample), "widgets.go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fs.SyntaxErr != nil {
		t.Fatalf("unexpected syntax error: %+v", fs.SyntaxErr)
	}
	if fs.ImportCount != 2 {
		t.Errorf("expected 2 imports, got %d", fs.ImportCount)
	}

	widget := findFact(t, fs, FactKindClass, "Widget")
	if widget.MethodCount != 2 {
		t.Errorf("expected 2 methods, got %d", widget.MethodCount)
	}
	if widget.FieldCount != 2 {
		t.Errorf("expected 2 fields, got %d", widget.FieldCount)
	}
	if !widget.HasDoc {
		t.Error("expected doc comment on Widget")
	}
	if !widget.HasTypeAnnotations {
		t.Error("go facts must always report type annotations")
	}
}

func TestGoExtract_FunctionFacts(t *testing.T) {
	e := NewGoExtractor()
	fs, err := e.Extract(context.Background(), []byte(goSample), "widgets.go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	render := findFact(t, fs, FactKindFunction, "Render")
	if !render.HasDoc {
		t.Error("expected doc comment on Render")
	}
	if render.DecisionPoints != 1 {
		t.Errorf("expected complexity 1, got %d", render.DecisionPoints)
	}

	resize := findFact(t, fs, FactKindFunction, "resize")
	if resize.HasDoc {
		t.Error("expected no doc comment on resize")
	}
	// 1 base + if + && = 3.
	if resize.DecisionPoints != 3 {
		t.Errorf("expected complexity 3, got %d", resize.DecisionPoints)
	}

	helper := findFact(t, fs, FactKindFunction, "helper")
	if helper.ParamCount != 3 {
		t.Errorf("expected 3 params, got %d", helper.ParamCount)
	}
	if len(helper.ParamNames) != 3 {
		t.Errorf("expected 3 param names, got %v", helper.ParamNames)
	}
}

func TestGoExtract_LoopFacts(t *testing.T) {
	e := NewGoExtractor()
	fs, err := e.Extract(context.Background(), []byte(goSample), "widgets.go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loops := fs.FactsOfKind(FactKindLoop)
	if len(loops) != 1 {
		t.Fatalf("expected 1 loop fact, got %d", len(loops))
	}
	if !loops[0].SingleAppendBody {
		t.Error("expected single-append body detection")
	}
}

func TestGoExtract_SyntaxError(t *testing.T) {
	e := NewGoExtractor()
	fs, err := e.Extract(context.Background(), []byte("package x\n\nfunc broken( {\n"), "broken.go")
	if err != nil {
		t.Fatalf("syntax errors must not be hard failures, got: %v", err)
	}
	if fs.SyntaxErr == nil {
		t.Fatal("expected syntax error info")
	}
	if len(fs.Facts) != 0 {
		t.Errorf("expected no facts, got %d", len(fs.Facts))
	}
}

func TestGoExtract_RejectsOversizedFile(t *testing.T) {
	e := NewGoExtractor(WithGoMaxFileSize(8))
	_, err := e.Extract(context.Background(), []byte(goSample), "big.go")
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
}

func TestRegistry_Lookup(t *testing.T) {
	r := DefaultRegistry()

	if _, err := r.ForLanguage("python"); err != nil {
		t.Errorf("expected python extractor: %v", err)
	}
	if _, err := r.ForLanguage("go"); err != nil {
		t.Errorf("expected go extractor: %v", err)
	}
	if _, err := r.ForLanguage("cobol"); !errors.Is(err, ErrUnsupportedLanguage) {
		t.Errorf("expected ErrUnsupportedLanguage, got %v", err)
	}
	if len(r.Languages()) != 2 {
		t.Errorf("expected 2 languages, got %v", r.Languages())
	}
}
