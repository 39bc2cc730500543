// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package learn

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AleutianAI/patternforge/services/pattern_engine/ast"
	"github.com/AleutianAI/patternforge/services/pattern_engine/store"
)

func documentedFunction(name string) *ast.DefinitionFact {
	return &ast.DefinitionFact{
		Kind:               ast.FactKindFunction,
		Name:               name,
		ParamCount:         2,
		ParamNames:         []string{"value", "count"},
		HasDoc:             true,
		HasTypeAnnotations: true,
		StartLine:          1,
		EndLine:            6,
		LineCount:          6,
		DecisionPoints:     2,
		Source:             "def " + name + "(value, count):\n    return value * count\n",
	}
}

func setFor(path string, facts ...*ast.DefinitionFact) *ast.FactSet {
	return &ast.FactSet{
		FilePath:   path,
		Language:   "python",
		TotalLines: 40,
		Facts:      facts,
	}
}

func newTestLearner(t *testing.T, opts ...Option) *Learner {
	t.Helper()
	l, err := NewLearner(opts...)
	if err != nil {
		t.Fatalf("NewLearner failed: %v", err)
	}
	return l
}

func TestLearn_DocumentedFunctionBecomesPattern(t *testing.T) {
	l := newTestLearner(t)

	analysis, err := l.Learn(context.Background(), setFor("a.py", documentedFunction("scale")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if analysis.PatternsLearned != 1 {
		t.Fatalf("expected 1 pattern learned, got %d", analysis.PatternsLearned)
	}

	patterns := l.GetPatterns(CategoryFunction, "python")
	if len(patterns) != 1 {
		t.Fatalf("expected 1 stored pattern, got %d", len(patterns))
	}
	p := patterns[0]
	if p.PatternType != TypeWellDocumentedFunction {
		t.Errorf("expected %s, got %s", TypeWellDocumentedFunction, p.PatternType)
	}
	// (2 params + doc + hints) / 5
	if p.Confidence != 0.8 {
		t.Errorf("expected confidence 0.8, got %v", p.Confidence)
	}
	if !strings.Contains(p.Template, "{{function_name}}") {
		t.Errorf("expected parameterized template, got %q", p.Template)
	}
	if !strings.Contains(p.Template, "{{param}}") {
		t.Errorf("expected param placeholder, got %q", p.Template)
	}
	if !strings.HasPrefix(p.ID, "function_"+TypeWellDocumentedFunction+"_") {
		t.Errorf("unexpected id format: %s", p.ID)
	}
	if len(p.Fingerprint) != 64 {
		t.Errorf("expected sha256 hex fingerprint, got %q", p.Fingerprint)
	}
}

func TestLearn_ReobservationBumpsUsage(t *testing.T) {
	l := newTestLearner(t)
	ctx := context.Background()

	if _, err := l.Learn(ctx, setFor("a.py", documentedFunction("scale"))); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Learn(ctx, setFor("b.py", documentedFunction("scale"))); err != nil {
		t.Fatal(err)
	}

	patterns := l.GetPatterns("", "")
	if len(patterns) != 1 {
		t.Fatalf("expected the same pattern deduplicated, got %d", len(patterns))
	}
	if patterns[0].UsageCount != 2 {
		t.Errorf("expected usage count 2, got %d", patterns[0].UsageCount)
	}
	if len(patterns[0].SourceFiles) != 2 {
		t.Errorf("expected 2 source files, got %v", patterns[0].SourceFiles)
	}
}

func TestLearn_LowConfidenceNotLearned(t *testing.T) {
	l := newTestLearner(t)

	plain := &ast.DefinitionFact{
		Kind:      ast.FactKindFunction,
		Name:      "mystery",
		StartLine: 1,
		EndLine:   10,
		LineCount: 10,
		Source:    "def mystery():\n    pass\n",
	}
	analysis, err := l.Learn(context.Background(), setFor("a.py", plain))
	if err != nil {
		t.Fatal(err)
	}
	if analysis.PatternsLearned != 0 {
		t.Errorf("expected no patterns, got %d", analysis.PatternsLearned)
	}
	// Missing documentation is still recorded as an anti-pattern.
	if analysis.AntiPatternsFound != 1 {
		t.Errorf("expected 1 anti-pattern, got %d", analysis.AntiPatternsFound)
	}
}

func TestLearn_ClassPattern(t *testing.T) {
	l := newTestLearner(t)

	cls := &ast.DefinitionFact{
		Kind:        ast.FactKindClass,
		Name:        "Widget",
		HasDoc:      true,
		HasInit:     true,
		MethodCount: 3,
		StartLine:   1,
		EndLine:     20,
		LineCount:   20,
		Source:      "class Widget:\n    pass\n",
	}
	analysis, err := l.Learn(context.Background(), setFor("w.py", cls))
	if err != nil {
		t.Fatal(err)
	}
	if analysis.PatternsLearned != 1 {
		t.Fatalf("expected 1 pattern, got %d", analysis.PatternsLearned)
	}

	patterns := l.GetPatterns(CategoryClass, "")
	if len(patterns) != 1 {
		t.Fatalf("expected 1 class pattern, got %d", len(patterns))
	}
	if patterns[0].PatternType != TypeSimpleClass {
		t.Errorf("expected %s, got %s", TypeSimpleClass, patterns[0].PatternType)
	}
	if !strings.Contains(patterns[0].Template, "{{class_name}}") {
		t.Errorf("expected class placeholder, got %q", patterns[0].Template)
	}
}

func TestLearn_AntiPatternDeduplication(t *testing.T) {
	l := newTestLearner(t)
	ctx := context.Background()

	undoc := documentedFunction("leaky")
	undoc.HasDoc = false

	first, err := l.Learn(ctx, setFor("x.py", undoc))
	if err != nil {
		t.Fatal(err)
	}
	second, err := l.Learn(ctx, setFor("x.py", undoc))
	if err != nil {
		t.Fatal(err)
	}

	if first.AntiPatternsFound != 1 {
		t.Errorf("expected 1 anti-pattern on first pass, got %d", first.AntiPatternsFound)
	}
	if second.AntiPatternsFound != 0 {
		t.Errorf("expected repeat observation to deduplicate, got %d", second.AntiPatternsFound)
	}
	if got := len(l.GetAntiPatterns()); got != 1 {
		t.Errorf("expected 1 stored anti-pattern, got %d", got)
	}
}

func TestLearn_LoopAndErrorHandlingAntiPatterns(t *testing.T) {
	l := newTestLearner(t)

	fn := documentedFunction("risky")
	fn.HasBareExcept = true
	loop := &ast.DefinitionFact{
		Kind:         ast.FactKindLoop,
		StartLine:    10,
		EndLine:      40,
		LineCount:    31,
		NestingDepth: 4,
	}
	analysis, err := l.Learn(context.Background(), setFor("r.py", fn, loop))
	if err != nil {
		t.Fatal(err)
	}
	// bare except + deep nesting + long loop body.
	if analysis.AntiPatternsFound != 3 {
		t.Errorf("expected 3 anti-patterns, got %d", analysis.AntiPatternsFound)
	}

	categories := make(map[string]int)
	for _, ap := range l.GetAntiPatterns() {
		categories[ap.Category]++
	}
	if categories["error_handling"] != 1 || categories["loop"] != 2 {
		t.Errorf("unexpected categories: %v", categories)
	}
}

func TestLearn_FileScore(t *testing.T) {
	l := newTestLearner(t)

	analysis, err := l.Learn(context.Background(), setFor("a.py", documentedFunction("scale")))
	if err != nil {
		t.Fatal(err)
	}
	// 50 + 10*1 - 20*0 = 60.
	if analysis.Score != 60.0 {
		t.Errorf("expected score 60, got %v", analysis.Score)
	}
}

func TestLearner_PersistsAcrossRestarts(t *testing.T) {
	dir, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	l1 := newTestLearner(t, WithStore(dir))
	if _, err := l1.Learn(context.Background(), setFor("a.py", documentedFunction("scale"))); err != nil {
		t.Fatal(err)
	}

	l2 := newTestLearner(t, WithStore(dir))
	if l2.PatternCount() != 1 {
		t.Fatalf("expected persisted pattern to reload, got %d", l2.PatternCount())
	}

	p1 := l1.GetPatterns("", "")[0]
	p2 := l2.GetPatterns("", "")[0]
	if p1.ID != p2.ID {
		t.Errorf("pattern id must be stable across restarts: %s vs %s", p1.ID, p2.ID)
	}
}

func TestLearner_ExportImport(t *testing.T) {
	l1 := newTestLearner(t)
	if _, err := l1.Learn(context.Background(), setFor("a.py", documentedFunction("scale"))); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "export.json")
	if err := l1.ExportTo(path); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	l2 := newTestLearner(t)
	added, err := l2.ImportFrom(path)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if added != 1 {
		t.Errorf("expected 1 imported pattern, got %d", added)
	}

	// Re-import is a no-op.
	added, err = l2.ImportFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if added != 0 {
		t.Errorf("expected 0 on re-import, got %d", added)
	}
}

func TestGetPatterns_SortedByUsageThenConfidence(t *testing.T) {
	l := newTestLearner(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := l.Learn(ctx, setFor("a.py", documentedFunction("popular"))); err != nil {
			t.Fatal(err)
		}
	}
	rare := documentedFunction("rare")
	rare.Source = "def rare(value, count):\n    return value + count\n"
	if _, err := l.Learn(ctx, setFor("b.py", rare)); err != nil {
		t.Fatal(err)
	}

	patterns := l.GetPatterns("", "")
	if len(patterns) != 2 {
		t.Fatalf("expected 2 patterns, got %d", len(patterns))
	}
	if patterns[0].UsageCount < patterns[1].UsageCount {
		t.Errorf("expected usage-descending order, got %d then %d",
			patterns[0].UsageCount, patterns[1].UsageCount)
	}
}
