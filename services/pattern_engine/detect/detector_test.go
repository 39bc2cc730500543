// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package detect

import (
	"context"
	"math"
	"testing"

	"github.com/AleutianAI/patternforge/services/pattern_engine/ast"
)

func cleanFunction(name string) *ast.DefinitionFact {
	return &ast.DefinitionFact{
		Kind:               ast.FactKindFunction,
		Name:               name,
		ParamCount:         2,
		HasDoc:             true,
		HasTypeAnnotations: true,
		StartLine:          1,
		EndLine:            5,
		LineCount:          5,
		DecisionPoints:     2,
	}
}

func factSet(totalLines int, facts ...*ast.DefinitionFact) *ast.FactSet {
	return &ast.FactSet{
		FilePath:   "test.py",
		Language:   "python",
		TotalLines: totalLines,
		Facts:      facts,
	}
}

func TestAnalyze_CleanFileScoresExactly100(t *testing.T) {
	d := NewDetector()
	report := d.Analyze(context.Background(), factSet(40, cleanFunction("tidy")))

	if len(report.Detections) != 0 {
		t.Fatalf("expected no detections, got %+v", report.Detections)
	}
	if report.QualityScore != 100.0 {
		t.Errorf("clean file must score exactly 100, got %v", report.QualityScore)
	}
	if report.MaintainabilityScore != 100.0 {
		t.Errorf("expected maintainability 100, got %v", report.MaintainabilityScore)
	}
}

func TestAnalyze_ProblemFunction(t *testing.T) {
	bad := &ast.DefinitionFact{
		Kind:               ast.FactKindFunction,
		Name:               "do_everything",
		ParamCount:         9,
		HasDoc:             false,
		HasTypeAnnotations: true,
		StartLine:          1,
		EndLine:            30,
		LineCount:          30,
		DecisionPoints:     20,
		Source:             "def do_everything(a, b, c, d, e, f, g, h, i):",
	}
	set := factSet(30, bad)

	d := NewDetector()
	report := d.Analyze(context.Background(), set)

	want := map[string]bool{
		"too_many_parameters": false,
		"missing_docstring":   false,
		"high_complexity":     false,
	}
	for _, det := range report.Detections {
		if _, ok := want[det.RuleID]; ok {
			want[det.RuleID] = true
		}
	}
	for id, fired := range want {
		if !fired {
			t.Errorf("expected rule %s to fire", id)
		}
	}

	// 100 - (5 medium + 2 low + 10 high) = 83, scaled by the size factor.
	expected := 83.0 * (1 - (30.0/1000.0)*0.1)
	if math.Abs(report.QualityScore-expected) > 1e-9 {
		t.Errorf("expected quality %v, got %v", expected, report.QualityScore)
	}

	// missing_docstring and high_complexity match maintainability markers.
	if report.MaintainabilityScore != 90.0 {
		t.Errorf("expected maintainability 90, got %v", report.MaintainabilityScore)
	}
	if report.ComplexityScore != 20 {
		t.Errorf("expected complexity score 20, got %d", report.ComplexityScore)
	}
}

func TestAnalyze_DeduplicatesDetections(t *testing.T) {
	// Two identical facts on the same line produce the same detection key.
	dup := func() *ast.DefinitionFact {
		f := cleanFunction("dup")
		f.HasDoc = false
		f.Source = "def dup():"
		return f
	}
	set := factSet(10, dup(), dup())

	d := NewDetector()
	report := d.Analyze(context.Background(), set)

	count := 0
	for _, det := range report.Detections {
		if det.RuleID == "missing_docstring" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected 1 deduplicated detection, got %d", count)
	}
}

func TestAnalyze_GodClass(t *testing.T) {
	cls := &ast.DefinitionFact{
		Kind:        ast.FactKindClass,
		Name:        "Everything",
		HasDoc:      true,
		MethodCount: 25,
		StartLine:   1,
		EndLine:     200,
		LineCount:   200,
	}
	set := factSet(200, cls)

	d := NewDetector()
	report := d.Analyze(context.Background(), set)

	found := false
	for _, det := range report.Detections {
		if det.RuleID == "god_class" {
			found = true
			if det.Severity != SeverityHigh {
				t.Errorf("expected high severity, got %s", det.Severity)
			}
		}
	}
	if !found {
		t.Error("expected god_class to fire for 25 methods")
	}
}

func TestAnalyze_ModuleRules(t *testing.T) {
	set := factSet(20, &ast.DefinitionFact{
		Kind: ast.FactKindModule,
		Name: "__module__",
	})
	set.ImportAfterCodeLine = 12

	d := NewDetector()
	report := d.Analyze(context.Background(), set)

	found := false
	for _, det := range report.Detections {
		if det.RuleID == "imports_not_at_top" {
			found = true
			if det.Line != 12 {
				t.Errorf("expected line 12, got %d", det.Line)
			}
			if !det.AutoFixable {
				t.Error("expected imports_not_at_top to be auto-fixable")
			}
		}
	}
	if !found {
		t.Error("expected imports_not_at_top to fire")
	}
	if report.AutoFixableCount == 0 {
		t.Error("expected auto-fixable count > 0")
	}
}

type panickingRule struct{}

func (panickingRule) ID() string         { return "panicking_rule" }
func (panickingRule) Kind() ast.FactKind { return ast.FactKindFunction }
func (panickingRule) Severity() Severity { return SeverityHigh }
func (panickingRule) Category() Category { return CategoryDesign }
func (panickingRule) Check(*ast.DefinitionFact, *ast.FactSet) []Detection {
	panic("boom")
}

func TestAnalyze_RecoversFromPanickingRule(t *testing.T) {
	fn := cleanFunction("steady")
	fn.HasDoc = false
	set := factSet(10, fn)

	d := NewDetector()
	d.RegisterRule(panickingRule{})

	report := d.Analyze(context.Background(), set)

	// The panicking rule is skipped, remaining rules still run.
	found := false
	for _, det := range report.Detections {
		if det.RuleID == "panicking_rule" {
			t.Error("panicking rule must not produce detections")
		}
		if det.RuleID == "missing_docstring" {
			found = true
		}
	}
	if !found {
		t.Error("expected other rules to run despite the panic")
	}
}

func TestAnalyze_SeverityAndCategoryCounts(t *testing.T) {
	bad := cleanFunction("bad")
	bad.HasDoc = false
	bad.HasMutableDefaults = true
	set := factSet(10, bad)

	d := NewDetector()
	report := d.Analyze(context.Background(), set)

	if report.BySeverity[SeverityLow] != 1 {
		t.Errorf("expected 1 low severity detection, got %d", report.BySeverity[SeverityLow])
	}
	if report.BySeverity[SeverityHigh] != 1 {
		t.Errorf("expected 1 high severity detection, got %d", report.BySeverity[SeverityHigh])
	}
	if report.ByCategory[CategoryCorrectness] != 1 {
		t.Errorf("expected 1 correctness detection, got %d", report.ByCategory[CategoryCorrectness])
	}
}

func TestAnalyze_QualityScoreNeverNegative(t *testing.T) {
	facts := make([]*ast.DefinitionFact, 0, 15)
	for i := 0; i < 15; i++ {
		f := cleanFunction("f")
		f.StartLine = i * 10
		f.HasMutableDefaults = true
		f.HasDoc = false
		f.Source = "def f():"
		facts = append(facts, f)
	}
	set := factSet(900, facts...)

	d := NewDetector()
	report := d.Analyze(context.Background(), set)

	if report.QualityScore < 0 {
		t.Errorf("quality score must be clamped at 0, got %v", report.QualityScore)
	}
}

func TestMissingTypeHints_NeverFiresForAnnotatedFacts(t *testing.T) {
	rule := NewMissingTypeHintsRule()
	annotated := cleanFunction("typed")
	if dets := rule.Check(annotated, nil); len(dets) != 0 {
		t.Errorf("expected no detections for annotated function, got %+v", dets)
	}

	bare := cleanFunction("untyped")
	bare.HasTypeAnnotations = false
	if dets := rule.Check(bare, nil); len(dets) != 1 {
		t.Errorf("expected 1 detection, got %+v", dets)
	}
}

func TestAnalyze_SyntaxErrorBecomesCriticalDetection(t *testing.T) {
	set := factSet(10)
	set.SyntaxErr = &ast.SyntaxErrorInfo{Line: 4, Message: "invalid syntax"}

	d := NewDetector()
	report := d.Analyze(context.Background(), set)

	if len(report.Detections) != 1 {
		t.Fatalf("expected one detection, got %+v", report.Detections)
	}
	det := report.Detections[0]
	if det.RuleID != "syntax_error" {
		t.Errorf("expected syntax_error rule id, got %q", det.RuleID)
	}
	if det.Severity != SeverityCritical {
		t.Errorf("expected critical severity, got %q", det.Severity)
	}
	if det.Line != 4 {
		t.Errorf("expected line 4, got %d", det.Line)
	}
	// 100 - 20, scaled by the 10-line size factor.
	wantScore := 80.0 * (1 - (10.0/1000.0)*0.1)
	if math.Abs(report.QualityScore-wantScore) > 1e-9 {
		t.Errorf("expected quality %.4f, got %.4f", wantScore, report.QualityScore)
	}
	if report.SyntaxError == nil {
		t.Error("expected the syntax error to be attached to the report")
	}
}
