// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package detect implements the anti-pattern rule engine.
//
// A Detector runs registered rules against the definition facts of one
// file and produces a QualityReport: deduplicated detections plus quality,
// maintainability, and complexity scores.
package detect

import (
	"github.com/AleutianAI/patternforge/services/pattern_engine/ast"
)

// Severity ranks how strongly a detection should be acted on.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// severityPenalties are the quality-score deductions per detection.
var severityPenalties = map[Severity]float64{
	SeverityCritical: 20,
	SeverityHigh:     10,
	SeverityMedium:   5,
	SeverityLow:      2,
	SeverityInfo:     0.5,
}

// Penalty returns the quality-score deduction for the severity.
func (s Severity) Penalty() float64 {
	return severityPenalties[s]
}

// Category groups rules by the concern they guard.
type Category string

const (
	CategoryDesign        Category = "design"
	CategoryComplexity    Category = "complexity"
	CategoryStyle         Category = "style"
	CategoryDocumentation Category = "documentation"
	CategoryErrorHandling Category = "error_handling"
	CategoryCorrectness   Category = "correctness"
	CategorySyntax        Category = "syntax"
)

// Detection is one rule violation found in a file.
type Detection struct {
	// RuleID identifies the rule that fired.
	RuleID string `json:"rule_id"`

	// Severity and Category copy the rule's classification.
	Severity Severity `json:"severity"`
	Category Category `json:"category"`

	// Message describes the violation for a human reader.
	Message string `json:"message"`

	// Line is the 1-based line the violation starts on.
	Line int `json:"line"`

	// MatchedCode is a short excerpt of the offending code.
	MatchedCode string `json:"matched_code,omitempty"`

	// Suggestion describes how to fix the violation.
	Suggestion string `json:"suggestion,omitempty"`

	// Confidence is the rule's certainty in [0, 1].
	Confidence float64 `json:"confidence"`

	// AutoFixable reports whether a mechanical fix exists.
	AutoFixable bool `json:"auto_fixable"`
}

// QualityReport is the result of analyzing one file.
type QualityReport struct {
	// FilePath and Language identify the analyzed file.
	FilePath string `json:"file_path"`
	Language string `json:"language"`

	// AnalyzedAt is the analysis timestamp in UnixMilli.
	AnalyzedAt int64 `json:"analyzed_at"`

	// TotalLines is the file's line count.
	TotalLines int `json:"total_lines"`

	// Detections are the deduplicated rule violations.
	Detections []Detection `json:"detections"`

	// QualityScore is 100 minus severity penalties, scaled by file size,
	// clamped to [0, 100]. Exactly 100 when Detections is empty.
	QualityScore float64 `json:"quality_score"`

	// MaintainabilityScore deducts 5 points per size/complexity/
	// documentation/structure detection, clamped to >= 0.
	MaintainabilityScore float64 `json:"maintainability_score"`

	// ComplexityScore is the summed decision points of all functions.
	ComplexityScore int `json:"complexity_score"`

	// BySeverity and ByCategory count detections per bucket.
	BySeverity map[Severity]int `json:"by_severity"`
	ByCategory map[Category]int `json:"by_category"`

	// AutoFixableCount is the number of auto-fixable detections.
	AutoFixableCount int `json:"auto_fixable_count"`

	// SyntaxError is set when the file could not be parsed; scores are
	// computed over zero detections in that case.
	SyntaxError *ast.SyntaxErrorInfo `json:"syntax_error,omitempty"`
}

// Rule checks definition facts of one kind for a specific anti-pattern.
//
// Implementations must be stateless and safe for concurrent use; the
// detector may run them from multiple goroutines.
type Rule interface {
	// ID returns the stable rule identifier.
	ID() string

	// Kind returns the fact kind this rule inspects.
	Kind() ast.FactKind

	// Severity returns the severity assigned to this rule's detections.
	Severity() Severity

	// Category returns the concern this rule guards.
	Category() Category

	// Check inspects one fact and returns zero or more detections. The
	// fact set provides file-level context.
	Check(fact *ast.DefinitionFact, set *ast.FactSet) []Detection
}
