// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package learn implements the pattern learner.
//
// The learner observes definition facts from analyzed files, extracts
// reusable code patterns with parameterized templates, records durable
// anti-pattern observations, and persists both across restarts.
package learn

// Pattern categories.
const (
	CategoryFunction = "function"
	CategoryClass    = "class"
)

// Pattern types assigned by the classifier.
const (
	TypeSimpleGetter           = "simple_getter"
	TypeComplexFunction        = "complex_function"
	TypeWellDocumentedFunction = "well_documented_function"
	TypeComplexLogic           = "complex_logic"
	TypeStandardFunction       = "standard_function"

	TypeDataClass        = "data_class"
	TypeSimpleClass      = "simple_class"
	TypeInheritanceClass = "inheritance_class"
	TypeComplexClass     = "complex_class"
	TypeStandardClass    = "standard_class"
)

// VariableKind tags what a template variable stands for.
type VariableKind string

const (
	VariableFunctionName VariableKind = "function_name"
	VariableClassName    VariableKind = "class_name"
	VariableParam        VariableKind = "param"
)

// Variable is one substitution slot in a pattern template.
type Variable struct {
	// Name is the placeholder name used in the template.
	Name string `json:"name"`

	// Kind tags what the placeholder stands for.
	Kind VariableKind `json:"kind"`

	// Original is the identifier the placeholder replaced.
	Original string `json:"original"`
}

// Pattern is one learned, reusable code pattern.
type Pattern struct {
	// ID is "<category>_<pattern_type>_<fingerprint[:12]>", stable
	// across reloads.
	ID string `json:"id"`

	// Name is a human-readable pattern name.
	Name string `json:"name"`

	// Category is "function" or "class".
	Category string `json:"category"`

	// PatternType is the classifier's type tag.
	PatternType string `json:"pattern_type"`

	// Language is the source language the pattern was learned from.
	Language string `json:"language"`

	// Description summarizes what the pattern captures.
	Description string `json:"description"`

	// Template is the source with names replaced by placeholders.
	Template string `json:"template"`

	// Variables lists the template's substitution slots.
	Variables []Variable `json:"variables,omitempty"`

	// Confidence is the learner's score in [0, 1] at learn time.
	Confidence float64 `json:"confidence"`

	// UsageCount increments each time the pattern is observed again.
	UsageCount int `json:"usage_count"`

	// SourceFiles lists the files the pattern was observed in.
	SourceFiles []string `json:"source_files,omitempty"`

	// Fingerprint is the full sha256 hex of the template.
	Fingerprint string `json:"fingerprint"`

	// CreatedAt and UpdatedAt are UnixMilli timestamps.
	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// AntiPatternRecord is one durable anti-pattern observation, distinct
// from a transient detect.Detection.
type AntiPatternRecord struct {
	// Category is "function", "class", "loop", or "error_handling".
	Category string `json:"category"`

	// Name is the offending definition's name, when it has one.
	Name string `json:"name,omitempty"`

	// FilePath and Line locate the observation.
	FilePath string `json:"file_path"`
	Line     int    `json:"line"`

	// Reason explains why this is an anti-pattern.
	Reason string `json:"reason"`

	// Alternative suggests what to do instead.
	Alternative string `json:"alternative"`

	// ObservedAt is the UnixMilli observation timestamp.
	ObservedAt int64 `json:"observed_at"`
}

// FileAnalysis summarizes one learning pass over a file.
type FileAnalysis struct {
	// FilePath identifies the analyzed file.
	FilePath string `json:"file_path"`

	// PatternsLearned counts patterns newly learned or re-observed.
	PatternsLearned int `json:"patterns_learned"`

	// AntiPatternsFound counts anti-pattern observations recorded.
	AntiPatternsFound int `json:"anti_patterns_found"`

	// Score is clamp(50 + 10*patterns - 20*antiPatterns, 0, 100).
	Score float64 `json:"score"`
}
