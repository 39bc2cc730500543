// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ast provides the structural adapter: language-specific extractors
// that parse source text into a tree of definition facts.
//
// A DefinitionFact captures the structural properties of one definition
// (function, class, loop, or module) that the rule engine, pattern learner,
// and pattern applier consume. Facts are derived once per parse and are
// immutable afterwards.
//
// Design principles:
//   - Language-agnostic: facts work for any supported language
//   - Timestamps as int64 UnixMilli per project conventions
//   - No map[string]interface{} - concrete types only
package ast

import (
	"context"
	"fmt"
)

// Parse limits shared by all extractors.
const (
	// DefaultMaxFileSize is the largest file an extractor accepts (10MB).
	DefaultMaxFileSize int64 = 10 * 1024 * 1024

	// WarnFileSize triggers a slow-parse warning log (1MB).
	WarnFileSize = 1 * 1024 * 1024
)

// FactKind classifies a definition fact.
type FactKind int

const (
	// FactKindUnknown indicates an unrecognized definition.
	FactKindUnknown FactKind = iota

	// FactKindModule represents the file-level module definition.
	FactKindModule

	// FactKindFunction represents a function or method definition.
	FactKindFunction

	// FactKindClass represents a class, struct, or equivalent composite.
	FactKindClass

	// FactKindLoop represents a for or while loop.
	FactKindLoop
)

var factKindNames = map[FactKind]string{
	FactKindUnknown:  "unknown",
	FactKindModule:   "module",
	FactKindFunction: "function",
	FactKindClass:    "class",
	FactKindLoop:     "loop",
}

// String returns the canonical name for the kind.
func (k FactKind) String() string {
	if name, ok := factKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("FactKind(%d)", int(k))
}

// DefinitionFact is the structural summary of one definition.
//
// # Description
//
// Each fact carries the properties the downstream components key on:
// parameter shape, documentation and typing presence, size, control-flow
// nesting, and a decision-point count used as a cyclomatic-complexity
// proxy (branches + loop headers + exception handlers + boolean-operator
// arity minus one, summed over the definition body).
//
// Facts form a tree: class facts hold their methods as children, function
// facts hold nested functions. A fact never outlives the Extract call that
// produced it in any mutable sense - consumers treat it as read-only.
type DefinitionFact struct {
	// Kind classifies the definition.
	Kind FactKind `json:"kind"`

	// Name is the declared name ("__module__" for module facts, empty
	// for anonymous loops).
	Name string `json:"name"`

	// ParamCount is the number of declared parameters (including
	// receivers/self, matching the source language's own count).
	ParamCount int `json:"param_count"`

	// ParamNames lists declared parameter identifiers in order.
	ParamNames []string `json:"param_names,omitempty"`

	// HasDoc reports whether a leading documentation block is present.
	HasDoc bool `json:"has_doc"`

	// HasTypeAnnotations reports whether any parameter or return type
	// annotation is present. Always true for statically typed languages.
	HasTypeAnnotations bool `json:"has_type_annotations"`

	// StartLine and EndLine are 1-based inclusive line bounds.
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`

	// LineCount is EndLine - StartLine + 1.
	LineCount int `json:"line_count"`

	// NestingDepth is the maximum chain of nested loop/conditional/try
	// constructs inside the definition body.
	NestingDepth int `json:"nesting_depth"`

	// DecisionPoints is the cyclomatic-complexity proxy for the body.
	DecisionPoints int `json:"decision_points"`

	// MethodCount and FieldCount apply to class facts.
	MethodCount int `json:"method_count,omitempty"`
	FieldCount  int `json:"field_count,omitempty"`

	// HasInit reports whether a class declares a constructor.
	HasInit bool `json:"has_init,omitempty"`

	// BaseCount is the number of declared base classes.
	BaseCount int `json:"base_count,omitempty"`

	// HasMutableDefaults reports a parameter defaulting to a mutable
	// literal (list/dict/set).
	HasMutableDefaults bool `json:"has_mutable_defaults,omitempty"`

	// HasBareExcept reports an exception handler with no exception type.
	HasBareExcept bool `json:"has_bare_except,omitempty"`

	// CatchesBroadException reports a handler catching the language's
	// base exception type.
	CatchesBroadException bool `json:"catches_broad_exception,omitempty"`

	// SingleAppendBody applies to loop facts: the body is exactly one
	// collection-append call, a comprehension-equivalent shape.
	SingleAppendBody bool `json:"single_append_body,omitempty"`

	// Source is the definition's source text slice.
	Source string `json:"source,omitempty"`

	// Children holds nested definitions (methods under classes, nested
	// functions under functions).
	Children []*DefinitionFact `json:"children,omitempty"`
}

// BoolChain records a boolean-operator chain found at file scope.
type BoolChain struct {
	// Line is the 1-based line of the chain's first operand.
	Line int `json:"line"`

	// Arity is the number of chained operands.
	Arity int `json:"arity"`

	// Source is the chain's source text.
	Source string `json:"source"`
}

// SyntaxErrorInfo carries the parser's position and message for an
// unparsable file. Callers must not treat its presence as fatal: analysis
// proceeds with zero definition facts.
type SyntaxErrorInfo struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// FactSet is the result of extracting one file.
type FactSet struct {
	// FilePath is the path the content was read from.
	FilePath string `json:"file_path"`

	// Language is the canonical language tag.
	Language string `json:"language"`

	// TotalLines is the file's line count.
	TotalLines int `json:"total_lines"`

	// Facts are the top-level definition facts (module fact first when
	// present). Use Walk to visit nested facts.
	Facts []*DefinitionFact `json:"facts"`

	// SyntaxErr is non-nil when the file could not be parsed; Facts is
	// empty in that case.
	SyntaxErr *SyntaxErrorInfo `json:"syntax_error,omitempty"`

	// Names lists declared identifiers (definitions and parameters),
	// used for naming-convention analysis.
	Names []string `json:"names,omitempty"`

	// ImportCount is the number of import statements.
	ImportCount int `json:"import_count"`

	// ImportAfterCodeLine is the line of the first import appearing
	// after non-import code, or 0 if imports are all at the top.
	ImportAfterCodeLine int `json:"import_after_code_line,omitempty"`

	// BoolChains lists boolean-operator chains for simplification
	// analysis.
	BoolChains []BoolChain `json:"bool_chains,omitempty"`
}

// Walk visits every fact in the set depth-first, parents before children.
func (fs *FactSet) Walk(visit func(*DefinitionFact)) {
	var walk func(f *DefinitionFact)
	walk = func(f *DefinitionFact) {
		visit(f)
		for _, c := range f.Children {
			walk(c)
		}
	}
	for _, f := range fs.Facts {
		walk(f)
	}
}

// FactsOfKind returns every fact of the given kind, nested facts included.
func (fs *FactSet) FactsOfKind(kind FactKind) []*DefinitionFact {
	out := make([]*DefinitionFact, 0)
	fs.Walk(func(f *DefinitionFact) {
		if f.Kind == kind {
			out = append(out, f)
		}
	})
	return out
}

// Extractor parses source text for one language into definition facts.
//
// Implementations must be safe for concurrent use: each Extract call
// creates its own parser instance internally.
type Extractor interface {
	// Extract parses content and returns its fact set. On unparsable
	// input it returns an empty fact list with SyntaxErr populated and
	// a nil error; hard failures (size limit, invalid encoding,
	// canceled context) return a non-nil error.
	Extract(ctx context.Context, content []byte, filePath string) (*FactSet, error)

	// Language returns the canonical language tag.
	Language() string

	// Extensions returns the file extensions this extractor handles.
	Extensions() []string
}

// Registry maps language tags to extractors.
type Registry struct {
	byLanguage map[string]Extractor
}

// NewRegistry builds a registry from the given extractors.
func NewRegistry(extractors ...Extractor) *Registry {
	r := &Registry{byLanguage: make(map[string]Extractor, len(extractors))}
	for _, e := range extractors {
		r.byLanguage[e.Language()] = e
	}
	return r
}

// DefaultRegistry returns a registry with all built-in extractors.
func DefaultRegistry() *Registry {
	return NewRegistry(NewPythonExtractor(), NewGoExtractor())
}

// ForLanguage returns the extractor for a language tag.
func (r *Registry) ForLanguage(lang string) (Extractor, error) {
	e, ok := r.byLanguage[lang]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
	}
	return e, nil
}

// Languages returns the registered language tags.
func (r *Registry) Languages() []string {
	out := make([]string, 0, len(r.byLanguage))
	for lang := range r.byLanguage {
		out = append(out, lang)
	}
	return out
}
