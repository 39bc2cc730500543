// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package apply turns learned patterns and definition facts into concrete
// improvement suggestions for a file.
//
// Suggestions are transient: they are computed per request and never
// persisted.
package apply

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/patternforge/services/pattern_engine/ast"
	"github.com/AleutianAI/patternforge/services/pattern_engine/learn"
)

// Suggestion types.
const (
	TypeAddDocstring      = "add_docstring"
	TypeAddClassDocstring = "add_class_docstring"
	TypeUseDataStructure  = "convert_to_data_structure"
	TypeFlattenLoop       = "flatten_loop"
	TypeUseComprehension  = "use_comprehension"
	TypeOrganizeImports   = "organize_imports"
	TypeNormalizeNaming   = "normalize_naming"
	TypeSimplifyBoolean   = "simplify_boolean"
)

// minNodeConfidence is the floor below which per-definition suggestions
// are discarded. File-wide suggestions are exempt.
const minNodeConfidence = 0.6

// Suggestion is one proposed improvement for a file.
type Suggestion struct {
	// Type identifies the improvement kind.
	Type string `json:"type"`

	// Description explains the improvement for a human reader.
	Description string `json:"description"`

	// Line is the 1-based line the suggestion applies to (0 for
	// file-wide suggestions).
	Line int `json:"line"`

	// Confidence is the applier's certainty in [0, 1].
	Confidence float64 `json:"confidence"`

	// PatternID references the learned pattern that motivated the
	// suggestion, when one did.
	PatternID string `json:"pattern_id,omitempty"`
}

// PatternMatch scores one learned pattern against a definition.
type PatternMatch struct {
	// PatternID identifies the matched pattern.
	PatternID string `json:"pattern_id"`

	// Confidence is the match score in [0, 1].
	Confidence float64 `json:"confidence"`
}

// PatternSource supplies learned patterns for matching. *learn.Learner
// satisfies it.
type PatternSource interface {
	GetPatterns(category, language string) []learn.Pattern
}

// Applier computes improvement suggestions from definition facts and
// learned patterns.
//
// # Thread Safety
//
// Stateless apart from the pattern source; safe for concurrent use when
// the source is.
type Applier struct {
	patterns PatternSource
}

// NewApplier creates an applier backed by the given pattern source.
func NewApplier(patterns PatternSource) *Applier {
	return &Applier{patterns: patterns}
}

// Suggest computes suggestions for one file's facts.
//
// # Description
//
// Per-definition heuristics run first and keep only suggestions at or
// above the node confidence floor. File-wide suggestions (imports,
// naming, boolean chains) are appended afterwards. The result is sorted
// by confidence descending with line ascending as tiebreak, then filtered
// by the caller's minimum confidence.
//
// # Inputs
//
//   - ctx: Cancellation context.
//   - set: Facts extracted from one file.
//   - minConfidence: Caller's floor; 0 keeps everything.
//
// # Outputs
//
//   - []Suggestion: Sorted, filtered suggestions. Never nil.
//   - error: Context cancellation only.
func (a *Applier) Suggest(ctx context.Context, set *ast.FactSet, minConfidence float64) ([]Suggestion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	suggestions := make([]Suggestion, 0)
	set.Walk(func(fact *ast.DefinitionFact) {
		var sugg []Suggestion
		switch fact.Kind {
		case ast.FactKindFunction:
			sugg = a.functionSuggestions(fact, set)
		case ast.FactKindClass:
			sugg = a.classSuggestions(fact)
		case ast.FactKindLoop:
			sugg = a.loopSuggestions(fact)
		}
		for _, s := range sugg {
			if s.Confidence >= minNodeConfidence {
				suggestions = append(suggestions, s)
			}
		}
	})

	suggestions = append(suggestions, a.fileSuggestions(set)...)

	sort.SliceStable(suggestions, func(i, j int) bool {
		if suggestions[i].Confidence != suggestions[j].Confidence {
			return suggestions[i].Confidence > suggestions[j].Confidence
		}
		return suggestions[i].Line < suggestions[j].Line
	})

	if minConfidence > 0 {
		filtered := suggestions[:0]
		for _, s := range suggestions {
			if s.Confidence >= minConfidence {
				filtered = append(filtered, s)
			}
		}
		suggestions = filtered
	}
	return suggestions, nil
}

// MatchPatterns scores learned patterns against one definition fact.
// Function facts match function patterns, class facts class patterns.
func (a *Applier) MatchPatterns(fact *ast.DefinitionFact, language string) []PatternMatch {
	var category string
	switch fact.Kind {
	case ast.FactKindFunction:
		category = learn.CategoryFunction
	case ast.FactKindClass:
		category = learn.CategoryClass
	default:
		return nil
	}

	matches := make([]PatternMatch, 0)
	for _, p := range a.patterns.GetPatterns(category, language) {
		score := 0.0
		if hasVariableKind(p, learn.VariableFunctionName) || hasVariableKind(p, learn.VariableClassName) {
			score += 0.3
		}
		if fact.ParamCount <= 3 {
			score += 0.2
		}
		if score == 0 {
			continue
		}
		matches = append(matches, PatternMatch{PatternID: p.ID, Confidence: score})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Confidence > matches[j].Confidence
	})
	return matches
}

func (a *Applier) functionSuggestions(fact *ast.DefinitionFact, set *ast.FactSet) []Suggestion {
	if fact.HasDoc {
		return nil
	}
	// Only suggest documentation when a documented pattern has actually
	// been learned for this language.
	pattern := a.documentedPattern(set.Language)
	if pattern == "" {
		return nil
	}
	return []Suggestion{{
		Type:        TypeAddDocstring,
		Description: fmt.Sprintf("add a docstring to function %q, matching your documented function patterns", fact.Name),
		Line:        fact.StartLine,
		Confidence:  0.8,
		PatternID:   pattern,
	}}
}

func (a *Applier) classSuggestions(fact *ast.DefinitionFact) []Suggestion {
	var out []Suggestion
	if !fact.HasDoc {
		out = append(out, Suggestion{
			Type:        TypeAddClassDocstring,
			Description: fmt.Sprintf("add a docstring to class %q", fact.Name),
			Line:        fact.StartLine,
			Confidence:  0.7,
		})
	}
	if fact.MethodCount == 0 && fact.FieldCount > 0 {
		out = append(out, Suggestion{
			Type:        TypeUseDataStructure,
			Description: fmt.Sprintf("class %q only holds data, consider a dataclass or plain structure", fact.Name),
			Line:        fact.StartLine,
			Confidence:  0.6,
		})
	}
	return out
}

func (a *Applier) loopSuggestions(fact *ast.DefinitionFact) []Suggestion {
	var out []Suggestion
	if fact.NestingDepth > 2 {
		out = append(out, Suggestion{
			Type:        TypeFlattenLoop,
			Description: fmt.Sprintf("loop nesting depth %d, extract inner loops into functions", fact.NestingDepth),
			Line:        fact.StartLine,
			Confidence:  0.7,
		})
	}
	if fact.SingleAppendBody {
		out = append(out, Suggestion{
			Type:        TypeUseComprehension,
			Description: "loop body is a single append, a comprehension is clearer",
			Line:        fact.StartLine,
			Confidence:  0.6,
		})
	}
	return out
}

func (a *Applier) fileSuggestions(set *ast.FactSet) []Suggestion {
	var out []Suggestion
	if set.ImportCount > 10 {
		out = append(out, Suggestion{
			Type:        TypeOrganizeImports,
			Description: fmt.Sprintf("%d imports, group and order them", set.ImportCount),
			Confidence:  0.6,
		})
	}
	if hasMixedNaming(set.Names) {
		out = append(out, Suggestion{
			Type:        TypeNormalizeNaming,
			Description: "file mixes snake_case and camelCase names, pick one convention",
			Confidence:  0.8,
		})
	}
	for _, chain := range set.BoolChains {
		if chain.Arity > 2 {
			out = append(out, Suggestion{
				Type:        TypeSimplifyBoolean,
				Description: fmt.Sprintf("boolean chain with %d operands, extract named conditions", chain.Arity),
				Line:        chain.Line,
				Confidence:  0.5,
			})
		}
	}
	return out
}

// documentedPattern returns the id of a learned documented-function
// pattern for the language, or "".
func (a *Applier) documentedPattern(language string) string {
	for _, p := range a.patterns.GetPatterns(learn.CategoryFunction, language) {
		if strings.Contains(p.PatternType, "documented") || strings.Contains(p.Name, "documented") {
			return p.ID
		}
	}
	return ""
}

func hasVariableKind(p learn.Pattern, kind learn.VariableKind) bool {
	for _, v := range p.Variables {
		if v.Kind == kind {
			return true
		}
	}
	return false
}

// hasMixedNaming reports whether identifiers mix snake_case and
// camelCase conventions.
func hasMixedNaming(names []string) bool {
	snake, camel := false, false
	for _, name := range names {
		if name == "" || name == "_" {
			continue
		}
		if strings.Contains(name, "_") {
			snake = true
		} else if isCamelCase(name) {
			camel = true
		}
		if snake && camel {
			return true
		}
	}
	return false
}

func isCamelCase(name string) bool {
	hasLower, hasUpper := false, false
	for i, r := range name {
		if r >= 'a' && r <= 'z' {
			hasLower = true
		}
		if r >= 'A' && r <= 'Z' && i > 0 {
			hasUpper = true
		}
	}
	return hasLower && hasUpper
}
