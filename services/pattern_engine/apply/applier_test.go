// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package apply

import (
	"context"
	"testing"

	"github.com/AleutianAI/patternforge/services/pattern_engine/ast"
	"github.com/AleutianAI/patternforge/services/pattern_engine/learn"
)

// stubSource serves a fixed pattern list.
type stubSource struct {
	patterns []learn.Pattern
}

func (s *stubSource) GetPatterns(category, language string) []learn.Pattern {
	out := make([]learn.Pattern, 0)
	for _, p := range s.patterns {
		if category != "" && p.Category != category {
			continue
		}
		if language != "" && p.Language != language {
			continue
		}
		out = append(out, p)
	}
	return out
}

func documentedSource() *stubSource {
	return &stubSource{patterns: []learn.Pattern{{
		ID:          "function_well_documented_function_abc123def456",
		Name:        "well_documented_function: scale",
		Category:    learn.CategoryFunction,
		PatternType: learn.TypeWellDocumentedFunction,
		Language:    "python",
		Variables:   []learn.Variable{{Name: "function_name", Kind: learn.VariableFunctionName}},
	}}}
}

func suggestSet(facts ...*ast.DefinitionFact) *ast.FactSet {
	return &ast.FactSet{
		FilePath: "s.py",
		Language: "python",
		Facts:    facts,
	}
}

func TestSuggest_DocstringFromLearnedPattern(t *testing.T) {
	a := NewApplier(documentedSource())

	fn := &ast.DefinitionFact{
		Kind:      ast.FactKindFunction,
		Name:      "undocumented",
		StartLine: 3,
	}
	got, err := a.Suggest(context.Background(), suggestSet(fn), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 suggestion, got %d", len(got))
	}
	if got[0].Type != TypeAddDocstring {
		t.Errorf("expected %s, got %s", TypeAddDocstring, got[0].Type)
	}
	if got[0].Confidence != 0.8 {
		t.Errorf("expected confidence 0.8, got %v", got[0].Confidence)
	}
	if got[0].PatternID == "" {
		t.Error("expected the motivating pattern id to be set")
	}
	if got[0].Line != 3 {
		t.Errorf("expected line 3, got %d", got[0].Line)
	}
}

func TestSuggest_NoDocstringSuggestionWithoutLearnedPattern(t *testing.T) {
	a := NewApplier(&stubSource{})

	fn := &ast.DefinitionFact{Kind: ast.FactKindFunction, Name: "undocumented", StartLine: 3}
	got, err := a.Suggest(context.Background(), suggestSet(fn), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected no suggestions without learned patterns, got %+v", got)
	}
}

func TestSuggest_ClassSuggestions(t *testing.T) {
	a := NewApplier(&stubSource{})

	cls := &ast.DefinitionFact{
		Kind:       ast.FactKindClass,
		Name:       "Holder",
		StartLine:  1,
		FieldCount: 4,
	}
	got, err := a.Suggest(context.Background(), suggestSet(cls), 0)
	if err != nil {
		t.Fatal(err)
	}

	types := make(map[string]float64)
	for _, s := range got {
		types[s.Type] = s.Confidence
	}
	if types[TypeAddClassDocstring] != 0.7 {
		t.Errorf("expected class docstring suggestion at 0.7, got %v", types)
	}
	if types[TypeUseDataStructure] != 0.6 {
		t.Errorf("expected data structure suggestion at 0.6, got %v", types)
	}
}

func TestSuggest_LoopSuggestions(t *testing.T) {
	a := NewApplier(&stubSource{})

	deep := &ast.DefinitionFact{Kind: ast.FactKindLoop, StartLine: 5, NestingDepth: 3}
	appendLoop := &ast.DefinitionFact{Kind: ast.FactKindLoop, StartLine: 20, NestingDepth: 1, SingleAppendBody: true}

	got, err := a.Suggest(context.Background(), suggestSet(deep, appendLoop), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 suggestions, got %+v", got)
	}
	// Sorted by confidence descending: flatten (0.7) before comprehension (0.6).
	if got[0].Type != TypeFlattenLoop || got[1].Type != TypeUseComprehension {
		t.Errorf("unexpected order: %s, %s", got[0].Type, got[1].Type)
	}
}

func TestSuggest_FileWideSuggestions(t *testing.T) {
	a := NewApplier(&stubSource{})

	set := suggestSet()
	set.ImportCount = 12
	set.Names = []string{"do_thing", "doOther"}
	set.BoolChains = []ast.BoolChain{{Line: 8, Arity: 4}}

	got, err := a.Suggest(context.Background(), set, 0)
	if err != nil {
		t.Fatal(err)
	}

	types := make(map[string]float64)
	for _, s := range got {
		types[s.Type] = s.Confidence
	}
	if types[TypeOrganizeImports] != 0.6 {
		t.Errorf("expected import suggestion at 0.6, got %v", types)
	}
	if types[TypeNormalizeNaming] != 0.8 {
		t.Errorf("expected naming suggestion at 0.8, got %v", types)
	}
	if types[TypeSimplifyBoolean] != 0.5 {
		t.Errorf("expected boolean suggestion at 0.5, got %v", types)
	}

	// File-wide suggestions survive below the per-node floor, but the
	// caller's min confidence still applies.
	filtered, err := a.Suggest(context.Background(), set, 0.6)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range filtered {
		if s.Confidence < 0.6 {
			t.Errorf("suggestion below caller floor survived: %+v", s)
		}
	}
}

func TestSuggest_SortedByConfidenceDesc(t *testing.T) {
	a := NewApplier(documentedSource())

	fn := &ast.DefinitionFact{Kind: ast.FactKindFunction, Name: "f", StartLine: 1}
	cls := &ast.DefinitionFact{Kind: ast.FactKindClass, Name: "C", StartLine: 10}
	set := suggestSet(fn, cls)
	set.BoolChains = []ast.BoolChain{{Line: 2, Arity: 3}}

	got, err := a.Suggest(context.Background(), set, 0)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Confidence > got[i-1].Confidence {
			t.Fatalf("not sorted by confidence: %+v", got)
		}
	}
}

func TestMatchPatterns(t *testing.T) {
	a := NewApplier(documentedSource())

	fn := &ast.DefinitionFact{Kind: ast.FactKindFunction, Name: "f", ParamCount: 2}
	matches := a.MatchPatterns(fn, "python")
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	// name variable (+0.3) and few parameters (+0.2).
	if matches[0].Confidence != 0.5 {
		t.Errorf("expected confidence 0.5, got %v", matches[0].Confidence)
	}

	loop := &ast.DefinitionFact{Kind: ast.FactKindLoop}
	if got := a.MatchPatterns(loop, "python"); got != nil {
		t.Errorf("expected nil for loop facts, got %+v", got)
	}
}
