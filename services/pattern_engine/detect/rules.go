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
	"fmt"
	"strings"

	"github.com/AleutianAI/patternforge/services/pattern_engine/ast"
)

// Compile-time interface conformance checks.
var (
	_ Rule = (*TooManyParametersRule)(nil)
	_ Rule = (*FunctionTooLongRule)(nil)
	_ Rule = (*MissingDocstringRule)(nil)
	_ Rule = (*HighComplexityRule)(nil)
	_ Rule = (*MissingTypeHintsRule)(nil)
	_ Rule = (*GodClassRule)(nil)
	_ Rule = (*ImportsNotAtTopRule)(nil)
	_ Rule = (*MutableDefaultArgsRule)(nil)
	_ Rule = (*BareExceptRule)(nil)
)

// BuiltinRules returns the default rule set.
func BuiltinRules() []Rule {
	return []Rule{
		NewTooManyParametersRule(),
		NewFunctionTooLongRule(),
		NewMissingDocstringRule(),
		NewHighComplexityRule(),
		NewMissingTypeHintsRule(),
		NewGodClassRule(),
		NewImportsNotAtTopRule(),
		NewMutableDefaultArgsRule(),
		NewBareExceptRule(),
	}
}

// TooManyParametersRule flags functions whose parameter count exceeds the
// maximum.
type TooManyParametersRule struct {
	MaxParams int
}

// NewTooManyParametersRule returns the rule with its default threshold.
func NewTooManyParametersRule() *TooManyParametersRule {
	return &TooManyParametersRule{MaxParams: 7}
}

func (r *TooManyParametersRule) ID() string         { return "too_many_parameters" }
func (r *TooManyParametersRule) Kind() ast.FactKind { return ast.FactKindFunction }
func (r *TooManyParametersRule) Severity() Severity { return SeverityMedium }
func (r *TooManyParametersRule) Category() Category { return CategoryDesign }

func (r *TooManyParametersRule) Check(fact *ast.DefinitionFact, _ *ast.FactSet) []Detection {
	if fact.ParamCount <= r.MaxParams {
		return nil
	}
	return []Detection{{
		RuleID:      r.ID(),
		Severity:    r.Severity(),
		Category:    r.Category(),
		Message:     fmt.Sprintf("function %q has %d parameters (max %d)", fact.Name, fact.ParamCount, r.MaxParams),
		Line:        fact.StartLine,
		MatchedCode: firstLine(fact.Source),
		Suggestion:  "group related parameters into a configuration object",
		Confidence:  capRatio(float64(fact.ParamCount) / float64(r.MaxParams*2)),
	}}
}

// FunctionTooLongRule flags functions exceeding the maximum line count.
type FunctionTooLongRule struct {
	MaxLines int
}

// NewFunctionTooLongRule returns the rule with its default threshold.
func NewFunctionTooLongRule() *FunctionTooLongRule {
	return &FunctionTooLongRule{MaxLines: 50}
}

func (r *FunctionTooLongRule) ID() string         { return "function_too_long" }
func (r *FunctionTooLongRule) Kind() ast.FactKind { return ast.FactKindFunction }
func (r *FunctionTooLongRule) Severity() Severity { return SeverityMedium }
func (r *FunctionTooLongRule) Category() Category { return CategoryDesign }

func (r *FunctionTooLongRule) Check(fact *ast.DefinitionFact, _ *ast.FactSet) []Detection {
	if fact.LineCount <= r.MaxLines {
		return nil
	}
	return []Detection{{
		RuleID:      r.ID(),
		Severity:    r.Severity(),
		Category:    r.Category(),
		Message:     fmt.Sprintf("function %q is %d lines long (max %d)", fact.Name, fact.LineCount, r.MaxLines),
		Line:        fact.StartLine,
		MatchedCode: firstLine(fact.Source),
		Suggestion:  "split the function into smaller, focused functions",
		Confidence:  capRatio(float64(fact.LineCount) / float64(r.MaxLines*2)),
	}}
}

// MissingDocstringRule flags functions without documentation.
type MissingDocstringRule struct{}

// NewMissingDocstringRule returns the rule.
func NewMissingDocstringRule() *MissingDocstringRule { return &MissingDocstringRule{} }

func (r *MissingDocstringRule) ID() string         { return "missing_docstring" }
func (r *MissingDocstringRule) Kind() ast.FactKind { return ast.FactKindFunction }
func (r *MissingDocstringRule) Severity() Severity { return SeverityLow }
func (r *MissingDocstringRule) Category() Category { return CategoryDocumentation }

func (r *MissingDocstringRule) Check(fact *ast.DefinitionFact, _ *ast.FactSet) []Detection {
	if fact.HasDoc {
		return nil
	}
	return []Detection{{
		RuleID:      r.ID(),
		Severity:    r.Severity(),
		Category:    r.Category(),
		Message:     fmt.Sprintf("function %q has no documentation", fact.Name),
		Line:        fact.StartLine,
		MatchedCode: firstLine(fact.Source),
		Suggestion:  "add a docstring describing purpose, inputs, and outputs",
		Confidence:  0.9,
		AutoFixable: true,
	}}
}

// HighComplexityRule flags functions whose decision-point count exceeds
// the maximum.
type HighComplexityRule struct {
	MaxComplexity int
}

// NewHighComplexityRule returns the rule with its default threshold.
func NewHighComplexityRule() *HighComplexityRule {
	return &HighComplexityRule{MaxComplexity: 15}
}

func (r *HighComplexityRule) ID() string         { return "high_complexity" }
func (r *HighComplexityRule) Kind() ast.FactKind { return ast.FactKindFunction }
func (r *HighComplexityRule) Severity() Severity { return SeverityHigh }
func (r *HighComplexityRule) Category() Category { return CategoryComplexity }

func (r *HighComplexityRule) Check(fact *ast.DefinitionFact, _ *ast.FactSet) []Detection {
	if fact.DecisionPoints <= r.MaxComplexity {
		return nil
	}
	return []Detection{{
		RuleID:      r.ID(),
		Severity:    r.Severity(),
		Category:    r.Category(),
		Message:     fmt.Sprintf("function %q has cyclomatic complexity %d (max %d)", fact.Name, fact.DecisionPoints, r.MaxComplexity),
		Line:        fact.StartLine,
		MatchedCode: firstLine(fact.Source),
		Suggestion:  "extract branches into helper functions or simplify the control flow",
		Confidence:  capRatio(float64(fact.DecisionPoints) / float64(r.MaxComplexity*2)),
	}}
}

// MissingTypeHintsRule flags functions without type annotations. It never
// fires for statically typed languages, whose facts always carry
// annotations.
type MissingTypeHintsRule struct{}

// NewMissingTypeHintsRule returns the rule.
func NewMissingTypeHintsRule() *MissingTypeHintsRule { return &MissingTypeHintsRule{} }

func (r *MissingTypeHintsRule) ID() string         { return "missing_type_hints" }
func (r *MissingTypeHintsRule) Kind() ast.FactKind { return ast.FactKindFunction }
func (r *MissingTypeHintsRule) Severity() Severity { return SeverityLow }
func (r *MissingTypeHintsRule) Category() Category { return CategoryStyle }

func (r *MissingTypeHintsRule) Check(fact *ast.DefinitionFact, _ *ast.FactSet) []Detection {
	if fact.HasTypeAnnotations || fact.ParamCount == 0 {
		return nil
	}
	return []Detection{{
		RuleID:      r.ID(),
		Severity:    r.Severity(),
		Category:    r.Category(),
		Message:     fmt.Sprintf("function %q has no type annotations", fact.Name),
		Line:        fact.StartLine,
		MatchedCode: firstLine(fact.Source),
		Suggestion:  "annotate parameters and the return type",
		Confidence:  0.8,
	}}
}

// GodClassRule flags classes that have grown past the method or line
// limits.
type GodClassRule struct {
	MaxMethods int
	MaxLines   int
}

// NewGodClassRule returns the rule with its default thresholds.
func NewGodClassRule() *GodClassRule {
	return &GodClassRule{MaxMethods: 20, MaxLines: 300}
}

func (r *GodClassRule) ID() string         { return "god_class" }
func (r *GodClassRule) Kind() ast.FactKind { return ast.FactKindClass }
func (r *GodClassRule) Severity() Severity { return SeverityHigh }
func (r *GodClassRule) Category() Category { return CategoryDesign }

func (r *GodClassRule) Check(fact *ast.DefinitionFact, _ *ast.FactSet) []Detection {
	if fact.MethodCount <= r.MaxMethods && fact.LineCount <= r.MaxLines {
		return nil
	}
	methodRatio := float64(fact.MethodCount) / float64(r.MaxMethods*2)
	lineRatio := float64(fact.LineCount) / float64(r.MaxLines*2)
	return []Detection{{
		RuleID:      r.ID(),
		Severity:    r.Severity(),
		Category:    r.Category(),
		Message:     fmt.Sprintf("class %q has %d methods and %d lines", fact.Name, fact.MethodCount, fact.LineCount),
		Line:        fact.StartLine,
		MatchedCode: firstLine(fact.Source),
		Suggestion:  "split responsibilities into smaller collaborating classes",
		Confidence:  capRatio(max(methodRatio, lineRatio)),
	}}
}

// ImportsNotAtTopRule flags imports appearing after other code.
type ImportsNotAtTopRule struct{}

// NewImportsNotAtTopRule returns the rule.
func NewImportsNotAtTopRule() *ImportsNotAtTopRule { return &ImportsNotAtTopRule{} }

func (r *ImportsNotAtTopRule) ID() string         { return "imports_not_at_top" }
func (r *ImportsNotAtTopRule) Kind() ast.FactKind { return ast.FactKindModule }
func (r *ImportsNotAtTopRule) Severity() Severity { return SeverityLow }
func (r *ImportsNotAtTopRule) Category() Category { return CategoryStyle }

func (r *ImportsNotAtTopRule) Check(_ *ast.DefinitionFact, set *ast.FactSet) []Detection {
	if set.ImportAfterCodeLine == 0 {
		return nil
	}
	return []Detection{{
		RuleID:      r.ID(),
		Severity:    r.Severity(),
		Category:    r.Category(),
		Message:     "import statement appears after other code",
		Line:        set.ImportAfterCodeLine,
		Suggestion:  "move all imports to the top of the file",
		Confidence:  0.95,
		AutoFixable: true,
	}}
}

// MutableDefaultArgsRule flags parameters defaulting to mutable literals.
type MutableDefaultArgsRule struct{}

// NewMutableDefaultArgsRule returns the rule.
func NewMutableDefaultArgsRule() *MutableDefaultArgsRule { return &MutableDefaultArgsRule{} }

func (r *MutableDefaultArgsRule) ID() string         { return "mutable_default_args" }
func (r *MutableDefaultArgsRule) Kind() ast.FactKind { return ast.FactKindFunction }
func (r *MutableDefaultArgsRule) Severity() Severity { return SeverityHigh }
func (r *MutableDefaultArgsRule) Category() Category { return CategoryCorrectness }

func (r *MutableDefaultArgsRule) Check(fact *ast.DefinitionFact, _ *ast.FactSet) []Detection {
	if !fact.HasMutableDefaults {
		return nil
	}
	return []Detection{{
		RuleID:      r.ID(),
		Severity:    r.Severity(),
		Category:    r.Category(),
		Message:     fmt.Sprintf("function %q uses a mutable default argument", fact.Name),
		Line:        fact.StartLine,
		MatchedCode: firstLine(fact.Source),
		Suggestion:  "default to None and create the value inside the function",
		Confidence:  0.95,
	}}
}

// BareExceptRule flags exception handlers with no exception type.
type BareExceptRule struct{}

// NewBareExceptRule returns the rule.
func NewBareExceptRule() *BareExceptRule { return &BareExceptRule{} }

func (r *BareExceptRule) ID() string         { return "bare_except" }
func (r *BareExceptRule) Kind() ast.FactKind { return ast.FactKindFunction }
func (r *BareExceptRule) Severity() Severity { return SeverityMedium }
func (r *BareExceptRule) Category() Category { return CategoryErrorHandling }

func (r *BareExceptRule) Check(fact *ast.DefinitionFact, _ *ast.FactSet) []Detection {
	if !fact.HasBareExcept {
		return nil
	}
	return []Detection{{
		RuleID:      r.ID(),
		Severity:    r.Severity(),
		Category:    r.Category(),
		Message:     fmt.Sprintf("function %q has a bare except clause", fact.Name),
		Line:        fact.StartLine,
		MatchedCode: firstLine(fact.Source),
		Suggestion:  "catch the specific exception types you can handle",
		Confidence:  0.95,
	}}
}

func firstLine(source string) string {
	if idx := strings.IndexByte(source, '\n'); idx >= 0 {
		source = source[:idx]
	}
	if len(source) > 80 {
		source = source[:80]
	}
	return source
}

func capRatio(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}
