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
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// PythonExtractor extracts definition facts from Python source files.
//
// # Thread Safety
//
// Safe for concurrent use. A new tree-sitter parser is created per Extract
// call because parser instances are not thread-safe.
type PythonExtractor struct {
	maxFileSize int64
	logger      *slog.Logger
}

// Compile-time interface conformance check.
var _ Extractor = (*PythonExtractor)(nil)

// PythonOption configures a PythonExtractor.
type PythonOption func(*PythonExtractor)

// WithPythonMaxFileSize overrides the maximum accepted file size.
func WithPythonMaxFileSize(size int64) PythonOption {
	return func(e *PythonExtractor) {
		if size > 0 {
			e.maxFileSize = size
		}
	}
}

// WithPythonLogger sets the logger used for parse diagnostics.
func WithPythonLogger(logger *slog.Logger) PythonOption {
	return func(e *PythonExtractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewPythonExtractor creates a Python fact extractor.
func NewPythonExtractor(opts ...PythonOption) *PythonExtractor {
	e := &PythonExtractor{
		maxFileSize: DefaultMaxFileSize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Language returns "python".
func (e *PythonExtractor) Language() string { return "python" }

// Extensions returns the file extensions handled by this extractor.
func (e *PythonExtractor) Extensions() []string { return []string{".py", ".pyi"} }

// Extract parses Python source and returns its definition facts.
//
// # Description
//
// Walks the syntax tree collecting one fact per function, class, and loop,
// nested under a module fact. Unparsable input yields an empty fact list
// with SyntaxErr set and a nil error so analysis can degrade gracefully.
//
// # Inputs
//
//   - ctx: Cancellation context, honored by the underlying parser.
//   - content: Raw file bytes. Must be valid UTF-8 within the size limit.
//   - filePath: Path recorded on the fact set, used only for reporting.
//
// # Outputs
//
//   - *FactSet: Extracted facts, never nil on success.
//   - error: ErrFileTooLarge, ErrInvalidContent, ErrParseFailed, or a
//     context error.
func (e *PythonExtractor) Extract(ctx context.Context, content []byte, filePath string) (*FactSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if int64(len(content)) > e.maxFileSize {
		return nil, fmt.Errorf("%w: %s (%d bytes)", ErrFileTooLarge, filePath, len(content))
	}
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidContent, filePath)
	}
	if len(content) > WarnFileSize {
		e.logger.Warn("parsing large python file",
			slog.String("file", filePath),
			slog.Int("bytes", len(content)))
	}

	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParseFailed, filePath, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	set := &FactSet{
		FilePath:   filePath,
		Language:   e.Language(),
		TotalLines: countLines(content),
		Facts:      []*DefinitionFact{},
	}

	if root.HasError() {
		line, near := firstSyntaxError(root, content)
		set.SyntaxErr = &SyntaxErrorInfo{
			Line:    line,
			Message: fmt.Sprintf("syntax error near %q", near),
		}
		e.logger.Debug("python file has syntax errors",
			slog.String("file", filePath),
			slog.Int("line", line))
		return set, nil
	}

	x := &pyExtraction{content: content, set: set}
	x.extractModule(root)
	x.collect(root, x.moduleFact)
	x.collectBoolChains(root)
	return set, nil
}

// pyExtraction holds per-call state during a Python fact walk.
type pyExtraction struct {
	content    []byte
	set        *FactSet
	moduleFact *DefinitionFact
}

// extractModule builds the module-level fact and the file-level import
// facts from the top-level statement list.
func (x *pyExtraction) extractModule(root *sitter.Node) {
	mod := &DefinitionFact{
		Kind:               FactKindModule,
		Name:               "__module__",
		StartLine:          1,
		EndLine:            x.set.TotalLines,
		LineCount:          x.set.TotalLines,
		HasTypeAnnotations: false,
	}

	seenCode := false
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch child.Type() {
		case "comment":
			continue
		case "import_statement", "import_from_statement", "future_import_statement":
			x.set.ImportCount++
			if seenCode && x.set.ImportAfterCodeLine == 0 {
				x.set.ImportAfterCodeLine = int(child.StartPoint().Row) + 1
			}
		case "expression_statement":
			// A leading string expression is the module docstring.
			if i == 0 && x.isDocstring(child) {
				mod.HasDoc = true
				continue
			}
			seenCode = true
		default:
			seenCode = true
		}
	}

	x.moduleFact = mod
	x.set.Facts = append(x.set.Facts, mod)
}

// collect walks the tree gathering function, class, and loop facts under
// the given parent fact.
func (x *pyExtraction) collect(node *sitter.Node, parent *DefinitionFact) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "decorated_definition":
			if def := child.ChildByFieldName("definition"); def != nil {
				x.collectDefinition(def, parent)
			}
		case "function_definition", "class_definition":
			x.collectDefinition(child, parent)
		case "for_statement", "while_statement":
			loop := x.loopFact(child)
			parent.Children = append(parent.Children, loop)
			if body := child.ChildByFieldName("body"); body != nil {
				x.collect(body, loop)
			}
		default:
			x.collect(child, parent)
		}
	}
}

func (x *pyExtraction) collectDefinition(node *sitter.Node, parent *DefinitionFact) {
	switch node.Type() {
	case "function_definition":
		fn := x.functionFact(node)
		parent.Children = append(parent.Children, fn)
		if body := node.ChildByFieldName("body"); body != nil {
			x.collect(body, fn)
		}
	case "class_definition":
		cls := x.classFact(node)
		parent.Children = append(parent.Children, cls)
	}
}

// functionFact builds the fact for one function or method definition.
func (x *pyExtraction) functionFact(node *sitter.Node) *DefinitionFact {
	fact := &DefinitionFact{
		Kind:      FactKindFunction,
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
		Source:    node.Content(x.content),
	}
	fact.LineCount = fact.EndLine - fact.StartLine + 1

	if name := node.ChildByFieldName("name"); name != nil {
		fact.Name = name.Content(x.content)
		x.set.Names = append(x.set.Names, fact.Name)
	}
	if node.ChildByFieldName("return_type") != nil {
		fact.HasTypeAnnotations = true
	}

	if params := node.ChildByFieldName("parameters"); params != nil {
		x.extractParameters(params, fact)
	}

	body := node.ChildByFieldName("body")
	if body != nil {
		fact.HasDoc = x.bodyHasDocstring(body)
		fact.DecisionPoints = 1 + x.countDecisionPoints(body)
		fact.NestingDepth = x.maxNesting(body)
		fact.HasBareExcept, fact.CatchesBroadException = x.exceptFacts(body)
	} else {
		fact.DecisionPoints = 1
	}
	return fact
}

// extractParameters fills parameter names, count, annotation presence, and
// mutable-default detection from a parameters node.
func (x *pyExtraction) extractParameters(params *sitter.Node, fact *DefinitionFact) {
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		var name string
		switch p.Type() {
		case "identifier":
			name = p.Content(x.content)
		case "typed_parameter":
			fact.HasTypeAnnotations = true
			if id := firstChildOfType(p, "identifier"); id != nil {
				name = id.Content(x.content)
			}
		case "default_parameter", "typed_default_parameter":
			if p.Type() == "typed_default_parameter" {
				fact.HasTypeAnnotations = true
			}
			if n := p.ChildByFieldName("name"); n != nil {
				name = n.Content(x.content)
			}
			if v := p.ChildByFieldName("value"); v != nil && isMutableLiteral(v.Type()) {
				fact.HasMutableDefaults = true
			}
		case "list_splat_pattern", "dictionary_splat_pattern":
			if id := firstChildOfType(p, "identifier"); id != nil {
				name = id.Content(x.content)
			}
		case "keyword_separator", "positional_separator":
			continue
		}
		if name != "" {
			fact.ParamCount++
			fact.ParamNames = append(fact.ParamNames, name)
			x.set.Names = append(x.set.Names, name)
		}
	}
}

// classFact builds the fact for one class definition, with its methods as
// child facts.
func (x *pyExtraction) classFact(node *sitter.Node) *DefinitionFact {
	fact := &DefinitionFact{
		Kind:      FactKindClass,
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
		Source:    node.Content(x.content),
	}
	fact.LineCount = fact.EndLine - fact.StartLine + 1

	if name := node.ChildByFieldName("name"); name != nil {
		fact.Name = name.Content(x.content)
		x.set.Names = append(x.set.Names, fact.Name)
	}
	if supers := node.ChildByFieldName("superclasses"); supers != nil {
		fact.BaseCount = int(supers.NamedChildCount())
	}

	body := node.ChildByFieldName("body")
	if body == nil {
		return fact
	}
	fact.HasDoc = x.bodyHasDocstring(body)

	for i := 0; i < int(body.NamedChildCount()); i++ {
		stmt := body.NamedChild(i)
		def := stmt
		if stmt.Type() == "decorated_definition" {
			if d := stmt.ChildByFieldName("definition"); d != nil {
				def = d
			}
		}
		switch def.Type() {
		case "function_definition":
			method := x.functionFact(def)
			fact.MethodCount++
			if method.Name == "__init__" {
				fact.HasInit = true
			}
			fact.Children = append(fact.Children, method)
			if mbody := def.ChildByFieldName("body"); mbody != nil {
				x.collect(mbody, method)
			}
		case "expression_statement":
			if firstChildOfType(def, "assignment") != nil {
				fact.FieldCount++
			}
		case "class_definition":
			nested := x.classFact(def)
			fact.Children = append(fact.Children, nested)
		}
	}
	return fact
}

// loopFact builds the fact for one for/while loop.
func (x *pyExtraction) loopFact(node *sitter.Node) *DefinitionFact {
	fact := &DefinitionFact{
		Kind:      FactKindLoop,
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
		Source:    node.Content(x.content),
	}
	fact.LineCount = fact.EndLine - fact.StartLine + 1

	body := node.ChildByFieldName("body")
	if body == nil {
		fact.NestingDepth = 1
		return fact
	}
	// The loop itself counts as one level of nesting.
	fact.NestingDepth = 1 + x.maxNesting(body)

	stmts := 0
	var only *sitter.Node
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		if child.Type() == "comment" {
			continue
		}
		stmts++
		only = child
	}
	if stmts == 1 && only.Type() == "expression_statement" &&
		strings.Contains(only.Content(x.content), ".append(") {
		fact.SingleAppendBody = true
	}
	return fact
}

// countDecisionPoints sums branch constructs under node: if/elif branches,
// loop headers, exception handlers, conditional expressions, and boolean
// operators.
func (x *pyExtraction) countDecisionPoints(node *sitter.Node) int {
	count := 0
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "if_statement", "elif_clause", "for_statement", "while_statement",
			"except_clause", "conditional_expression", "boolean_operator":
			count++
		case "function_definition", "class_definition":
			// Nested definitions carry their own counts.
			continue
		}
		count += x.countDecisionPoints(child)
	}
	return count
}

// maxNesting returns the deepest chain of nested control constructs under
// node, not counting node itself.
func (x *pyExtraction) maxNesting(node *sitter.Node) int {
	deepest := 0
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		var depth int
		switch child.Type() {
		case "if_statement", "for_statement", "while_statement",
			"try_statement", "with_statement":
			depth = 1 + x.maxNesting(child)
		case "function_definition", "class_definition":
			continue
		default:
			depth = x.maxNesting(child)
		}
		if depth > deepest {
			deepest = depth
		}
	}
	return deepest
}

// exceptFacts scans for bare except clauses and handlers catching the base
// Exception type.
func (x *pyExtraction) exceptFacts(node *sitter.Node) (bare, broad bool) {
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == "except_clause" {
			expr := exceptExpression(n)
			switch {
			case expr == nil:
				bare = true
			case expr.Content(x.content) == "Exception":
				broad = true
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if child.Type() == "function_definition" || child.Type() == "class_definition" {
				continue
			}
			walk(child)
		}
	}
	walk(node)
	return bare, broad
}

// collectBoolChains records top-level boolean-operator chains and their
// arity for simplification analysis.
func (x *pyExtraction) collectBoolChains(root *sitter.Node) {
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if child.Type() == "boolean_operator" {
				x.set.BoolChains = append(x.set.BoolChains, BoolChain{
					Line:   int(child.StartPoint().Row) + 1,
					Arity:  countBoolOps(child) + 1,
					Source: child.Content(x.content),
				})
				continue // nested operators belong to this chain
			}
			walk(child)
		}
	}
	walk(root)
}

// bodyHasDocstring reports whether a block's first statement is a string
// expression.
func (x *pyExtraction) bodyHasDocstring(body *sitter.Node) bool {
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		if child.Type() == "comment" {
			continue
		}
		return x.isDocstring(child)
	}
	return false
}

func (x *pyExtraction) isDocstring(stmt *sitter.Node) bool {
	return stmt.Type() == "expression_statement" &&
		stmt.NamedChildCount() > 0 &&
		stmt.NamedChild(0).Type() == "string"
}

// exceptExpression returns the exception type expression of an except
// clause, or nil for a bare except. "except Exception as e" wraps the
// type in an as_pattern node, which is unwrapped to its value.
func exceptExpression(clause *sitter.Node) *sitter.Node {
	for i := 0; i < int(clause.NamedChildCount()); i++ {
		child := clause.NamedChild(i)
		if child.Type() == "block" || child.Type() == "comment" {
			continue
		}
		if child.Type() == "as_pattern" {
			if value := child.ChildByFieldName("value"); value != nil {
				return value
			}
			if child.NamedChildCount() > 0 {
				return child.NamedChild(0)
			}
		}
		return child
	}
	return nil
}

// countBoolOps counts boolean_operator nodes in a subtree, the chain root
// included.
func countBoolOps(node *sitter.Node) int {
	count := 0
	if node.Type() == "boolean_operator" {
		count++
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		count += countBoolOps(node.NamedChild(i))
	}
	return count
}

func isMutableLiteral(nodeType string) bool {
	switch nodeType {
	case "list", "dictionary", "set", "list_comprehension",
		"dictionary_comprehension", "set_comprehension":
		return true
	}
	return false
}

func firstChildOfType(node *sitter.Node, nodeType string) *sitter.Node {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if child := node.NamedChild(i); child.Type() == nodeType {
			return child
		}
	}
	return nil
}

// firstSyntaxError locates the first error or missing node in a tree and
// returns its line plus a short source excerpt.
func firstSyntaxError(root *sitter.Node, content []byte) (line int, near string) {
	var find func(n *sitter.Node) *sitter.Node
	find = func(n *sitter.Node) *sitter.Node {
		if n.IsError() || n.IsMissing() {
			return n
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			if found := find(n.Child(i)); found != nil {
				return found
			}
		}
		return nil
	}
	node := find(root)
	if node == nil {
		return 1, ""
	}
	excerpt := node.Content(content)
	if len(excerpt) > 40 {
		excerpt = excerpt[:40]
	}
	return int(node.StartPoint().Row) + 1, strings.TrimSpace(excerpt)
}

// countLines returns the number of lines in content, counting a trailing
// partial line.
func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	lines := strings.Count(string(content), "\n")
	if content[len(content)-1] != '\n' {
		lines++
	}
	return lines
}
