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
	"github.com/smacker/go-tree-sitter/golang"
)

// GoExtractor extracts definition facts from Go source files.
//
// Functions and methods map to function facts, struct types to class facts
// (with methods linked by receiver type), and for statements to loop facts.
// Go is statically typed, so HasTypeAnnotations is always true and the
// exception-handling facts never fire.
//
// # Thread Safety
//
// Safe for concurrent use; each Extract call creates its own parser.
type GoExtractor struct {
	maxFileSize int64
	logger      *slog.Logger
}

var _ Extractor = (*GoExtractor)(nil)

// GoOption configures a GoExtractor.
type GoOption func(*GoExtractor)

// WithGoMaxFileSize overrides the maximum accepted file size.
func WithGoMaxFileSize(size int64) GoOption {
	return func(e *GoExtractor) {
		if size > 0 {
			e.maxFileSize = size
		}
	}
}

// WithGoLogger sets the logger used for parse diagnostics.
func WithGoLogger(logger *slog.Logger) GoOption {
	return func(e *GoExtractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewGoExtractor creates a Go fact extractor.
func NewGoExtractor(opts ...GoOption) *GoExtractor {
	e := &GoExtractor{
		maxFileSize: DefaultMaxFileSize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Language returns "go".
func (e *GoExtractor) Language() string { return "go" }

// Extensions returns the file extensions handled by this extractor.
func (e *GoExtractor) Extensions() []string { return []string{".go"} }

// Extract parses Go source and returns its definition facts.
func (e *GoExtractor) Extract(ctx context.Context, content []byte, filePath string) (*FactSet, error) {
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
		e.logger.Warn("parsing large go file",
			slog.String("file", filePath),
			slog.Int("bytes", len(content)))
	}

	parser := sitter.NewParser()
	parser.SetLanguage(golang.GetLanguage())
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
		e.logger.Debug("go file has syntax errors",
			slog.String("file", filePath),
			slog.Int("line", line))
		return set, nil
	}

	x := &goExtraction{content: content, set: set}
	x.extractModule(root)
	x.extractStructs(root)
	x.extractFunctions(root)
	return set, nil
}

// goExtraction holds per-call state during a Go fact walk.
type goExtraction struct {
	content    []byte
	set        *FactSet
	moduleFact *DefinitionFact
	classes    map[string]*DefinitionFact
}

func (x *goExtraction) extractModule(root *sitter.Node) {
	mod := &DefinitionFact{
		Kind:               FactKindModule,
		Name:               "__module__",
		StartLine:          1,
		EndLine:            x.set.TotalLines,
		LineCount:          x.set.TotalLines,
		HasTypeAnnotations: true,
	}

	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch child.Type() {
		case "package_clause":
			mod.HasDoc = x.hasDocComment(root, child)
		case "import_declaration":
			// Count individual import specs, grouped or not.
			specs := countNodesOfType(child, "import_spec")
			if specs == 0 {
				specs = 1
			}
			x.set.ImportCount += specs
		}
	}

	x.moduleFact = mod
	x.set.Facts = append(x.set.Facts, mod)
}

// extractStructs collects struct type declarations as class facts, keyed
// by name so methods can be linked afterwards.
func (x *goExtraction) extractStructs(root *sitter.Node) {
	x.classes = make(map[string]*DefinitionFact)
	for i := 0; i < int(root.NamedChildCount()); i++ {
		decl := root.NamedChild(i)
		if decl.Type() != "type_declaration" {
			continue
		}
		for j := 0; j < int(decl.NamedChildCount()); j++ {
			spec := decl.NamedChild(j)
			if spec.Type() != "type_spec" {
				continue
			}
			typeNode := spec.ChildByFieldName("type")
			if typeNode == nil || typeNode.Type() != "struct_type" {
				continue
			}
			fact := &DefinitionFact{
				Kind:               FactKindClass,
				StartLine:          int(decl.StartPoint().Row) + 1,
				EndLine:            int(decl.EndPoint().Row) + 1,
				HasTypeAnnotations: true,
				HasDoc:             x.hasDocComment(root, decl),
				Source:             decl.Content(x.content),
			}
			fact.LineCount = fact.EndLine - fact.StartLine + 1
			if name := spec.ChildByFieldName("name"); name != nil {
				fact.Name = name.Content(x.content)
				x.set.Names = append(x.set.Names, fact.Name)
			}
			// struct_type holds its fields in a field_declaration_list
			// child, not a named field.
			for _, list := range namedChildrenOfType(typeNode, "field_declaration_list") {
				fact.FieldCount += len(namedChildrenOfType(list, "field_declaration"))
			}
			x.classes[fact.Name] = fact
			x.moduleFact.Children = append(x.moduleFact.Children, fact)
		}
	}
}

// extractFunctions collects function and method declarations. Methods
// attach to their receiver's class fact when one exists.
func (x *goExtraction) extractFunctions(root *sitter.Node) {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		decl := root.NamedChild(i)
		if decl.Type() != "function_declaration" && decl.Type() != "method_declaration" {
			continue
		}
		fn := x.functionFact(root, decl)

		if decl.Type() == "method_declaration" {
			if cls, ok := x.classes[x.receiverType(decl)]; ok {
				cls.MethodCount++
				cls.Children = append(cls.Children, fn)
				if body := decl.ChildByFieldName("body"); body != nil {
					x.collectLoops(body, fn)
				}
				continue
			}
		}
		x.moduleFact.Children = append(x.moduleFact.Children, fn)
		if body := decl.ChildByFieldName("body"); body != nil {
			x.collectLoops(body, fn)
		}
	}
}

func (x *goExtraction) functionFact(root, decl *sitter.Node) *DefinitionFact {
	fact := &DefinitionFact{
		Kind:               FactKindFunction,
		StartLine:          int(decl.StartPoint().Row) + 1,
		EndLine:            int(decl.EndPoint().Row) + 1,
		HasTypeAnnotations: true,
		HasDoc:             x.hasDocComment(root, decl),
		Source:             decl.Content(x.content),
	}
	fact.LineCount = fact.EndLine - fact.StartLine + 1

	if name := decl.ChildByFieldName("name"); name != nil {
		fact.Name = name.Content(x.content)
		x.set.Names = append(x.set.Names, fact.Name)
	}
	if params := decl.ChildByFieldName("parameters"); params != nil {
		for i := 0; i < int(params.NamedChildCount()); i++ {
			p := params.NamedChild(i)
			if p.Type() != "parameter_declaration" && p.Type() != "variadic_parameter_declaration" {
				continue
			}
			names := namedChildrenOfType(p, "identifier")
			if len(names) == 0 {
				// Unnamed parameter, still counts.
				fact.ParamCount++
				continue
			}
			for _, n := range names {
				fact.ParamCount++
				pn := n.Content(x.content)
				fact.ParamNames = append(fact.ParamNames, pn)
				x.set.Names = append(x.set.Names, pn)
			}
		}
	}

	if body := decl.ChildByFieldName("body"); body != nil {
		fact.DecisionPoints = 1 + x.countDecisionPoints(body)
		fact.NestingDepth = x.maxNesting(body)
	} else {
		fact.DecisionPoints = 1
	}
	return fact
}

// collectLoops gathers for-statement facts nested under a function body.
func (x *goExtraction) collectLoops(node *sitter.Node, parent *DefinitionFact) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "for_statement" {
			loop := &DefinitionFact{
				Kind:               FactKindLoop,
				StartLine:          int(child.StartPoint().Row) + 1,
				EndLine:            int(child.EndPoint().Row) + 1,
				HasTypeAnnotations: true,
				Source:             child.Content(x.content),
			}
			loop.LineCount = loop.EndLine - loop.StartLine + 1
			if body := child.ChildByFieldName("body"); body != nil {
				loop.NestingDepth = 1 + x.maxNesting(body)
				loop.SingleAppendBody = x.singleAppendBody(body)
				parent.Children = append(parent.Children, loop)
				x.collectLoops(body, loop)
				continue
			}
			loop.NestingDepth = 1
			parent.Children = append(parent.Children, loop)
			continue
		}
		if child.Type() == "func_literal" {
			continue
		}
		x.collectLoops(child, parent)
	}
}

// singleAppendBody reports whether a block is exactly one append assignment.
func (x *goExtraction) singleAppendBody(body *sitter.Node) bool {
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
	return stmts == 1 && strings.Contains(only.Content(x.content), "append(")
}

// countDecisionPoints sums branch constructs: if statements, for loops,
// switch cases, select branches, and && / || operators.
func (x *goExtraction) countDecisionPoints(node *sitter.Node) int {
	count := 0
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "if_statement", "for_statement",
			"expression_case", "type_case", "default_case", "communication_case":
			count++
		case "binary_expression":
			if op := child.ChildByFieldName("operator"); op != nil {
				if c := op.Content(x.content); c == "&&" || c == "||" {
					count++
				}
			}
		case "func_literal":
			continue
		}
		count += x.countDecisionPoints(child)
	}
	return count
}

// maxNesting returns the deepest chain of nested control constructs under
// node, not counting node itself.
func (x *goExtraction) maxNesting(node *sitter.Node) int {
	deepest := 0
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		var depth int
		switch child.Type() {
		case "if_statement", "for_statement",
			"expression_switch_statement", "type_switch_statement", "select_statement":
			depth = 1 + x.maxNesting(child)
		case "func_literal":
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

// receiverType returns the bare receiver type name of a method declaration.
func (x *goExtraction) receiverType(decl *sitter.Node) string {
	recv := decl.ChildByFieldName("receiver")
	if recv == nil {
		return ""
	}
	text := recv.Content(x.content)
	text = strings.Trim(text, "()")
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	typ := fields[len(fields)-1]
	typ = strings.TrimPrefix(typ, "*")
	// Strip generic type parameters.
	if idx := strings.IndexByte(typ, '['); idx >= 0 {
		typ = typ[:idx]
	}
	return typ
}

// hasDocComment reports whether a top-level declaration is immediately
// preceded by a comment ending on the previous line.
func (x *goExtraction) hasDocComment(root, decl *sitter.Node) bool {
	declLine := int(decl.StartPoint().Row)
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		if child.Type() == "comment" && int(child.EndPoint().Row) == declLine-1 {
			return true
		}
	}
	return false
}

func countNodesOfType(node *sitter.Node, nodeType string) int {
	count := 0
	if node.Type() == nodeType {
		count++
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		count += countNodesOfType(node.NamedChild(i), nodeType)
	}
	return count
}

func namedChildrenOfType(node *sitter.Node, nodeType string) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if child := node.NamedChild(i); child.Type() == nodeType {
			out = append(out, child)
		}
	}
	return out
}
