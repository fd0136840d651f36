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
	"os"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// Parser extracts declarations from Python source using tree-sitter.
//
// Description:
//
//	Parser wraps a tree-sitter parser configured for the Python grammar.
//	Parse is atomic per file: it either returns every declaration the file
//	contains or an error and nothing, so a half-parsed file can never leak
//	into a run's output.
//
// Inputs: raw file content plus the path it should be reported under.
// Outputs: a ParseResult, or one of the sentinel errors in types.go.
//
// Thread Safety: NOT safe for concurrent use. tree-sitter parsers are
// stateful; create one Parser per goroutine (they are cheap).
type Parser struct {
	parser      *sitter.Parser
	maxFileSize int64
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithMaxFileSize overrides the file size limit. Values <= 0 keep the
// default.
func WithMaxFileSize(n int64) ParserOption {
	return func(p *Parser) {
		if n > 0 {
			p.maxFileSize = n
		}
	}
}

// NewParser creates a Parser for the Python grammar.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{
		parser:      sitter.NewParser(),
		maxFileSize: DefaultMaxFileSize,
	}
	p.parser.SetLanguage(python.GetLanguage())
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Close releases the underlying tree-sitter parser.
func (p *Parser) Close() {
	p.parser.Close()
}

// ParseFile reads and parses one file from disk. The path is used verbatim
// as ParseResult.FilePath.
func (p *Parser) ParseFile(ctx context.Context, path string) (*ParseResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return p.Parse(ctx, content, path)
}

// Parse parses Python source content.
//
// Description:
//
//	Validates size and encoding, parses with tree-sitter, and walks the
//	tree for class declarations and imports. A tree containing syntax
//	errors yields ErrSyntax and no declarations — callers record a
//	diagnostic for the file and move on.
//
// Inputs: ctx cancels a long parse; content is the raw source; filePath is
// only used for reporting.
// Outputs: the ParseResult, or an error wrapping one of ErrFileTooLarge,
// ErrInvalidContent, or ErrSyntax.
func (p *Parser) Parse(ctx context.Context, content []byte, filePath string) (*ParseResult, error) {
	if int64(len(content)) > p.maxFileSize {
		return nil, fmt.Errorf("%s: %w (%d bytes, limit %d)",
			filePath, ErrFileTooLarge, len(content), p.maxFileSize)
	}
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("%s: %w: not valid UTF-8", filePath, ErrInvalidContent)
	}
	if len(content) > WarnFileSize {
		slog.Warn("parsing large file",
			slog.String("path", filePath),
			slog.Int("bytes", len(content)))
	}

	tree, err := p.parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filePath, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("%s: %w", filePath, ErrSyntax)
	}

	result := &ParseResult{FilePath: filePath}
	p.extractDeclarations(root, content, filePath, result)
	p.extractImports(root, content, result)
	return result, nil
}

// extractDeclarations walks the module scope for class declarations and
// appends them (and their nested classes) to the result in source order.
func (p *Parser) extractDeclarations(scope *sitter.Node, src []byte, filePath string, result *ParseResult) {
	for i := 0; i < int(scope.NamedChildCount()); i++ {
		child := scope.NamedChild(i)
		switch child.Type() {
		case "class_definition":
			p.processClass(child, src, filePath, "", nil, result)
		case "decorated_definition":
			if def := child.ChildByFieldName("definition"); def != nil && def.Type() == "class_definition" {
				p.processClass(def, src, filePath, "", extractDecorators(child, src), result)
			}
		}
	}
}

// processClass converts one class_definition into a Declaration, collecting
// member functions and recursing into nested classes.
func (p *Parser) processClass(class *sitter.Node, src []byte, filePath, parentName string, decorators []string, result *ParseResult) {
	name := childContent(class, "name", src)
	if name == "" {
		return
	}
	if parentName != "" {
		name = parentName + "." + name
	}

	decl := &Declaration{
		Name:       name,
		FilePath:   filePath,
		StartLine:  int(class.StartPoint().Row) + 1,
		EndLine:    int(class.EndPoint().Row) + 1,
		Decorators: decorators,
	}

	body := class.ChildByFieldName("body")
	if body != nil {
		decl.Doc = extractDocstring(body, src)
		for i := 0; i < int(body.NamedChildCount()); i++ {
			child := body.NamedChild(i)
			switch child.Type() {
			case "function_definition":
				decl.Members = append(decl.Members, p.processMember(child, src, nil))
			case "decorated_definition":
				if def := child.ChildByFieldName("definition"); def != nil && def.Type() == "function_definition" {
					decl.Members = append(decl.Members, p.processMember(def, src, extractDecorators(child, src)))
				}
			}
		}
	}

	result.Declarations = append(result.Declarations, decl)

	// Nested classes are flattened directly after their parent.
	if body != nil {
		for i := 0; i < int(body.NamedChildCount()); i++ {
			child := body.NamedChild(i)
			switch child.Type() {
			case "class_definition":
				p.processClass(child, src, filePath, name, nil, result)
			case "decorated_definition":
				if def := child.ChildByFieldName("definition"); def != nil && def.Type() == "class_definition" {
					p.processClass(def, src, filePath, name, extractDecorators(child, src), result)
				}
			}
		}
	}
}

// processMember converts one function_definition into a Member, lowering its
// body for the scenario walker.
func (p *Parser) processMember(fn *sitter.Node, src []byte, decorators []string) *Member {
	m := &Member{
		Name:       childContent(fn, "name", src),
		Decorators: decorators,
		StartLine:  int(fn.StartPoint().Row) + 1,
		EndLine:    int(fn.EndPoint().Row) + 1,
	}

	for i := 0; i < int(fn.ChildCount()); i++ {
		if fn.Child(i).Type() == "async" {
			m.IsAsync = true
			break
		}
	}

	if params := fn.ChildByFieldName("parameters"); params != nil {
		m.Params = normalizeSource(params.Content(src))
	}

	body := fn.ChildByFieldName("body")
	m.Doc = extractDocstring(body, src)
	m.Body = lowerBlock(body, src)
	return m
}

// extractDecorators returns the decorator expressions of a
// decorated_definition, "@" stripped, in source order.
func extractDecorators(decorated *sitter.Node, src []byte) []string {
	var out []string
	for i := 0; i < int(decorated.NamedChildCount()); i++ {
		child := decorated.NamedChild(i)
		if child.Type() != "decorator" {
			continue
		}
		text := strings.TrimPrefix(normalizeSource(child.Content(src)), "@")
		if text != "" {
			out = append(out, text)
		}
	}
	return out
}

// extractDocstring returns the docstring of a block: the string content of a
// leading expression statement, or "".
func extractDocstring(body *sitter.Node, src []byte) string {
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first.Type() != "expression_statement" || first.NamedChildCount() == 0 {
		return ""
	}
	str := first.NamedChild(0)
	if str.Type() != "string" && str.Type() != "concatenated_string" {
		return ""
	}
	return extractStringContent(str.Content(src))
}

// extractStringContent strips quotes and prefixes from a string literal.
func extractStringContent(raw string) string {
	raw = strings.TrimSpace(raw)
	// Prefixes like r, b, f, rb in either case.
	raw = strings.TrimLeft(raw, "rRbBfFuU")
	raw = strings.Trim(raw, `"'`)
	return strings.TrimSpace(raw)
}

// extractImports walks the whole tree for import statements, including
// imports nested inside function bodies.
func (p *Parser) extractImports(node *sitter.Node, src []byte, result *ParseResult) {
	switch node.Type() {
	case "import_statement":
		line := int(node.StartPoint().Row) + 1
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			switch child.Type() {
			case "dotted_name":
				result.Imports = append(result.Imports, Import{
					Module: normalizeSource(child.Content(src)),
					Line:   line,
				})
			case "aliased_import":
				result.Imports = append(result.Imports, Import{
					Module: childContent(child, "name", src),
					Alias:  childContent(child, "alias", src),
					Line:   line,
				})
			}
		}
		return
	case "import_from_statement":
		imp := Import{Line: int(node.StartPoint().Row) + 1}
		module := node.ChildByFieldName("module_name")
		if module != nil {
			imp.Module = normalizeSource(module.Content(src))
			imp.IsRelative = module.Type() == "relative_import"
		}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if module != nil && child.StartByte() == module.StartByte() {
				continue
			}
			switch child.Type() {
			case "dotted_name":
				imp.Names = append(imp.Names, normalizeSource(child.Content(src)))
			case "aliased_import":
				imp.Names = append(imp.Names, childContent(child, "name", src))
			case "wildcard_import":
				imp.IsWildcard = true
			}
		}
		result.Imports = append(result.Imports, imp)
		return
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		p.extractImports(node.NamedChild(i), src, result)
	}
}
