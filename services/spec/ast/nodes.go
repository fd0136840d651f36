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
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// NodeKind identifies the statement category of a lowered Node. The set is
// closed: downstream consumers switch over it exhaustively and treat
// KindOther as the only extension point.
type NodeKind uint8

const (
	// KindOther is any statement the lowering does not classify. Other
	// nodes may still carry a Body (with-blocks, match arms) so that
	// traversals reach the constructs nested inside them.
	KindOther NodeKind = iota

	// KindIf is an if statement. Elif clauses are carried in Elifs as
	// further KindIf nodes; the else branch is carried in Else.
	KindIf

	// KindTry is a try statement with Handlers, Else, and Final blocks.
	KindTry

	// KindExcept is a single except clause (only inside Try.Handlers).
	KindExcept

	// KindFinally never appears as a Node kind; finally bodies live in
	// Try.Final. The constant exists so the enum names every clause of
	// the construct it mirrors.
	KindFinally

	// KindLoop is a for or while statement.
	KindLoop

	// KindReturn is a return statement.
	KindReturn

	// KindAssign is an assignment or augmented assignment.
	KindAssign

	// KindCall is a bare call expression statement.
	KindCall

	// KindFunctionDef is a nested function definition.
	KindFunctionDef

	// KindClassDef is a nested class definition.
	KindClassDef
)

// String returns the lowercase kind name used in logs and tests.
func (k NodeKind) String() string {
	switch k {
	case KindIf:
		return "if"
	case KindTry:
		return "try"
	case KindExcept:
		return "except"
	case KindFinally:
		return "finally"
	case KindLoop:
		return "loop"
	case KindReturn:
		return "return"
	case KindAssign:
		return "assign"
	case KindCall:
		return "call"
	case KindFunctionDef:
		return "function_def"
	case KindClassDef:
		return "class_def"
	default:
		return "other"
	}
}

// Node is one lowered statement. Which fields are meaningful depends on
// Kind; unused fields are zero. The lowering is lossy on purpose — it keeps
// exactly what behavior phrasing needs and nothing else.
type Node struct {
	Kind NodeKind

	// CondSource is the guard expression source for If nodes and the
	// header condition for while loops, whitespace-normalized.
	CondSource string

	// CondIsComparison is true when the guard is a comparison expression
	// (after unwrapping parentheses), meaning CondSource reads naturally
	// as "<left> <op> <right>".
	CondIsComparison bool

	// Expr is the statement's principal expression source: the returned
	// expression for Return (empty for a bare return), the assignment
	// target for Assign, and the full call text for Call.
	Expr string

	// Name is the callee source for Call nodes and the defined name for
	// FunctionDef/ClassDef nodes.
	Name string

	// ExceptionTypes lists the caught exception type names of an Except
	// node, in source order. Empty means a bare `except:`.
	ExceptionTypes []string

	// LoopIdents collects, for Loop nodes, the identifiers bound in the
	// loop header plus assignment targets inside the loop body. Retry
	// detection matches these against its marker substrings.
	LoopIdents []string

	// Body is the primary nested block: the consequence of an If, the
	// protected block of a Try, the loop body, a def body, or the spliced
	// inner blocks of an unclassified compound statement.
	Body []*Node

	// Elifs holds one KindIf node per elif clause, in order (If only).
	Elifs []*Node

	// Else is the else branch (If, Try, and Loop).
	Else []*Node

	// Handlers holds the KindExcept nodes of a Try, in order.
	Handlers []*Node

	// Final is the finally block of a Try.
	Final []*Node
}

// lowerBlock lowers every named statement of a block node. It returns an
// empty (non-nil) slice for bodies that reduce to nothing, such as a lone
// `pass` or a docstring.
func lowerBlock(block *sitter.Node, src []byte) []*Node {
	out := []*Node{}
	if block == nil {
		return out
	}
	for i := 0; i < int(block.NamedChildCount()); i++ {
		if n := lowerStatement(block.NamedChild(i), src); n != nil {
			out = append(out, n)
		}
	}
	return out
}

// lowerStatement lowers a single statement node, returning nil for
// statements that carry no behavioral signal (pass, docstrings).
func lowerStatement(stmt *sitter.Node, src []byte) *Node {
	if stmt == nil {
		return nil
	}

	switch stmt.Type() {
	case "if_statement":
		return lowerIf(stmt, src)
	case "try_statement":
		return lowerTry(stmt, src)
	case "for_statement", "while_statement":
		return lowerLoop(stmt, src)
	case "return_statement":
		n := &Node{Kind: KindReturn}
		if expr := stmt.NamedChild(0); expr != nil {
			n.Expr = normalizeSource(expr.Content(src))
		}
		return n
	case "expression_statement":
		return lowerExpressionStatement(stmt, src)
	case "function_definition":
		return &Node{
			Kind: KindFunctionDef,
			Name: childContent(stmt, "name", src),
			Body: lowerBlock(stmt.ChildByFieldName("body"), src),
		}
	case "class_definition":
		// Classes nested inside a function body do not describe the
		// function's own flow; record the name and stop.
		return &Node{Kind: KindClassDef, Name: childContent(stmt, "name", src)}
	case "decorated_definition":
		if def := stmt.ChildByFieldName("definition"); def != nil {
			return lowerStatement(def, src)
		}
		return nil
	case "pass_statement", "import_statement", "import_from_statement",
		"future_import_statement", "global_statement", "nonlocal_statement":
		return nil
	default:
		// with_statement, match_statement, and anything the grammar adds
		// later: splice their inner blocks so nested constructs stay
		// reachable.
		if body := lowerNestedBlocks(stmt, src); len(body) > 0 {
			return &Node{Kind: KindOther, Body: body}
		}
		return &Node{Kind: KindOther}
	}
}

func lowerIf(stmt *sitter.Node, src []byte) *Node {
	n := &Node{Kind: KindIf}
	n.CondSource, n.CondIsComparison = renderCondition(stmt.ChildByFieldName("condition"), src)
	n.Body = lowerBlock(stmt.ChildByFieldName("consequence"), src)

	for i := 0; i < int(stmt.NamedChildCount()); i++ {
		child := stmt.NamedChild(i)
		switch child.Type() {
		case "elif_clause":
			elif := &Node{Kind: KindIf}
			elif.CondSource, elif.CondIsComparison = renderCondition(child.ChildByFieldName("condition"), src)
			elif.Body = lowerBlock(child.ChildByFieldName("consequence"), src)
			n.Elifs = append(n.Elifs, elif)
		case "else_clause":
			n.Else = lowerBlock(child.ChildByFieldName("body"), src)
		}
	}
	return n
}

func lowerTry(stmt *sitter.Node, src []byte) *Node {
	n := &Node{Kind: KindTry, Body: lowerBlock(stmt.ChildByFieldName("body"), src)}

	for i := 0; i < int(stmt.NamedChildCount()); i++ {
		child := stmt.NamedChild(i)
		switch child.Type() {
		case "except_clause", "except_group_clause":
			n.Handlers = append(n.Handlers, lowerExcept(child, src))
		case "else_clause":
			n.Else = lowerBlock(child.ChildByFieldName("body"), src)
		case "finally_clause":
			// The finally body is the clause's block child.
			for j := 0; j < int(child.NamedChildCount()); j++ {
				if blk := child.NamedChild(j); blk.Type() == "block" {
					n.Final = lowerBlock(blk, src)
				}
			}
		}
	}
	return n
}

// lowerExcept extracts the caught types of one except clause. The clause
// shape is `except <expr> [as <name>]: <block>`; the expression may be a
// single name, a dotted attribute, or a tuple of either.
func lowerExcept(clause *sitter.Node, src []byte) *Node {
	n := &Node{Kind: KindExcept}
	for i := 0; i < int(clause.NamedChildCount()); i++ {
		child := clause.NamedChild(i)
		switch child.Type() {
		case "block":
			n.Body = lowerBlock(child, src)
		case "identifier", "attribute":
			// `except E as name:` parses the alias as a second
			// identifier child; only the first expression names types.
			if len(n.ExceptionTypes) == 0 {
				n.ExceptionTypes = append(n.ExceptionTypes, normalizeSource(child.Content(src)))
			}
		case "tuple":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				n.ExceptionTypes = append(n.ExceptionTypes, normalizeSource(child.NamedChild(j).Content(src)))
			}
		case "as_pattern":
			if value := child.NamedChild(0); value != nil {
				n.ExceptionTypes = append(n.ExceptionTypes, normalizeSource(value.Content(src)))
			}
		}
	}
	return n
}

func lowerLoop(stmt *sitter.Node, src []byte) *Node {
	n := &Node{Kind: KindLoop, Body: lowerBlock(stmt.ChildByFieldName("body"), src)}

	if stmt.Type() == "while_statement" {
		cond := stmt.ChildByFieldName("condition")
		n.CondSource, n.CondIsComparison = renderCondition(cond, src)
		collectIdentifiers(cond, src, &n.LoopIdents)
	} else {
		collectIdentifiers(stmt.ChildByFieldName("left"), src, &n.LoopIdents)
	}

	for i := 0; i < int(stmt.NamedChildCount()); i++ {
		if child := stmt.NamedChild(i); child.Type() == "else_clause" {
			n.Else = lowerBlock(child.ChildByFieldName("body"), src)
		}
	}

	collectAssignTargets(n.Body, &n.LoopIdents)
	return n
}

func lowerExpressionStatement(stmt *sitter.Node, src []byte) *Node {
	expr := stmt.NamedChild(0)
	if expr == nil {
		return nil
	}
	if expr.Type() == "await" {
		if inner := expr.NamedChild(0); inner != nil {
			expr = inner
		}
	}

	switch expr.Type() {
	case "assignment", "augmented_assignment":
		n := &Node{Kind: KindAssign}
		if left := expr.ChildByFieldName("left"); left != nil {
			n.Expr = normalizeSource(left.Content(src))
		}
		return n
	case "call":
		n := &Node{Kind: KindCall, Expr: normalizeSource(expr.Content(src))}
		if fn := expr.ChildByFieldName("function"); fn != nil {
			n.Name = normalizeSource(fn.Content(src))
		}
		return n
	case "string", "concatenated_string":
		// Docstring or stray literal.
		return nil
	default:
		return &Node{Kind: KindOther}
	}
}

// lowerNestedBlocks splices the block children found one or two levels under
// an unclassified compound statement, covering with-statements (block is a
// direct field) and match-statements (blocks sit under case clauses).
func lowerNestedBlocks(stmt *sitter.Node, src []byte) []*Node {
	var out []*Node
	for i := 0; i < int(stmt.NamedChildCount()); i++ {
		child := stmt.NamedChild(i)
		if child.Type() == "block" {
			out = append(out, lowerBlock(child, src)...)
			continue
		}
		for j := 0; j < int(child.NamedChildCount()); j++ {
			if grand := child.NamedChild(j); grand.Type() == "block" {
				out = append(out, lowerBlock(grand, src)...)
			}
		}
	}
	return out
}

// renderCondition renders a guard expression. Parentheses are unwrapped
// first; a comparison_operator node is reported as a comparison so that the
// phrasing layer can quote it as "<left> <op> <right>".
func renderCondition(cond *sitter.Node, src []byte) (string, bool) {
	if cond == nil {
		return "", false
	}
	for cond.Type() == "parenthesized_expression" {
		inner := cond.NamedChild(0)
		if inner == nil {
			break
		}
		cond = inner
	}
	return normalizeSource(cond.Content(src)), cond.Type() == "comparison_operator"
}

// collectIdentifiers appends every identifier token under n, in source
// order. Used on loop headers for retry-marker matching.
func collectIdentifiers(n *sitter.Node, src []byte, out *[]string) {
	if n == nil {
		return
	}
	if n.Type() == "identifier" {
		*out = append(*out, n.Content(src))
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		collectIdentifiers(n.NamedChild(i), src, out)
	}
}

// collectAssignTargets appends the assignment targets found in a lowered
// body, descending through every nested block except function definitions —
// an inner def has its own scope.
func collectAssignTargets(body []*Node, out *[]string) {
	for _, n := range body {
		if n == nil {
			continue
		}
		if n.Kind == KindAssign && n.Expr != "" {
			*out = append(*out, n.Expr)
		}
		if n.Kind == KindFunctionDef || n.Kind == KindClassDef {
			continue
		}
		collectAssignTargets(n.Body, out)
		collectAssignTargets(n.Elifs, out)
		collectAssignTargets(n.Else, out)
		collectAssignTargets(n.Handlers, out)
		collectAssignTargets(n.Final, out)
	}
}

// childContent returns the normalized source of a named field child.
func childContent(n *sitter.Node, field string, src []byte) string {
	child := n.ChildByFieldName(field)
	if child == nil {
		return ""
	}
	return normalizeSource(child.Content(src))
}

// normalizeSource collapses all interior whitespace runs (including
// newlines from multi-line expressions) to single spaces.
func normalizeSource(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
