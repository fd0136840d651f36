// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ast parses Python source files with tree-sitter and extracts
// class-like declarations, their member functions, imports, and a lowered
// control-flow representation of each member body.
//
// The package is the read-only front end of the extraction engine: it never
// filters, scores, or phrases anything. A file either parses completely —
// producing every declaration it contains — or not at all (the caller turns
// the error into a per-file diagnostic). That per-file atomicity is what lets
// the engine process files in parallel without partial state.
package ast

import (
	"errors"
	"strings"
)

const (
	// DefaultMaxFileSize is the largest source file the parser will accept.
	// Files beyond this are rejected with ErrFileTooLarge.
	DefaultMaxFileSize = 10 * 1024 * 1024 // 10MB

	// WarnFileSize triggers a slow-parse warning log.
	WarnFileSize = 1 * 1024 * 1024 // 1MB
)

// Sentinel errors returned by Parse/ParseFile. Callers classify them into
// diagnostics; none of them abort a multi-file run.
var (
	// ErrFileTooLarge means the content exceeded the configured size limit.
	ErrFileTooLarge = errors.New("file exceeds maximum size")

	// ErrInvalidContent means the content is not valid UTF-8.
	ErrInvalidContent = errors.New("invalid file content")

	// ErrSyntax means tree-sitter found unrecoverable syntax errors. The
	// file produced no declarations.
	ErrSyntax = errors.New("source contains syntax errors")
)

// ParseResult holds everything extracted from a single file.
//
// Description:
//
//	One ParseResult is produced per successfully parsed file. Declarations
//	appear in source order (nested classes directly after their parent).
//	Imports include inline imports found inside function bodies, since
//	Python code frequently defers imports to avoid cycles.
//
// Thread Safety: immutable after Parse returns.
type ParseResult struct {
	// FilePath is the path the content was parsed under, as given by the
	// caller (engine passes root-relative, forward-slash paths).
	FilePath string

	// Declarations are the class-like declarations, in source order.
	Declarations []*Declaration

	// Imports are all import statements, including inline ones.
	Imports []Import
}

// Declaration is one class-like source unit.
//
// Nested classes carry a dotted name ("Outer.Inner") so they remain
// addressable after the per-file lists are flattened.
type Declaration struct {
	// Name is the class name; dotted for nested classes.
	Name string

	// Doc is the class docstring with quotes stripped, "" if absent.
	Doc string

	// FilePath is the owning file (mirrors ParseResult.FilePath).
	FilePath string

	// StartLine/EndLine are 1-based source lines.
	StartLine int
	EndLine   int

	// Decorators are the decorator names applied to the class, in order.
	Decorators []string

	// Members are the member functions, in source order. Class variables
	// are not members; only callable members shape the specification.
	Members []*Member
}

// PublicMembers returns the members that form the declaration's public
// surface: every member whose name has no leading underscore. Dunder
// methods are deliberately excluded — they never describe a user-facing
// capability.
func (d *Declaration) PublicMembers() []*Member {
	out := make([]*Member, 0, len(d.Members))
	for _, m := range d.Members {
		if m == nil || strings.HasPrefix(m.Name, "_") {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Member is one member function of a Declaration.
type Member struct {
	// Name is the function name as written.
	Name string

	// Doc is the function docstring, "" if absent.
	Doc string

	// Decorators are decorator names applied to the member, in order.
	Decorators []string

	// Params is the raw parameter list source, parentheses included.
	Params string

	// StartLine/EndLine are 1-based source lines.
	StartLine int
	EndLine   int

	// IsAsync marks `async def` members.
	IsAsync bool

	// Body is the lowered control-flow representation of the function
	// body (the body reference of the data model). Never nil; empty for
	// bodies that contain only `pass` or a docstring.
	Body []*Node
}

// Import is one import statement.
type Import struct {
	// Module is the dotted module path ("os.path", "flask"). Relative
	// imports keep their leading dots (".models", "..core").
	Module string

	// Names are the imported names for `from x import a, b` forms,
	// including "y as z" renderings. Empty for plain imports.
	Names []string

	// Alias is the binding name for `import x as y`.
	Alias string

	// IsWildcard marks `from x import *`.
	IsWildcard bool

	// IsRelative marks relative imports.
	IsRelative bool

	// Line is the 1-based line of the statement.
	Line int
}
