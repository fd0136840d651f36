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
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const serviceTestSource = `"""Module docstring."""

import os
from typing import Optional, List

@dataclass
class RecordService:
    """Manages records in the store.

    - records persist across calls
    - lookups never mutate state
    """

    def create_record(self, data: dict) -> str:
        """Create a new record. Returns its id."""
        return self.store.insert(data)

    async def fetch_remote(self, url: str) -> dict:
        """Fetch a record from a remote peer."""
        return await self.client.get(url)

    @staticmethod
    def generate_id() -> str:
        return "id"

    def _rebuild_index(self) -> None:
        pass

    def __repr__(self) -> str:
        return "RecordService()"
`

func TestParser_Parse_EmptyFile(t *testing.T) {
	parser := NewParser()
	defer parser.Close()

	result, err := parser.Parse(context.Background(), []byte(""), "empty.py")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil {
		t.Fatal("expected non-nil result")
	}
	if result.FilePath != "empty.py" {
		t.Errorf("expected file path 'empty.py', got %q", result.FilePath)
	}
	if len(result.Declarations) != 0 {
		t.Errorf("expected no declarations, got %d", len(result.Declarations))
	}
}

func TestParser_Parse_ClassWithMembers(t *testing.T) {
	parser := NewParser()
	defer parser.Close()

	result, err := parser.Parse(context.Background(), []byte(serviceTestSource), "service.py")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Declarations) != 1 {
		t.Fatalf("expected 1 declaration, got %d", len(result.Declarations))
	}

	decl := result.Declarations[0]
	if decl.Name != "RecordService" {
		t.Errorf("expected name 'RecordService', got %q", decl.Name)
	}
	if !strings.Contains(decl.Doc, "Manages records") {
		t.Errorf("expected class docstring, got %q", decl.Doc)
	}
	if len(decl.Decorators) != 1 || decl.Decorators[0] != "dataclass" {
		t.Errorf("expected decorator 'dataclass', got %v", decl.Decorators)
	}
	if decl.FilePath != "service.py" {
		t.Errorf("expected file path 'service.py', got %q", decl.FilePath)
	}
	if decl.StartLine != 7 {
		t.Errorf("expected start line 7, got %d", decl.StartLine)
	}
	if len(decl.Members) != 5 {
		t.Fatalf("expected 5 members, got %d", len(decl.Members))
	}

	create := decl.Members[0]
	if create.Name != "create_record" {
		t.Errorf("expected first member 'create_record', got %q", create.Name)
	}
	if !strings.Contains(create.Doc, "Create a new record") {
		t.Errorf("expected member docstring, got %q", create.Doc)
	}
	if !strings.Contains(create.Params, "data: dict") {
		t.Errorf("expected params to contain 'data: dict', got %q", create.Params)
	}
	if create.IsAsync {
		t.Error("create_record should not be async")
	}

	fetch := decl.Members[1]
	if !fetch.IsAsync {
		t.Error("fetch_remote should be async")
	}

	gen := decl.Members[2]
	if len(gen.Decorators) != 1 || gen.Decorators[0] != "staticmethod" {
		t.Errorf("expected 'staticmethod' decorator, got %v", gen.Decorators)
	}
	if gen.Doc != "" {
		t.Errorf("expected no docstring on generate_id, got %q", gen.Doc)
	}

	// Public surface: underscore and dunder members are excluded.
	public := decl.PublicMembers()
	if len(public) != 3 {
		t.Fatalf("expected 3 public members, got %d", len(public))
	}
	for _, m := range public {
		if strings.HasPrefix(m.Name, "_") {
			t.Errorf("public member list contains %q", m.Name)
		}
	}
}

func TestParser_Parse_NestedClass(t *testing.T) {
	source := `class Outer:
    """Outer class."""

    class Inner:
        """Inner class."""

        def ping(self):
            return "pong"

    def touch(self):
        pass
`
	parser := NewParser()
	defer parser.Close()

	result, err := parser.Parse(context.Background(), []byte(source), "nested.py")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Declarations) != 2 {
		t.Fatalf("expected 2 declarations, got %d", len(result.Declarations))
	}

	if result.Declarations[0].Name != "Outer" {
		t.Errorf("expected 'Outer' first, got %q", result.Declarations[0].Name)
	}
	inner := result.Declarations[1]
	if inner.Name != "Outer.Inner" {
		t.Errorf("expected dotted name 'Outer.Inner', got %q", inner.Name)
	}
	if len(inner.Members) != 1 || inner.Members[0].Name != "ping" {
		t.Errorf("expected Inner to own 'ping', got %v", inner.Members)
	}

	// Inner's method must not leak into Outer.
	for _, m := range result.Declarations[0].Members {
		if m.Name == "ping" {
			t.Error("'ping' leaked into Outer's members")
		}
	}
}

func TestParser_Parse_SyntaxError(t *testing.T) {
	source := `def broken(:
    return
`
	parser := NewParser()
	defer parser.Close()

	result, err := parser.Parse(context.Background(), []byte(source), "broken.py")
	if !errors.Is(err, ErrSyntax) {
		t.Fatalf("expected ErrSyntax, got %v", err)
	}
	if result != nil {
		t.Error("expected nil result on syntax error")
	}
}

func TestParser_Parse_FileTooLarge(t *testing.T) {
	parser := NewParser(WithMaxFileSize(16))
	defer parser.Close()

	_, err := parser.Parse(context.Background(), []byte(strings.Repeat("x = 1\n", 10)), "big.py")
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
}

func TestParser_Parse_InvalidUTF8(t *testing.T) {
	parser := NewParser()
	defer parser.Close()

	_, err := parser.Parse(context.Background(), []byte{0xff, 0xfe, 0x00, 0x41}, "bad.py")
	if !errors.Is(err, ErrInvalidContent) {
		t.Fatalf("expected ErrInvalidContent, got %v", err)
	}
}

func TestParser_Parse_Imports(t *testing.T) {
	source := `import os
import numpy as np
from typing import Optional, List
from . import models
from ..utils import helper
from pkg import *

def late():
    import json
    return json
`
	parser := NewParser()
	defer parser.Close()

	result, err := parser.Parse(context.Background(), []byte(source), "imports.py")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	byModule := map[string]Import{}
	for _, imp := range result.Imports {
		byModule[imp.Module] = imp
	}

	if _, ok := byModule["os"]; !ok {
		t.Error("expected plain import 'os'")
	}

	np, ok := byModule["numpy"]
	if !ok {
		t.Fatal("expected aliased import 'numpy'")
	}
	if np.Alias != "np" {
		t.Errorf("expected alias 'np', got %q", np.Alias)
	}

	typing, ok := byModule["typing"]
	if !ok {
		t.Fatal("expected from-import 'typing'")
	}
	if len(typing.Names) != 2 || typing.Names[0] != "Optional" || typing.Names[1] != "List" {
		t.Errorf("expected names [Optional List], got %v", typing.Names)
	}

	rel, ok := byModule["."]
	if !ok {
		t.Fatal("expected relative import '.'")
	}
	if !rel.IsRelative {
		t.Error("expected '.' import to be marked relative")
	}
	if len(rel.Names) != 1 || rel.Names[0] != "models" {
		t.Errorf("expected relative names [models], got %v", rel.Names)
	}

	utils, ok := byModule["..utils"]
	if !ok {
		t.Fatal("expected relative import '..utils'")
	}
	if !utils.IsRelative {
		t.Error("expected '..utils' to be marked relative")
	}

	pkg, ok := byModule["pkg"]
	if !ok {
		t.Fatal("expected wildcard import 'pkg'")
	}
	if !pkg.IsWildcard {
		t.Error("expected wildcard flag on 'from pkg import *'")
	}

	// Inline imports inside function bodies are collected too.
	if _, ok := byModule["json"]; !ok {
		t.Error("expected inline import 'json'")
	}
}

func TestParser_ParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mod.py")
	if err := os.WriteFile(path, []byte("class A:\n    def go(self):\n        pass\n"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	parser := NewParser()
	defer parser.Close()

	result, err := parser.ParseFile(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Declarations) != 1 || result.Declarations[0].Name != "A" {
		t.Fatalf("expected class A, got %+v", result.Declarations)
	}

	if _, err := parser.ParseFile(context.Background(), filepath.Join(dir, "missing.py")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParser_Parse_ModuleFunctionsIgnored(t *testing.T) {
	source := `def standalone():
    """Not class-like."""
    return 1

class Kept:
    def member(self):
        pass
`
	parser := NewParser()
	defer parser.Close()

	result, err := parser.Parse(context.Background(), []byte(source), "mixed.py")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Declarations) != 1 || result.Declarations[0].Name != "Kept" {
		t.Fatalf("expected only class 'Kept', got %+v", result.Declarations)
	}
}
