// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extract

import (
	"reflect"
	"testing"

	"github.com/AleutianAI/unearth/services/spec/ast"
)

func TestThemeDetector_ThemesForImports(t *testing.T) {
	d := NewThemeDetector(nil)
	res := &ast.ParseResult{
		FilePath: "svc/worker.py",
		Imports: []ast.Import{
			{Module: "asyncio"},
			{Module: "django.db.models"},
			{Module: "redis.asyncio"},
			{Module: "os.path"},
			{Module: "collections"},
		},
	}

	got := d.ThemesFor(res)
	want := []string{"Async", "Caching", "Database"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("themes = %v, want %v", got, want)
	}
}

func TestThemeDetector_ThemesForRouteDecorators(t *testing.T) {
	d := NewThemeDetector(nil)
	res := &ast.ParseResult{
		FilePath: "svc/views.py",
		Declarations: []*ast.Declaration{
			{
				Name: "UserView",
				Members: []*ast.Member{
					{Name: "index", Decorators: []string{`app.route("/users")`}},
					{Name: "helper", Decorators: []string{"staticmethod"}},
				},
			},
		},
	}

	got := d.ThemesFor(res)
	if !reflect.DeepEqual(got, []string{"API"}) {
		t.Errorf("themes = %v, want [API]", got)
	}
}

func TestThemeDetector_Requirements(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"requirements.txt": `# pinned deps
flask[async]==2.0.1  # web framework
requests>=2.28
-r extra.txt

uvicorn
`,
	})

	d := NewThemeDetector(nil)
	techs, constraints, diags := d.DetectTechnologies([]string{root})
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}

	want := []Technology{
		{Name: "flask", Version: "2.0.1", Source: "requirements.txt"},
		{Name: "requests", Version: ">=2.28", Source: "requirements.txt"},
		{Name: "uvicorn", Version: "", Source: "requirements.txt"},
	}
	if !reflect.DeepEqual(techs, want) {
		t.Errorf("technologies = %v, want %v", techs, want)
	}

	wantConstraints := []string{"flask[async]==2.0.1", "requests>=2.28", "uvicorn"}
	if !reflect.DeepEqual(constraints, wantConstraints) {
		t.Errorf("constraints = %v, want %v", constraints, wantConstraints)
	}
}

func TestThemeDetector_Pyproject(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"pyproject.toml": `[project]
name = "svc"
requires-python = ">=3.10"
dependencies = ["fastapi>=0.100", "uvicorn"]

[tool.poetry.dependencies]
python = "^3.10"
redis = "^5.0"
`,
	})

	d := NewThemeDetector(nil)
	techs, constraints, diags := d.DetectTechnologies([]string{root})
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}

	wantTechs := []Technology{
		{Name: "fastapi", Version: ">=0.100", Source: "pyproject.toml"},
		{Name: "uvicorn", Version: "", Source: "pyproject.toml"},
		{Name: "redis", Version: "^5.0", Source: "pyproject.toml"},
	}
	if !reflect.DeepEqual(techs, wantTechs) {
		t.Errorf("technologies = %v, want %v", techs, wantTechs)
	}

	wantConstraints := []string{
		"Python >=3.10", "fastapi>=0.100", "uvicorn", "Python ^3.10", "redis ^5.0",
	}
	if !reflect.DeepEqual(constraints, wantConstraints) {
		t.Errorf("constraints = %v, want %v", constraints, wantConstraints)
	}
}

func TestThemeDetector_GoModAndPackageJSON(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"go.mod": `module example.com/svc

go 1.22

require (
	github.com/gin-gonic/gin v1.10.0
	golang.org/x/sync v0.7.0 // indirect
)
`,
		"package.json": `{
  "dependencies": {"express": "^4.18.2", "axios": "^1.6.0"},
  "engines": {"node": ">=18"}
}
`,
	})

	d := NewThemeDetector(nil)
	techs, constraints, diags := d.DetectTechnologies([]string{root})
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}

	wantTechs := []Technology{
		{Name: "github.com/gin-gonic/gin", Version: "v1.10.0", Source: "go.mod"},
		{Name: "axios", Version: "^1.6.0", Source: "package.json"},
		{Name: "express", Version: "^4.18.2", Source: "package.json"},
	}
	if !reflect.DeepEqual(techs, wantTechs) {
		t.Errorf("technologies = %v, want %v", techs, wantTechs)
	}

	wantConstraints := []string{
		"Go 1.22",
		"github.com/gin-gonic/gin v1.10.0",
		"Node >=18",
		"axios ^1.6.0",
		"express ^4.18.2",
	}
	if !reflect.DeepEqual(constraints, wantConstraints) {
		t.Errorf("constraints = %v, want %v", constraints, wantConstraints)
	}
}

func TestThemeDetector_InvalidManifest(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"pyproject.toml": "[project\nbroken",
	})

	d := NewThemeDetector(nil)
	techs, constraints, diags := d.DetectTechnologies([]string{root})
	if len(diags) != 1 || diags[0].Kind != DiagParseError || diags[0].File != "pyproject.toml" {
		t.Fatalf("expected one ParseError for pyproject.toml, got %v", diags)
	}
	if len(techs) != 0 {
		t.Errorf("unexpected technologies: %v", techs)
	}
	// The broken manifest yielded nothing, so the default constraint applies.
	if !reflect.DeepEqual(constraints, DefaultConstraints) {
		t.Errorf("constraints = %v, want defaults", constraints)
	}
}

func TestThemeDetector_DefaultConstraints(t *testing.T) {
	d := NewThemeDetector(nil)
	techs, constraints, diags := d.DetectTechnologies([]string{t.TempDir()})
	if len(techs) != 0 || len(diags) != 0 {
		t.Fatalf("expected empty detection, got techs=%v diags=%v", techs, diags)
	}
	if !reflect.DeepEqual(constraints, DefaultConstraints) {
		t.Errorf("constraints = %v, want %v", constraints, DefaultConstraints)
	}
}

func TestThemeDetector_MultipleRoots(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	writeTree(t, rootA, map[string]string{"requirements.txt": "flask==2.0.1\n"})
	writeTree(t, rootB, map[string]string{"requirements.txt": "celery==5.3.0\n"})

	d := NewThemeDetector(nil)
	techs, _, _ := d.DetectTechnologies([]string{rootA, rootB})
	if len(techs) != 2 {
		t.Fatalf("expected one technology per root, got %v", techs)
	}
	if techs[0].Name != "flask" || techs[1].Name != "celery" {
		t.Errorf("root order not preserved: %v", techs)
	}
}
