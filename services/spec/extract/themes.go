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
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"golang.org/x/mod/modfile"

	"github.com/AleutianAI/unearth/services/spec/ast"
)

// DefaultConstraints is the fixed fallback used when no dependency manifest
// is found (or none could be read).
var DefaultConstraints = []string{"Python 3 runtime required"}

// manifestNames are the dependency manifests probed at each root's top
// level, in detection order.
var manifestNames = []string{
	"requirements.txt",
	"pyproject.toml",
	"go.mod",
	"package.json",
}

// ThemeDetector tags themes from imports and route decorators, and derives
// technology constraints from dependency manifests.
//
// Theme detection is per-file and side-effect free, so workers call
// ThemesFor in parallel and the assembler unions the results. Manifest
// detection is a separate single pass over the root directories.
type ThemeDetector struct {
	heuristics *Heuristics
}

// NewThemeDetector creates a ThemeDetector. A nil heuristics falls back to
// the defaults.
func NewThemeDetector(h *Heuristics) *ThemeDetector {
	if h == nil {
		h = DefaultHeuristics()
	}
	return &ThemeDetector{heuristics: h}
}

// ThemesFor returns the theme tags one parsed file contributes: import
// modules matched against the keyword table, plus the API tag when any
// member carries a route-like decorator.
func (d *ThemeDetector) ThemesFor(res *ast.ParseResult) []string {
	set := map[string]struct{}{}
	for _, imp := range res.Imports {
		if tag, ok := d.heuristics.ThemeForImport(imp.Module); ok {
			set[tag] = struct{}{}
		}
	}
	for _, decl := range res.Declarations {
		for _, dec := range decl.Decorators {
			if tag, ok := d.heuristics.ThemeForDecorator(dec); ok {
				set[tag] = struct{}{}
			}
		}
		for _, m := range decl.Members {
			for _, dec := range m.Decorators {
				if tag, ok := d.heuristics.ThemeForDecorator(dec); ok {
					set[tag] = struct{}{}
				}
			}
		}
	}
	return sortedThemes(set)
}

// DetectTechnologies probes each root's top level for dependency manifests
// and renders the technology-constraint list. A missing manifest is normal;
// an unreadable or unparsable one degrades to a diagnostic. When nothing
// was detected at all, the fixed default constraint set applies.
func (d *ThemeDetector) DetectTechnologies(roots []string) ([]Technology, []string, []Diagnostic) {
	var (
		techs       []Technology
		constraints []string
		diags       []Diagnostic
	)

	for _, root := range roots {
		for _, name := range manifestNames {
			path := filepath.Join(root, name)
			data, err := os.ReadFile(path)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				diags = append(diags, Diagnostic{
					Kind:    DiagFileUnreadable,
					File:    name,
					Message: err.Error(),
				})
				continue
			}

			var (
				t []Technology
				c []string
			)
			switch name {
			case "requirements.txt":
				t, c = parseRequirements(data)
			case "pyproject.toml":
				t, c, err = parsePyproject(data)
			case "go.mod":
				t, c, err = parseGoMod(path, data)
			case "package.json":
				t, c, err = parsePackageJSON(data)
			}
			if err != nil {
				diags = append(diags, Diagnostic{
					Kind:    DiagParseError,
					File:    name,
					Message: err.Error(),
				})
				continue
			}
			techs = append(techs, t...)
			constraints = append(constraints, c...)
		}
	}

	if len(techs) == 0 && len(constraints) == 0 {
		constraints = append(constraints, DefaultConstraints...)
	}
	return techs, constraints, diags
}

// parseRequirements reads a pip requirements file. Comment, blank, include,
// and flag lines are skipped; everything else is one dependency.
func parseRequirements(data []byte) ([]Technology, []string) {
	var (
		techs       []Technology
		constraints []string
	)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		if i := strings.IndexByte(line, '#'); i > 0 {
			line = strings.TrimSpace(line[:i])
		}
		name, version := splitRequirement(line)
		if name == "" {
			continue
		}
		techs = append(techs, Technology{Name: name, Version: version, Source: "requirements.txt"})
		constraints = append(constraints, line)
	}
	return techs, constraints
}

// splitRequirement splits "flask[async]==2.0.1" into ("flask", "2.0.1").
// Non-pinned specifiers keep their operators in the version field.
func splitRequirement(line string) (name, version string) {
	cut := len(line)
	for i, r := range line {
		if strings.ContainsRune("=<>!~; [", r) {
			cut = i
			break
		}
	}
	name = strings.TrimSpace(line[:cut])
	rest := strings.TrimSpace(line[cut:])
	if i := strings.IndexByte(rest, ']'); i >= 0 && strings.HasPrefix(rest, "[") {
		rest = strings.TrimSpace(rest[i+1:])
	}
	version = strings.TrimPrefix(rest, "==")
	return name, strings.TrimSpace(version)
}

// pyprojectFile mirrors the subset of pyproject.toml the detector reads:
// PEP 621 project metadata plus Poetry's dependency table.
type pyprojectFile struct {
	Project struct {
		Name           string   `toml:"name"`
		RequiresPython string   `toml:"requires-python"`
		Dependencies   []string `toml:"dependencies"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Dependencies map[string]interface{} `toml:"dependencies"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

func parsePyproject(data []byte) ([]Technology, []string, error) {
	var pf pyprojectFile
	if err := toml.Unmarshal(data, &pf); err != nil {
		return nil, nil, err
	}

	var (
		techs       []Technology
		constraints []string
	)
	if pf.Project.RequiresPython != "" {
		constraints = append(constraints, "Python "+pf.Project.RequiresPython)
	}
	for _, dep := range pf.Project.Dependencies {
		name, version := splitRequirement(dep)
		if name == "" {
			continue
		}
		techs = append(techs, Technology{Name: name, Version: version, Source: "pyproject.toml"})
		constraints = append(constraints, dep)
	}

	// Poetry pins "python" alongside real dependencies; surface it as a
	// runtime constraint instead of a technology.
	poetry := make([]string, 0, len(pf.Tool.Poetry.Dependencies))
	for name := range pf.Tool.Poetry.Dependencies {
		poetry = append(poetry, name)
	}
	sort.Strings(poetry)
	for _, name := range poetry {
		version := ""
		if v, ok := pf.Tool.Poetry.Dependencies[name].(string); ok {
			version = v
		}
		if strings.EqualFold(name, "python") {
			if version != "" {
				constraints = append(constraints, "Python "+version)
			}
			continue
		}
		techs = append(techs, Technology{Name: name, Version: version, Source: "pyproject.toml"})
		if version != "" {
			constraints = append(constraints, name+" "+version)
		} else {
			constraints = append(constraints, name)
		}
	}
	return techs, constraints, nil
}

func parseGoMod(path string, data []byte) ([]Technology, []string, error) {
	f, err := modfile.Parse(path, data, nil)
	if err != nil {
		return nil, nil, err
	}

	var (
		techs       []Technology
		constraints []string
	)
	if f.Go != nil && f.Go.Version != "" {
		constraints = append(constraints, "Go "+f.Go.Version)
	}
	for _, r := range f.Require {
		if r.Indirect {
			continue
		}
		techs = append(techs, Technology{Name: r.Mod.Path, Version: r.Mod.Version, Source: "go.mod"})
		constraints = append(constraints, r.Mod.Path+" "+r.Mod.Version)
	}
	return techs, constraints, nil
}

// packageJSONFile mirrors the subset of package.json the detector reads.
type packageJSONFile struct {
	Dependencies map[string]string `json:"dependencies"`
	Engines      map[string]string `json:"engines"`
}

func parsePackageJSON(data []byte) ([]Technology, []string, error) {
	var pj packageJSONFile
	if err := json.Unmarshal(data, &pj); err != nil {
		return nil, nil, err
	}

	var (
		techs       []Technology
		constraints []string
	)
	if node, ok := pj.Engines["node"]; ok && node != "" {
		constraints = append(constraints, "Node "+node)
	}
	names := make([]string, 0, len(pj.Dependencies))
	for name := range pj.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		version := pj.Dependencies[name]
		techs = append(techs, Technology{Name: name, Version: version, Source: "package.json"})
		constraints = append(constraints, name+" "+version)
	}
	return techs, constraints, nil
}
