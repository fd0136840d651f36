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
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/AleutianAI/unearth/services/spec/ast"
)

// fileResult is one worker's partial output for one file. Partials are
// immutable once produced and owned by the worker until the assembler
// merges them; nothing is shared between in-flight units.
type fileResult struct {
	// path is the file's display path: root-relative with forward
	// slashes, prefixed with the root's base name in multi-root runs.
	path string

	features  []*Feature
	themes    []string
	imports   []ast.Import
	diags     []Diagnostic
	declsSeen int
	parsed    bool
}

// scopeIndex supports external-dependency resolution: the display paths of
// every candidate file (in scope or not), the root display prefixes, and
// the entry subtree.
type scopeIndex struct {
	// files holds every walked candidate's display path.
	files map[string]struct{}

	// rootPrefixes are the display prefixes to try for absolute imports;
	// a single-root run uses one empty prefix.
	rootPrefixes []string

	// entry is the entry subtree's display path, "" for a full run.
	entry string
}

func (s *scopeIndex) inScope(display string) bool {
	if s.entry == "" {
		return true
	}
	return display == s.entry || strings.HasPrefix(display, s.entry+"/")
}

// resolve maps one import to a tree file, Python-style: "pkg.mod" becomes
// pkg/mod.py or pkg/mod/__init__.py under a root; relative imports walk up
// from the importing file's package. from-imports also try each imported
// name as a submodule. Imports that match nothing (stdlib, third-party)
// simply do not resolve.
func (s *scopeIndex) resolve(imp ast.Import, fromDisplay string) (string, bool) {
	if imp.IsRelative {
		dots := 0
		for dots < len(imp.Module) && imp.Module[dots] == '.' {
			dots++
		}
		dir := path.Dir(fromDisplay)
		for i := 1; i < dots; i++ {
			dir = path.Dir(dir)
		}
		if dir == "." {
			dir = ""
		}
		return s.tryCandidates(dir, strings.TrimLeft(imp.Module, "."), imp.Names)
	}

	for _, prefix := range s.rootPrefixes {
		if resolved, ok := s.tryCandidates(prefix, imp.Module, imp.Names); ok {
			return resolved, true
		}
	}
	return "", false
}

func (s *scopeIndex) tryCandidates(dir, module string, names []string) (string, bool) {
	base := strings.ReplaceAll(module, ".", "/")
	var candidates []string
	if base != "" {
		candidates = append(candidates,
			path.Join(dir, base)+".py",
			path.Join(dir, base, "__init__.py"))
	}
	for _, name := range names {
		sub := strings.ReplaceAll(name, ".", "/")
		candidates = append(candidates, path.Join(dir, base, sub)+".py")
	}
	for _, c := range candidates {
		if _, ok := s.files[c]; ok {
			return c, true
		}
	}
	return "", false
}

// Assembler merges per-file partial results into the final model.
//
// The merge is the run's single synchronization point: results are sorted
// by file path, feature and story keys are made unique, theme tags are
// unioned, diagnostics are ordered, and scope externals are resolved. The
// output is a pure function of the partials, never of worker completion
// order.
type Assembler struct{}

// NewAssembler creates an Assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Assemble merges the completed file units into model in place. walkDiags
// carries the walker's and manifest pass's diagnostics; model.Themes may
// already hold technologies and constraints, which are preserved.
func (a *Assembler) Assemble(model *SpecModel, results []*fileResult, index *scopeIndex, walkDiags []Diagnostic) {
	sort.Slice(results, func(i, j int) bool { return results[i].path < results[j].path })

	themeSet := map[string]struct{}{}
	diags := append([]Diagnostic{}, walkDiags...)
	usedKeys := map[string]struct{}{}
	features := []*Feature{}

	for _, res := range results {
		diags = append(diags, res.diags...)
		for _, t := range res.themes {
			themeSet[t] = struct{}{}
		}
		model.Stats.DeclarationsSeen += res.declsSeen
		if res.parsed {
			model.Stats.FilesParsed++
		}

		for _, f := range res.features {
			f.Key = uniqueKey(f.Key, usedKeys)
			for _, st := range f.Stories {
				st.Key = uniqueKey(st.Key, usedKeys)
			}
			features = append(features, f)
		}
	}

	model.Features = features
	model.Stats.DeclarationsRetained = len(features)
	model.Themes.Themes = sortedThemes(themeSet)
	if model.Themes.Technologies == nil {
		model.Themes.Technologies = []Technology{}
	}
	if model.Themes.Constraints == nil {
		model.Themes.Constraints = []string{}
	}

	model.Scope.Externals = a.resolveExternals(results, index)
	model.Scope.Full = index.entry == ""
	model.Scope.EntryPath = index.entry

	sort.Slice(diags, func(i, j int) bool {
		if diags[i].File != diags[j].File {
			return diags[i].File < diags[j].File
		}
		if diags[i].Kind != diags[j].Kind {
			return diags[i].Kind < diags[j].Kind
		}
		return diags[i].Message < diags[j].Message
	})
	model.Diagnostics = diags

	fileFailures := 0
	for _, d := range diags {
		if strings.HasSuffix(d.File, ".py") {
			fileFailures++
		}
	}
	model.Stats.FilesFailed = fileFailures
}

// resolveExternals records every import of an in-scope file that resolves
// to a tree file outside the entry subtree. Full runs have no externals by
// definition.
func (a *Assembler) resolveExternals(results []*fileResult, index *scopeIndex) []ExternalDependency {
	externals := []ExternalDependency{}
	if index.entry == "" {
		return externals
	}

	type key struct{ module, resolved string }
	byTarget := map[key]map[string]struct{}{}

	for _, res := range results {
		for _, imp := range res.imports {
			resolved, ok := index.resolve(imp, res.path)
			if !ok || index.inScope(resolved) {
				continue
			}
			k := key{module: imp.Module, resolved: resolved}
			if byTarget[k] == nil {
				byTarget[k] = map[string]struct{}{}
			}
			byTarget[k][res.path] = struct{}{}
		}
	}

	for k, importers := range byTarget {
		by := make([]string, 0, len(importers))
		for f := range importers {
			by = append(by, f)
		}
		sort.Strings(by)
		externals = append(externals, ExternalDependency{
			Module:       k.module,
			ResolvedPath: k.resolved,
			ImportedBy:   by,
		})
	}

	sort.Slice(externals, func(i, j int) bool {
		if externals[i].Module != externals[j].Module {
			return externals[i].Module < externals[j].Module
		}
		return externals[i].ResolvedPath < externals[j].ResolvedPath
	})
	return externals
}

// uniqueKey reserves key in used, appending -2, -3, ... on collision.
func uniqueKey(key string, used map[string]struct{}) string {
	if _, taken := used[key]; !taken {
		used[key] = struct{}{}
		return key
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", key, n)
		if _, taken := used[candidate]; !taken {
			used[candidate] = struct{}{}
			return candidate
		}
	}
}
