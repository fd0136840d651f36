// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extract turns a source tree into a specification model: Features
// derived from class declarations, Stories grouping their methods, and
// Scenarios phrasing each method's control-flow paths in plain language.
//
// The pipeline is walker → parser → scorer → grouper → assembler, with a
// global theme pass over the same file set. Every stage is a pure function
// of its inputs; per-file work runs in parallel and a single deterministic
// reducer merges the partial results, so two runs over an unmodified tree
// produce structurally identical models.
package extract

import (
	"time"
)

// DiagnosticKind classifies a per-file diagnostic. The set is closed.
type DiagnosticKind string

const (
	// DiagFileUnreadable marks a file or directory that could not be read.
	DiagFileUnreadable DiagnosticKind = "FileUnreadable"

	// DiagParseError marks a file whose content failed to parse.
	DiagParseError DiagnosticKind = "ParseError"
)

// Diagnostic records one non-fatal per-file failure. Diagnostics never
// abort a run; they ride along with the model so callers can surface them
// as warnings.
type Diagnostic struct {
	Kind    DiagnosticKind `json:"kind" yaml:"kind"`
	File    string         `json:"file" yaml:"file"`
	Message string         `json:"message" yaml:"message"`
}

// Scenarios is the four-category scenario map of one Story. All four
// categories are always present in serialized output; the lists may be
// empty but never null.
type Scenarios struct {
	// Primary describes the main success paths.
	Primary []string `json:"primary" yaml:"primary"`

	// Alternate describes else/elif branches.
	Alternate []string `json:"alternate" yaml:"alternate"`

	// Exception describes caught-exception paths.
	Exception []string `json:"exception" yaml:"exception"`

	// Recovery describes cleanup and retry paths.
	Recovery []string `json:"recovery" yaml:"recovery"`
}

// NewScenarios returns an empty Scenarios with all four lists allocated, so
// JSON/YAML marshaling emits [] rather than null.
func NewScenarios() Scenarios {
	return Scenarios{
		Primary:   []string{},
		Alternate: []string{},
		Exception: []string{},
		Recovery:  []string{},
	}
}

// Append concatenates another Scenarios into s, preserving order. Used when
// several methods contribute to one Story.
func (s *Scenarios) Append(other Scenarios) {
	s.Primary = append(s.Primary, other.Primary...)
	s.Alternate = append(s.Alternate, other.Alternate...)
	s.Exception = append(s.Exception, other.Exception...)
	s.Recovery = append(s.Recovery, other.Recovery...)
}

// Entries returns the total number of scenario strings across all four
// categories.
func (s *Scenarios) Entries() int {
	return len(s.Primary) + len(s.Alternate) + len(s.Exception) + len(s.Recovery)
}

// NonEmptyCategories returns how many of the four categories hold at least
// one entry.
func (s *Scenarios) NonEmptyCategories() int {
	n := 0
	for _, list := range [][]string{s.Primary, s.Alternate, s.Exception, s.Recovery} {
		if len(list) > 0 {
			n++
		}
	}
	return n
}

// Story is one cohesive group of methods within a Feature.
type Story struct {
	// Key is the story's slug, unique within the model.
	Key string `json:"key" yaml:"key"`

	// Title is the user-centric phrasing ("As a user, I can ...").
	Title string `json:"title" yaml:"title"`

	// Acceptance entries are seeded from the grouped methods' docstrings:
	// the first sentence of each, or the whole docstring when it has no
	// sentence structure.
	Acceptance []string `json:"acceptance" yaml:"acceptance"`

	// Tasks are the grouped methods as call signatures, e.g. "create_record()".
	Tasks []string `json:"tasks" yaml:"tasks"`

	// StoryPoints and ValuePoints are always set, always drawn from the
	// Fibonacci set {1, 2, 3, 5, 8, 13, 21}.
	StoryPoints int `json:"story_points" yaml:"story_points"`
	ValuePoints int `json:"value_points" yaml:"value_points"`

	// Scenarios is the merged four-category map of every grouped method.
	Scenarios Scenarios `json:"scenarios" yaml:"scenarios"`
}

// Feature is the capability derived from one retained declaration.
type Feature struct {
	// Key is the slug derived from the declaration name, unique within
	// the model (collisions get a numeric suffix).
	Key string `json:"key" yaml:"key"`

	// Title is the humanized declaration name.
	Title string `json:"title" yaml:"title"`

	// Outcomes are doc-derived: the leading sentences of the declaration
	// docstring. Empty when the declaration has no docstring.
	Outcomes []string `json:"outcomes" yaml:"outcomes"`

	// Acceptance holds bullet entries lifted from the docstring, or a
	// single generated entry when the docstring has none.
	Acceptance []string `json:"acceptance" yaml:"acceptance"`

	// Confidence is the scorer's value in [0,1] for this declaration.
	Confidence float64 `json:"confidence" yaml:"confidence"`

	// SourceFile and Line locate the declaration for downstream
	// consumers (root-relative, forward slashes).
	SourceFile string `json:"source_file" yaml:"source_file"`
	Line       int    `json:"line" yaml:"line"`

	// Stories are the grouped capabilities, in grouping order.
	Stories []*Story `json:"stories" yaml:"stories"`
}

// Technology is one dependency discovered in a manifest.
type Technology struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`

	// Source is the manifest file the entry came from.
	Source string `json:"source" yaml:"source"`
}

// ThemeSet aggregates the global theme and technology pass.
type ThemeSet struct {
	// Themes are the detected theme tags (Async, CLI, Database, API,
	// Security, Validation, Caching), sorted.
	Themes []string `json:"themes" yaml:"themes"`

	// Technologies lists manifest-declared dependencies.
	Technologies []Technology `json:"technologies" yaml:"technologies"`

	// Constraints is the technology-constraint list rendered from the
	// manifests, or the fixed default set when no manifest was found.
	Constraints []string `json:"constraints" yaml:"constraints"`
}

// ExternalDependency is an import from an in-scope file that resolves to a
// tree file outside the entry-point subtree. Recorded, never an error.
type ExternalDependency struct {
	// Module is the imported module path as written.
	Module string `json:"module" yaml:"module"`

	// ResolvedPath is the root-relative file the module resolved to.
	ResolvedPath string `json:"resolved_path" yaml:"resolved_path"`

	// ImportedBy lists the in-scope files that import it, sorted.
	ImportedBy []string `json:"imported_by" yaml:"imported_by"`
}

// ScopeMetadata records whether the run covered the whole tree or an
// entry-point subtree, and which imports escaped that subtree.
type ScopeMetadata struct {
	// Full is true when no entry point restricted the analysis.
	Full bool `json:"full" yaml:"full"`

	// EntryPath is the root-relative entry-point subtree ("" when Full).
	EntryPath string `json:"entry_path,omitempty" yaml:"entry_path,omitempty"`

	// Externals are the subtree-escaping imports (partial mode only).
	Externals []ExternalDependency `json:"externals" yaml:"externals"`
}

// Stats summarizes one run.
type Stats struct {
	FilesWalked          int           `json:"files_walked" yaml:"files_walked"`
	FilesParsed          int           `json:"files_parsed" yaml:"files_parsed"`
	FilesFailed          int           `json:"files_failed" yaml:"files_failed"`
	DeclarationsSeen     int           `json:"declarations_seen" yaml:"declarations_seen"`
	DeclarationsRetained int           `json:"declarations_retained" yaml:"declarations_retained"`
	Duration             time.Duration `json:"duration_ns" yaml:"duration_ns"`
}

// SpecModel is the final aggregate of one extraction run.
//
// Description:
//
//	The model is immutable once returned. Features are ordered by source
//	file path, then by declaration order within the file, so output never
//	depends on worker completion order. Zero retained Features is a valid
//	result, not an error.
type SpecModel struct {
	// RunID uniquely identifies the run.
	RunID string `json:"run_id" yaml:"run_id"`

	// Roots are the analyzed root paths as given by the caller.
	Roots []string `json:"roots" yaml:"roots"`

	// GeneratedAt is the run start time (UTC).
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`

	// ConfidenceThreshold is the threshold the run actually used.
	ConfidenceThreshold float64 `json:"confidence_threshold" yaml:"confidence_threshold"`

	// Features are the retained capabilities in deterministic order.
	Features []*Feature `json:"features" yaml:"features"`

	// Themes is the global theme/technology aggregate.
	Themes ThemeSet `json:"themes" yaml:"themes"`

	// Scope records full-vs-partial coverage and external dependencies.
	Scope ScopeMetadata `json:"scope" yaml:"scope"`

	// Diagnostics are the per-file failures, ordered by file path.
	Diagnostics []Diagnostic `json:"diagnostics" yaml:"diagnostics"`

	// Stats summarizes the run.
	Stats Stats `json:"stats" yaml:"stats"`

	// Incomplete is true when the run was cancelled before every file in
	// scope was processed. The model then holds the union of the file
	// units that did complete.
	Incomplete bool `json:"incomplete" yaml:"incomplete"`
}
