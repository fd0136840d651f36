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
	"strings"

	"github.com/AleutianAI/unearth/services/spec/ast"
)

// Scoring weights. The four terms measure docstring presence, docstring
// depth, member documentation coverage, and public-surface size; they sum
// to 1.0 so the score stays in [0,1] without clamping surprises.
const (
	weightDocPresence   = 0.2
	weightDocLength     = 0.2
	weightMemberDocs    = 0.4
	weightPublicSurface = 0.2

	// docLengthNorm is the docstring length (in characters) considered
	// "fully documented" for the length term.
	docLengthNorm = 120.0

	// publicSurfaceNorm is the public member count considered a full
	// surface for the size term.
	publicSurfaceNorm = 5.0
)

// DefaultConfidenceThreshold retains declarations of middling quality while
// dropping bare, undocumented ones.
const DefaultConfidenceThreshold = 0.5

// Scorer rates a declaration's documentation and shape quality.
//
// The score is a weighted sum: docstring presence, docstring length
// (normalized at docLengthNorm), documented-member ratio, and public
// surface size (normalized at publicSurfaceNorm). Exclusion rules run
// before scoring and are unconditional: a private or test-named
// declaration never becomes a Feature regardless of threshold.
type Scorer struct {
	heuristics *Heuristics
}

// NewScorer creates a Scorer. A nil heuristics falls back to the defaults.
func NewScorer(h *Heuristics) *Scorer {
	if h == nil {
		h = DefaultHeuristics()
	}
	return &Scorer{heuristics: h}
}

// Excluded reports whether the declaration is dropped before scoring:
// private (leading-underscore) names, test-named classes, and classes
// consisting solely of test_* methods. Scaffolding members (setUp,
// tearDown, dunders) do not defeat the all-test rule.
func (s *Scorer) Excluded(d *ast.Declaration) bool {
	name := d.Name
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	if strings.HasPrefix(name, "_") {
		return true
	}
	if s.heuristics.IsTestDeclaration(d.Name) {
		return true
	}
	tests := 0
	for _, m := range d.Members {
		switch {
		case s.heuristics.IsTestMethod(m.Name):
			tests++
		case s.heuristics.IsTestScaffold(m.Name):
		default:
			return false
		}
	}
	return tests > 0
}

// Score computes the confidence value in [0,1].
func (s *Scorer) Score(d *ast.Declaration) float64 {
	var docPresence, docLength float64
	if d.Doc != "" {
		docPresence = 1
		docLength = float64(len(d.Doc)) / docLengthNorm
		if docLength > 1 {
			docLength = 1
		}
	}

	var memberDocs float64
	if len(d.Members) > 0 {
		documented := 0
		for _, m := range d.Members {
			if m.Doc != "" {
				documented++
			}
		}
		memberDocs = float64(documented) / float64(len(d.Members))
	}

	surface := float64(len(d.PublicMembers())) / publicSurfaceNorm
	if surface > 1 {
		surface = 1
	}

	score := weightDocPresence*docPresence +
		weightDocLength*docLength +
		weightMemberDocs*memberDocs +
		weightPublicSurface*surface
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Retain applies exclusion and the threshold filter in one step, returning
// the score for reporting. Raising the threshold can only shrink the
// retained set: retention is score >= threshold and nothing else.
func (s *Scorer) Retain(d *ast.Declaration, threshold float64) (float64, bool) {
	if s.Excluded(d) {
		return 0, false
	}
	score := s.Score(d)
	return score, score >= threshold
}
