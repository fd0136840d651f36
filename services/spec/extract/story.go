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
	"strings"

	"github.com/AleutianAI/unearth/services/spec/ast"
)

// fibonacciPoints is the fixed estimation scale. fibCeil never returns a
// value outside it.
var fibonacciPoints = []int{1, 2, 3, 5, 8, 13, 21}

// fibCeil returns the smallest Fibonacci point >= n, capped at 21.
func fibCeil(n int) int {
	for _, f := range fibonacciPoints {
		if n <= f {
			return f
		}
	}
	return fibonacciPoints[len(fibonacciPoints)-1]
}

// StoryGrouper clusters a retained declaration's public members into
// Stories.
//
// Grouping runs in priority order: CRUD verb classes first (one story per
// verb class present), then validation-named methods into a single story,
// then one story per remaining method — unless the remainder outgrows the
// grouping threshold, in which case they collapse into one catch-all
// story. The scenario extractor runs once per method; methods sharing a
// story concatenate into the same four-category map.
type StoryGrouper struct {
	heuristics *Heuristics
	scenarios  *ScenarioExtractor
}

// NewStoryGrouper creates a StoryGrouper. Nil arguments fall back to
// defaults.
func NewStoryGrouper(h *Heuristics, sx *ScenarioExtractor) *StoryGrouper {
	if h == nil {
		h = DefaultHeuristics()
	}
	if sx == nil {
		sx = NewScenarioExtractor(h)
	}
	return &StoryGrouper{heuristics: h, scenarios: sx}
}

// Group builds the ordered story list for one declaration. featureKey seeds
// the story keys; final global uniqueness is the assembler's concern.
func (g *StoryGrouper) Group(decl *ast.Declaration, featureKey string) []*Story {
	audience := "user"
	if g.heuristics.IsInternalUtility(decl.Name) {
		audience = "developer"
	}

	members := decl.PublicMembers()

	// Partition in priority order; a method lands in exactly one bucket.
	crud := make(map[string][]*ast.Member)
	crudObjects := make(map[string]string)
	var validation []*ast.Member
	validationObject := ""
	var rest []*ast.Member

	for _, m := range members {
		if verb, remainder, ok := g.heuristics.CRUDMatch(m.Name); ok {
			crud[verb] = append(crud[verb], m)
			if _, seen := crudObjects[verb]; !seen {
				crudObjects[verb] = humanize(remainder)
			}
			continue
		}
		if remainder, ok := g.heuristics.ValidationMatch(m.Name); ok {
			if validationObject == "" {
				validationObject = humanize(remainder)
			}
			validation = append(validation, m)
			continue
		}
		rest = append(rest, m)
	}

	subject := humanize(lastNameSegment(decl.Name))
	var stories []*Story

	// CRUD stories follow the verb table order so output is stable.
	for _, vc := range g.heuristics.CRUDVerbs {
		group, ok := crud[vc.Verb]
		if !ok {
			continue
		}
		object := crudObjects[vc.Verb]
		if object == "" {
			object = subject
		}
		title := fmt.Sprintf("As a %s, I can %s %s", audience, vc.Verb, object)
		stories = append(stories, g.buildStory(featureKey+"-"+vc.Verb, title, group))
	}

	if len(validation) > 0 {
		object := validationObject
		if object == "" {
			object = "inputs"
		}
		title := fmt.Sprintf("As a %s, I can validate %s", audience, object)
		stories = append(stories, g.buildStory(featureKey+"-validation", title, validation))
	}

	if len(rest) > g.heuristics.GroupingThreshold {
		title := fmt.Sprintf("As a %s, I can use %s", audience, subject)
		stories = append(stories, g.buildStory(featureKey+"-operations", title, rest))
	} else {
		for _, m := range rest {
			title := fmt.Sprintf("As a %s, I can %s", audience, humanize(m.Name))
			stories = append(stories, g.buildStory(featureKey+"-"+slugify(m.Name), title, []*ast.Member{m}))
		}
	}

	return stories
}

// buildStory assembles one story from its grouped members: tasks and
// acceptance in member order, scenarios concatenated per method, points
// derived from method count plus branch count.
func (g *StoryGrouper) buildStory(key, title string, members []*ast.Member) *Story {
	st := &Story{
		Key:        key,
		Title:      sanitizeScenario(title),
		Acceptance: []string{},
		Tasks:      []string{},
		Scenarios:  NewScenarios(),
	}

	for _, m := range members {
		st.Tasks = append(st.Tasks, m.Name+"()")
		if acc := firstSentence(m.Doc); acc != "" {
			st.Acceptance = append(st.Acceptance, acc)
		}
		st.Scenarios.Append(g.scenarios.Extract(m.Name, m.Body))
	}

	st.StoryPoints = fibCeil(len(members) + st.Scenarios.Entries())
	st.ValuePoints = fibCeil(len(members) + st.Scenarios.NonEmptyCategories())
	return st
}

// lastNameSegment returns the final segment of a dotted declaration name.
func lastNameSegment(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}
