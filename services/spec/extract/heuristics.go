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
	"sort"
	"strings"
)

// Heuristics bundles every fuzzy string-matching policy the pipeline uses:
// CRUD verb grouping, validation naming, retry markers, test naming,
// internal-utility naming, and theme keywords. Each method is a pure
// function over the tables, so policies can be tested in isolation and
// swapped wholesale via WithHeuristics without touching tree traversal.
type Heuristics struct {
	// CRUDVerbs maps method-name prefixes to verb classes, in priority
	// order. A method matches a class when its name equals a prefix or
	// starts with "<prefix>_".
	CRUDVerbs []VerbClass

	// ValidationPrefixes group methods into a single Validation story.
	ValidationPrefixes []string

	// RetryMarkers are substrings that, found in a loop-local identifier,
	// mark the loop as a retry construct.
	RetryMarkers []string

	// InternalMarkers flag a declaration as internal utility, switching
	// story titles from "As a user" to "As a developer".
	InternalMarkers []string

	// GroupingThreshold is the ungrouped-method count above which the
	// default one-story-per-method policy collapses into one catch-all
	// story.
	GroupingThreshold int

	// ThemeKeywords maps import-module prefixes to theme tags. Longest
	// prefix wins, so "django.db" can override "django".
	ThemeKeywords map[string]string

	// RouteDecoratorPrefixes mark a member decorator as a web route,
	// contributing the API theme.
	RouteDecoratorPrefixes []string
}

// VerbClass is one CRUD verb bucket.
type VerbClass struct {
	// Verb is the canonical verb used in story keys and titles.
	Verb string

	// Prefixes are the method-name prefixes that map to this verb.
	Prefixes []string
}

// DefaultHeuristics returns the built-in policy tables.
func DefaultHeuristics() *Heuristics {
	return &Heuristics{
		CRUDVerbs: []VerbClass{
			{Verb: "create", Prefixes: []string{"create", "add"}},
			{Verb: "get", Prefixes: []string{"get", "fetch", "retrieve", "list"}},
			{Verb: "update", Prefixes: []string{"update", "modify", "edit"}},
			{Verb: "delete", Prefixes: []string{"delete", "remove"}},
		},
		ValidationPrefixes: []string{"validate_", "is_valid", "check_"},
		RetryMarkers:       []string{"retry", "attempt", "backoff", "tries"},
		InternalMarkers: []string{
			"Helper", "Util", "Utils", "Internal", "Base", "Mixin", "Impl",
		},
		GroupingThreshold: 7,
		ThemeKeywords: map[string]string{
			"asyncio":      "Async",
			"trio":         "Async",
			"anyio":        "Async",
			"curio":        "Async",
			"argparse":     "CLI",
			"click":        "CLI",
			"typer":        "CLI",
			"docopt":       "CLI",
			"fire":         "CLI",
			"sqlalchemy":   "Database",
			"sqlite3":      "Database",
			"psycopg2":     "Database",
			"pymongo":      "Database",
			"peewee":       "Database",
			"django.db":    "Database",
			"flask":        "API",
			"fastapi":      "API",
			"django":       "API",
			"aiohttp":      "API",
			"requests":     "API",
			"httpx":        "API",
			"jwt":          "Security",
			"cryptography": "Security",
			"bcrypt":       "Security",
			"passlib":      "Security",
			"secrets":      "Security",
			"ssl":          "Security",
			"oauthlib":     "Security",
			"pydantic":     "Validation",
			"marshmallow":  "Validation",
			"jsonschema":   "Validation",
			"cerberus":     "Validation",
			"redis":        "Caching",
			"memcache":     "Caching",
			"cachetools":   "Caching",
			"diskcache":    "Caching",
		},
		RouteDecoratorPrefixes: []string{
			"app.route", "app.get", "app.post", "app.put", "app.delete",
			"app.patch", "router.", "blueprint.route", "bp.route", "api.",
		},
	}
}

// CRUDMatch returns the canonical CRUD verb for a method name, matching
// name == prefix or name starting with "<prefix>_". The remainder is the
// method name after the matched prefix ("create_record" → "record"), empty
// for a bare verb. CRUD matching runs before validation matching, so a name
// satisfying both grammars groups by verb.
func (h *Heuristics) CRUDMatch(method string) (verb, remainder string, ok bool) {
	lower := strings.ToLower(method)
	for _, vc := range h.CRUDVerbs {
		for _, p := range vc.Prefixes {
			if lower == p {
				return vc.Verb, "", true
			}
			if strings.HasPrefix(lower, p+"_") {
				return vc.Verb, method[len(p)+1:], true
			}
		}
	}
	return "", "", false
}

// ValidationMatch reports whether a method name matches the validation
// naming pattern, returning the subject after the matched prefix
// ("validate_email" → "email").
func (h *Heuristics) ValidationMatch(method string) (remainder string, ok bool) {
	lower := strings.ToLower(method)
	for _, p := range h.ValidationPrefixes {
		if strings.HasPrefix(lower, p) {
			return strings.TrimLeft(method[len(p):], "_"), true
		}
	}
	return "", false
}

// MatchesRetryMarker reports whether a loop-local identifier indicates a
// retry construct.
func (h *Heuristics) MatchesRetryMarker(ident string) bool {
	lower := strings.ToLower(ident)
	for _, m := range h.RetryMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// IsInternalUtility reports whether a declaration name marks the class as
// internal plumbing. Nested names are judged by their last segment.
func (h *Heuristics) IsInternalUtility(declName string) bool {
	name := declName
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	for _, m := range h.InternalMarkers {
		if strings.Contains(name, m) {
			return true
		}
	}
	return false
}

// IsTestDeclaration reports whether a declaration name follows test naming
// conventions. Nested names are judged by their last segment.
func (h *Heuristics) IsTestDeclaration(declName string) bool {
	name := declName
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return strings.HasPrefix(name, "Test")
}

// IsTestMethod reports whether a member name follows the test_* convention.
func (h *Heuristics) IsTestMethod(method string) bool {
	return strings.HasPrefix(method, "test_") || method == "test"
}

// IsTestScaffold reports whether a member name is unittest scaffolding
// (setUp/tearDown variants) or a dunder. Scaffolding members never count
// against the all-test exclusion rule.
func (h *Heuristics) IsTestScaffold(method string) bool {
	switch method {
	case "setUp", "tearDown", "setUpClass", "tearDownClass",
		"setUpModule", "tearDownModule":
		return true
	}
	return strings.HasPrefix(method, "__") && strings.HasSuffix(method, "__")
}

// ThemeForImport returns the theme tag for an import module path, if any.
// The longest matching table prefix wins.
func (h *Heuristics) ThemeForImport(module string) (string, bool) {
	if module == "" {
		return "", false
	}
	// Try the full dotted path first, then strip trailing segments.
	for m := module; m != ""; {
		if tag, ok := h.ThemeKeywords[m]; ok {
			return tag, true
		}
		i := strings.LastIndexByte(m, '.')
		if i < 0 {
			break
		}
		m = m[:i]
	}
	return "", false
}

// ThemeForDecorator returns the API theme when a member decorator looks
// like a web-framework route registration.
func (h *Heuristics) ThemeForDecorator(decorator string) (string, bool) {
	lower := strings.ToLower(decorator)
	for _, p := range h.RouteDecoratorPrefixes {
		if strings.HasPrefix(lower, p) {
			return "API", true
		}
	}
	return "", false
}

// sortedThemes renders a theme tag set as a sorted slice.
func sortedThemes(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
