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
	"unicode"
)

// splitIdentifier splits a source identifier into lowercase words, handling
// snake_case, camelCase, PascalCase, dotted names, and acronym runs
// ("HTTPServer" → ["http", "server"]).
func splitIdentifier(name string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = nil
		}
	}

	runes := []rune(name)
	for i, r := range runes {
		switch {
		case r == '_' || r == '.' || r == '-' || r == ' ':
			flush()
		case unicode.IsUpper(r):
			prevLower := i > 0 && unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			// Boundary before an Upper that follows a lower, or before
			// the last Upper of an acronym run ("HTTPServer" → ...P|Se).
			if prevLower || (len(cur) > 0 && nextLower && unicode.IsUpper(runes[i-1])) {
				flush()
			}
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return words
}

// slugify renders an identifier as a lower-kebab slug:
// "DocumentedService" → "documented-service", "Outer.Inner" → "outer-inner".
func slugify(name string) string {
	words := splitIdentifier(name)
	if len(words) == 0 {
		return "unnamed"
	}
	return strings.Join(words, "-")
}

// humanize renders an identifier as space-separated lowercase words.
func humanize(name string) string {
	return strings.Join(splitIdentifier(name), " ")
}

// titleize renders an identifier as space-separated capitalized words:
// "documented_service" → "Documented Service".
func titleize(name string) string {
	words := splitIdentifier(name)
	for i, w := range words {
		if w == "" {
			continue
		}
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// normalizeDoc collapses a docstring's interior whitespace to single spaces.
func normalizeDoc(doc string) string {
	return strings.Join(strings.Fields(doc), " ")
}

// splitSentences splits prose on sentence-ending punctuation followed by a
// space or end of text. Punctuation stays with its sentence.
func splitSentences(text string) []string {
	text = normalizeDoc(text)
	if text == "" {
		return nil
	}
	var out []string
	start := 0
	runes := []rune(text)
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && runes[i+1] != ' ' {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

// firstSentence returns a docstring's first sentence, or the whole
// normalized docstring when it has no sentence structure.
func firstSentence(doc string) string {
	sentences := splitSentences(doc)
	if len(sentences) == 0 {
		return ""
	}
	return sentences[0]
}

// leadingSentences returns up to max sentences from the start of a
// docstring.
func leadingSentences(doc string, max int) []string {
	sentences := splitSentences(doc)
	if len(sentences) > max {
		sentences = sentences[:max]
	}
	return sentences
}

// docBullets extracts "- item" / "* item" lines from a raw docstring.
func docBullets(doc string) []string {
	var out []string
	for _, line := range strings.Split(doc, "\n") {
		line = strings.TrimSpace(line)
		if len(line) < 2 {
			continue
		}
		if (line[0] == '-' || line[0] == '*') && line[1] == ' ' {
			if item := strings.TrimSpace(line[2:]); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}
