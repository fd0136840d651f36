// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/unearth/services/spec/extract"
)

var (
	headingStyle    = lipgloss.NewStyle().Bold(true)
	keyStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
	dimStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	warnStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	sectionStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	bulletStyle     = lipgloss.NewStyle().PaddingLeft(2)
	subBulletStyle  = lipgloss.NewStyle().PaddingLeft(4)
	scenarioLabels  = []string{"Primary", "Alternate", "Exception", "Recovery"}
	validFormats    = []string{"summary", "json", "yaml"}
	errBadFormat    = fmt.Errorf("format must be one of %s", strings.Join(validFormats, ", "))
	modelJSONIndent = "  "
)

// writeModel renders the model to w in the requested format.
func writeModel(w io.Writer, model *extract.SpecModel, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", modelJSONIndent)
		return enc.Encode(model)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer func() { _ = enc.Close() }()
		return enc.Encode(model)
	case "summary", "":
		_, err := io.WriteString(w, renderSummary(model))
		return err
	default:
		return errBadFormat
	}
}

// renderSummary produces the human-readable digest printed by default:
// one line per feature with its stories indented beneath, then themes,
// scope, and diagnostics.
func renderSummary(m *extract.SpecModel) string {
	var b strings.Builder

	scope := "full tree"
	if !m.Scope.Full {
		scope = "entry " + m.Scope.EntryPath
	}
	fmt.Fprintf(&b, "%s\n", headingStyle.Render(fmt.Sprintf(
		"%d features from %d files (%s, threshold %.2f)",
		len(m.Features), m.Stats.FilesParsed, scope, m.ConfidenceThreshold)))
	if m.Incomplete {
		fmt.Fprintf(&b, "%s\n", warnStyle.Render("run interrupted: model is partial"))
	}
	b.WriteString("\n")

	for _, f := range m.Features {
		fmt.Fprintf(&b, "%s  %s  %s\n",
			keyStyle.Render(f.Key),
			f.Title,
			dimStyle.Render(fmt.Sprintf("%.2f  %s:%d", f.Confidence, f.SourceFile, f.Line)))
		for _, s := range f.Stories {
			fmt.Fprintf(&b, "%s\n", bulletStyle.Render(fmt.Sprintf(
				"%s (%dsp/%dvp, %d tasks)", s.Title, s.StoryPoints, s.ValuePoints, len(s.Tasks))))
		}
	}

	if len(m.Themes.Themes) > 0 {
		fmt.Fprintf(&b, "\n%s %s\n", sectionStyle.Render("Themes:"),
			strings.Join(m.Themes.Themes, ", "))
	}
	if len(m.Themes.Technologies) > 0 {
		names := make([]string, len(m.Themes.Technologies))
		for i, t := range m.Themes.Technologies {
			names[i] = t.Name
			if t.Version != "" {
				names[i] += " " + t.Version
			}
		}
		fmt.Fprintf(&b, "%s %s\n", sectionStyle.Render("Technologies:"),
			strings.Join(names, ", "))
	}
	if len(m.Scope.Externals) > 0 {
		fmt.Fprintf(&b, "%s\n", sectionStyle.Render("External dependencies:"))
		for _, ext := range m.Scope.Externals {
			fmt.Fprintf(&b, "%s\n", bulletStyle.Render(fmt.Sprintf(
				"%s -> %s (%d importers)", ext.Module, ext.ResolvedPath, len(ext.ImportedBy))))
		}
	}
	if len(m.Diagnostics) > 0 {
		fmt.Fprintf(&b, "%s\n", warnStyle.Render(fmt.Sprintf("Diagnostics (%d):", len(m.Diagnostics))))
		for _, d := range m.Diagnostics {
			fmt.Fprintf(&b, "%s\n", bulletStyle.Render(fmt.Sprintf("%s: %s: %s", d.Kind, d.File, d.Message)))
		}
	}

	fmt.Fprintf(&b, "\n%s\n", dimStyle.Render(fmt.Sprintf(
		"walked %d, parsed %d, failed %d, declarations %d, retained %d, %s",
		m.Stats.FilesWalked, m.Stats.FilesParsed, m.Stats.FilesFailed,
		m.Stats.DeclarationsSeen, m.Stats.DeclarationsRetained,
		m.Stats.Duration.Round(time.Millisecond))))
	return b.String()
}

// renderFeatureDetail expands one feature for the browse detail pane.
func renderFeatureDetail(f *extract.Feature) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n%s\n\n", headingStyle.Render(f.Title),
		dimStyle.Render(fmt.Sprintf("%s  confidence %.2f  %s:%d", f.Key, f.Confidence, f.SourceFile, f.Line)))

	if len(f.Outcomes) > 0 {
		fmt.Fprintf(&b, "%s\n", sectionStyle.Render("Outcomes"))
		for _, o := range f.Outcomes {
			fmt.Fprintf(&b, "%s\n", bulletStyle.Render("- "+o))
		}
		b.WriteString("\n")
	}
	if len(f.Acceptance) > 0 {
		fmt.Fprintf(&b, "%s\n", sectionStyle.Render("Acceptance"))
		for _, a := range f.Acceptance {
			fmt.Fprintf(&b, "%s\n", bulletStyle.Render("- "+a))
		}
		b.WriteString("\n")
	}

	for _, s := range f.Stories {
		fmt.Fprintf(&b, "%s %s\n", sectionStyle.Render("Story:"),
			fmt.Sprintf("%s (%dsp/%dvp)", s.Title, s.StoryPoints, s.ValuePoints))
		if len(s.Tasks) > 0 {
			fmt.Fprintf(&b, "%s\n", bulletStyle.Render("Tasks: "+strings.Join(s.Tasks, ", ")))
		}
		for _, a := range s.Acceptance {
			fmt.Fprintf(&b, "%s\n", bulletStyle.Render("- "+a))
		}
		buckets := [][]string{s.Scenarios.Primary, s.Scenarios.Alternate, s.Scenarios.Exception, s.Scenarios.Recovery}
		for i, bucket := range buckets {
			if len(bucket) == 0 {
				continue
			}
			fmt.Fprintf(&b, "%s\n", bulletStyle.Render(scenarioLabels[i]+":"))
			for _, sc := range bucket {
				fmt.Fprintf(&b, "%s\n", subBulletStyle.Render("- "+sc))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}
