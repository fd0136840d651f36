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
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/unearth/services/spec"
	"github.com/AleutianAI/unearth/services/spec/extract"
)

var (
	browseFrom  string
	browseEntry string
)

var browseCmd = &cobra.Command{
	Use:   "browse [path ...]",
	Short: "Browse an extracted model in an interactive terminal UI",
	Long: `Browse runs an extraction (or loads a saved model with --from) and opens
a two-pane terminal UI: a filterable feature list, and a detail view with
each feature's stories, tasks, and scenarios.

Keys: enter opens a feature, esc goes back, / filters, q quits.`,
	Args: cobra.ArbitraryArgs,
	Run:  runBrowseCommand,
}

func init() {
	browseCmd.Flags().StringVar(&browseFrom, "from", "", "Load a saved model (JSON) instead of extracting")
	browseCmd.Flags().StringVar(&browseEntry, "entry", "", "Root-relative entry directory")
	rootCmd.AddCommand(browseCmd)
}

func runBrowseCommand(_ *cobra.Command, args []string) {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		log.Fatalf("browse needs an interactive terminal; use 'unearth extract' for scripted output")
	}

	var model *extract.SpecModel
	if browseFrom != "" {
		loaded, err := loadModelFile(browseFrom)
		if err != nil {
			log.Fatalf("browse: %v", err)
		}
		model = loaded
	} else {
		roots, err := resolveRoots(args)
		if err != nil {
			log.Fatalf("browse: %v", err)
		}
		cfg, err := spec.LoadProjectConfig(roots[0])
		if err != nil {
			log.Fatalf("browse: %v", err)
		}
		req := extract.Request{Roots: roots, EntryPath: browseEntry}
		cfg.ApplyTo(&req)

		fmt.Fprintln(os.Stderr, "Extracting...")
		model, err = extract.NewEngine(cfg.EngineOptions()...).Extract(context.Background(), req)
		if err != nil {
			log.Fatalf("browse: %v", err)
		}
	}

	if _, err := tea.NewProgram(newBrowseModel(model), tea.WithAltScreen()).Run(); err != nil {
		log.Fatalf("browse: %v", err)
	}
}

// loadModelFile reads a model previously written by "extract -f json".
func loadModelFile(path string) (*extract.SpecModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m extract.SpecModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &m, nil
}

// featureItem adapts a Feature to the list widget.
type featureItem struct {
	f *extract.Feature
}

func (i featureItem) Title() string { return i.f.Title }

func (i featureItem) Description() string {
	return fmt.Sprintf("%s · %d stories · confidence %.2f", i.f.SourceFile, len(i.f.Stories), i.f.Confidence)
}

func (i featureItem) FilterValue() string { return i.f.Title + " " + i.f.Key }

// browseModel is the TUI state: the feature list, and a viewport that
// replaces it while a feature's detail is open.
type browseModel struct {
	list       list.Model
	detail     viewport.Model
	detailOpen bool
	width      int
	height     int
}

func newBrowseModel(m *extract.SpecModel) browseModel {
	items := make([]list.Item, len(m.Features))
	for i, f := range m.Features {
		items[i] = featureItem{f: f}
	}
	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = fmt.Sprintf("Unearth · %d features", len(m.Features))
	if m.Incomplete {
		l.Title += " (partial)"
	}
	return browseModel{list: l}
}

func (m browseModel) Init() tea.Cmd { return nil }

func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.list.SetSize(msg.Width, msg.Height)
		m.detail.Width = msg.Width
		m.detail.Height = msg.Height - 2
		return m, nil

	case tea.KeyMsg:
		if m.detailOpen {
			switch msg.String() {
			case "ctrl+c":
				return m, tea.Quit
			case "esc", "q", "backspace":
				m.detailOpen = false
				return m, nil
			}
			var cmd tea.Cmd
			m.detail, cmd = m.detail.Update(msg)
			return m, cmd
		}

		// The filter input owns the keyboard while active.
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "enter":
			if item, ok := m.list.SelectedItem().(featureItem); ok {
				m.detail.SetContent(renderFeatureDetail(item.f))
				m.detail.GotoTop()
				m.detailOpen = true
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m browseModel) View() string {
	if m.detailOpen {
		return m.detail.View() + "\n" + dimStyle.Render("esc back · ↑/↓ scroll · ctrl+c quit")
	}
	return m.list.View()
}
