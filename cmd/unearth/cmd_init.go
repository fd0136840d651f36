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
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/unearth/services/spec"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a .unearth.yaml project config interactively",
	Args:  cobra.MaximumNArgs(1),
	Run:   runInitCommand,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing "+spec.ProjectConfigName)
	rootCmd.AddCommand(initCmd)
}

func runInitCommand(_ *cobra.Command, args []string) {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	target := filepath.Join(dir, spec.ProjectConfigName)
	if _, err := os.Stat(target); err == nil && !initForce {
		log.Fatalf("%s already exists (use --force to overwrite)", target)
	}

	var (
		entry     string
		threshold string
		skips     string
		write     = true
	)
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Entry path").
				Description("Root-relative directory to scope extraction to (empty = whole tree)").
				Value(&entry),
			huh.NewInput().
				Title("Confidence threshold").
				Description("Declarations scoring below this are dropped (empty = 0.5)").
				Placeholder("0.5").
				Validate(validateThresholdInput).
				Value(&threshold),
			huh.NewInput().
				Title("Skip patterns").
				Description("Comma-separated directory globs replacing the defaults (empty = keep defaults)").
				Value(&skips),
			huh.NewConfirm().
				Title("Write "+spec.ProjectConfigName+"?").
				Value(&write),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("Aborted.")
			return
		}
		log.Fatalf("init: %v", err)
	}
	if !write {
		fmt.Println("Nothing written.")
		return
	}

	data, err := renderProjectConfig(buildProjectConfig(entry, threshold, skips))
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		log.Fatalf("init: %v", err)
	}
	fmt.Printf("Wrote %s\n", target)
}

// validateThresholdInput accepts an empty string (use the default) or a
// float in [0,1].
func validateThresholdInput(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return errors.New("enter a number between 0 and 1")
	}
	if v < 0 || v > 1 {
		return errors.New("must be between 0 and 1")
	}
	return nil
}

// buildProjectConfig turns the form answers into a ProjectConfig. Empty
// answers leave fields unset so engine defaults apply.
func buildProjectConfig(entry, threshold, skipCSV string) spec.ProjectConfig {
	cfg := spec.ProjectConfig{EntryPath: strings.TrimSpace(entry)}
	if t := strings.TrimSpace(threshold); t != "" {
		if v, err := strconv.ParseFloat(t, 64); err == nil {
			cfg.ConfidenceThreshold = &v
		}
	}
	for _, p := range strings.Split(skipCSV, ",") {
		if p = strings.TrimSpace(p); p != "" {
			cfg.SkipPatterns = append(cfg.SkipPatterns, p)
		}
	}
	return cfg
}

// renderProjectConfig marshals the config with a short usage header.
func renderProjectConfig(cfg spec.ProjectConfig) ([]byte, error) {
	body, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	header := "# Unearth project configuration. CLI flags and API request fields\n" +
		"# override anything set here.\n"
	return append([]byte(header), body...), nil
}
