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
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/unearth/services/spec"
	"github.com/AleutianAI/unearth/services/spec/extract"
)

var (
	extractEntry     string
	extractThreshold float64
	extractFormat    string
	extractOutput    string
	extractQuiet     bool
)

var extractCmd = &cobra.Command{
	Use:   "extract [path ...]",
	Short: "Extract features, stories, and scenarios from source trees",
	Long: `Extract walks the given roots (default: the working directory), parses
every candidate source file, and prints the resulting specification model.

Unreadable or unparseable files become diagnostics, never fatal errors.
Ctrl+C stops the run and prints whatever was extracted so far, marked
as partial.`,
	Args: cobra.ArbitraryArgs,
	Run:  runExtractCommand,
}

func init() {
	extractCmd.Flags().StringVar(&extractEntry, "entry", "", "Root-relative entry directory (scopes extraction, records externals)")
	extractCmd.Flags().Float64Var(&extractThreshold, "threshold", -1, "Confidence threshold in [0,1] (-1 = project config or 0.5)")
	extractCmd.Flags().StringVarP(&extractFormat, "format", "f", "summary", "Output format: summary, json, or yaml")
	extractCmd.Flags().StringVarP(&extractOutput, "output", "o", "", "Write the model to this file instead of stdout")
	extractCmd.Flags().BoolVarP(&extractQuiet, "quiet", "q", false, "Suppress progress output")
	rootCmd.AddCommand(extractCmd)
}

func runExtractCommand(_ *cobra.Command, args []string) {
	roots, err := resolveRoots(args)
	if err != nil {
		log.Fatalf("extract: %v", err)
	}

	cfg, err := spec.LoadProjectConfig(roots[0])
	if err != nil {
		log.Fatalf("extract: %v", err)
	}

	req := extract.Request{Roots: roots, EntryPath: extractEntry}
	if extractThreshold >= 0 {
		req.ConfidenceThreshold = &extractThreshold
	}
	cfg.ApplyTo(&req)

	opts := cfg.EngineOptions()
	live := !extractQuiet && isatty.IsTerminal(os.Stderr.Fd())
	if live {
		opts = append(opts, extract.WithProgress(progressLine))
	}

	// Ctrl+C cancels the run; the engine returns the partial model.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	model, err := extract.NewEngine(opts...).Extract(ctx, req)
	if err != nil {
		log.Fatalf("extract: %v", err)
	}
	if live {
		fmt.Fprint(os.Stderr, "\r\033[K")
	}

	out := os.Stdout
	if extractOutput != "" {
		f, err := os.Create(extractOutput)
		if err != nil {
			log.Fatalf("extract: %v", err)
		}
		defer func() {
			if err := f.Close(); err != nil {
				log.Printf("closing %s: %v", extractOutput, err)
			}
		}()
		out = f
	}
	if err := writeModel(out, model, extractFormat); err != nil {
		log.Fatalf("extract: %v", err)
	}
	if model.Incomplete {
		fmt.Fprintln(os.Stderr, "warning: run was interrupted; the model is partial")
	}
}

// resolveRoots turns CLI args into absolute root paths, defaulting to the
// working directory.
func resolveRoots(args []string) ([]string, error) {
	if len(args) == 0 {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		return []string{wd}, nil
	}
	roots := make([]string, len(args))
	for i, a := range args {
		abs, err := filepath.Abs(a)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", a, err)
		}
		roots[i] = abs
	}
	return roots, nil
}

// progressLine repaints one status line on stderr per report.
func progressLine(phase extract.ProgressPhase, done, total int) {
	if total > 0 {
		fmt.Fprintf(os.Stderr, "\r%s %d/%d \033[K", phase, done, total)
		return
	}
	fmt.Fprintf(os.Stderr, "\r%s \033[K", phase)
}
