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
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/unearth/services/spec"
	"github.com/AleutianAI/unearth/services/spec/extract"
)

var (
	watchEntry    string
	watchDebounce time.Duration
)

// watchManifests are the non-source files that still trigger a re-run,
// because they feed technology detection.
var watchManifests = map[string]struct{}{
	"requirements.txt": {},
	"pyproject.toml":   {},
	"go.mod":           {},
	"package.json":     {},
}

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Re-extract on file changes and report model deltas",
	Long: `Watch monitors one root for source and manifest changes, re-runs the
extraction after a quiet period, and prints a one-line delta: features
added, removed, and changed since the previous run.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runWatchCommand,
}

func init() {
	watchCmd.Flags().StringVar(&watchEntry, "entry", "", "Root-relative entry directory")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 750*time.Millisecond, "Quiet period before re-extracting")
	rootCmd.AddCommand(watchCmd)
}

func runWatchCommand(_ *cobra.Command, args []string) {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		log.Fatalf("watch: %v", err)
	}

	cfg, err := spec.LoadProjectConfig(root)
	if err != nil {
		log.Fatalf("watch: %v", err)
	}
	req := extract.Request{Roots: []string{root}, EntryPath: watchEntry}
	cfg.ApplyTo(&req)
	engine := extract.NewEngine(cfg.EngineOptions()...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Fatalf("watch: %v", err)
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			slog.Error("failed to close watcher", "error", err)
		}
	}()
	if err := addWatchDirs(watcher, root); err != nil {
		log.Fatalf("watch: %v", err)
	}

	prev, err := engine.Extract(ctx, req)
	if err != nil {
		log.Fatalf("watch: %v", err)
	}
	fmt.Printf("%s  %s\n", time.Now().Format("15:04:05"), diffSummary(nil, prev))
	fmt.Printf("Watching %s (Ctrl+C to stop)\n", root)

	timer := time.NewTimer(watchDebounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nStopped.")
			return

		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !relevantChange(root, ev) {
				continue
			}
			// New directories must be added explicitly; fsnotify does
			// not watch recursively.
			if ev.Op.Has(fsnotify.Create) {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addWatchDirs(watcher, ev.Name); addErr != nil {
						slog.Warn("cannot watch new directory", "path", ev.Name, "error", addErr)
					}
				}
			}
			resetDebounce(timer, watchDebounce)

		case werr, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("watch error", "error", werr)

		case <-timer.C:
			model, err := engine.Extract(ctx, req)
			if err != nil {
				slog.Warn("re-extraction failed", "error", err)
				continue
			}
			fmt.Printf("%s  %s\n", time.Now().Format("15:04:05"), diffSummary(prev, model))
			prev = model
		}
	}
}

// addWatchDirs registers root and every non-skipped directory below it.
func addWatchDirs(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != root && skipWatchDir(d.Name()) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

func skipWatchDir(name string) bool {
	for _, pattern := range extract.DefaultSkipPatterns {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// relevantChange filters events down to the files that can alter the
// model: candidate sources, manifests, and directory-level changes.
func relevantChange(root string, ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	rel, err := filepath.Rel(root, ev.Name)
	if err != nil {
		return false
	}
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if seg != "." && skipWatchDir(seg) {
			return false
		}
	}
	base := filepath.Base(ev.Name)
	if strings.HasSuffix(base, ".py") {
		return true
	}
	if _, ok := watchManifests[base]; ok {
		return true
	}
	// Directory creates and removes restructure the tree.
	if ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename) {
		if !strings.Contains(base, ".") {
			return true
		}
	}
	return false
}

func resetDebounce(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// diffSummary reports how next differs from prev. A nil prev formats
// next as an initial summary.
func diffSummary(prev, next *extract.SpecModel) string {
	if prev == nil {
		return fmt.Sprintf("%d features, %d diagnostics", len(next.Features), len(next.Diagnostics))
	}

	prevKeys := make(map[string]*extract.Feature, len(prev.Features))
	for _, f := range prev.Features {
		prevKeys[f.Key] = f
	}

	var added, changed int
	for _, f := range next.Features {
		old, ok := prevKeys[f.Key]
		if !ok {
			added++
			continue
		}
		if old.Confidence != f.Confidence || len(old.Stories) != len(f.Stories) {
			changed++
		}
		delete(prevKeys, f.Key)
	}
	removed := len(prevKeys)

	if added == 0 && removed == 0 && changed == 0 {
		return fmt.Sprintf("no changes (%d features)", len(next.Features))
	}
	return fmt.Sprintf("+%d -%d ~%d features (%d total, %d diagnostics)",
		added, removed, changed, len(next.Features), len(next.Diagnostics))
}
