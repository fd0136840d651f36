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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrInvalidRoot means a requested root path is missing or not a directory.
// It is the only fatal error the pipeline produces: everything after root
// validation degrades to diagnostics.
var ErrInvalidRoot = errors.New("invalid root path")

// DefaultSkipPatterns are the directory patterns the walker prunes. They
// cover hidden directories, Python caches and environments, vendored code,
// and test trees. Patterns are doublestar globs matched against both the
// directory name and its root-relative path.
var DefaultSkipPatterns = []string{
	".*",
	"__pycache__",
	"venv",
	"env",
	"node_modules",
	"vendor",
	"test",
	"tests",
	"testing",
	"testdata",
	"site-packages",
	"build",
	"dist",
	"*.egg-info",
}

// DefaultExtensions are the file extensions the walker yields.
var DefaultExtensions = []string{".py"}

// Walker enumerates candidate source files under a root directory.
//
// Description:
//
//	The walk is depth-first in directory-entry order (os.ReadDir sorts by
//	name), so the emitted sequence is deterministic. Symlinked directories
//	are followed, but each resolved real path is visited at most once per
//	walk, which makes symlink cycles terminate. Unreadable directories are
//	recorded as diagnostics and skipped; only an invalid root is fatal.
//
// Thread Safety: safe for concurrent use. Walk keeps its visited set on
// the stack, so a Walker can be reused and walks are restartable — calling
// Walk twice over an unchanged tree yields the same sequence twice.
type Walker struct {
	skipPatterns []string
	extensions   []string
}

// WalkerOption configures a Walker.
type WalkerOption func(*Walker)

// WithSkipPatterns replaces the default directory skip patterns.
func WithSkipPatterns(patterns ...string) WalkerOption {
	return func(w *Walker) {
		if len(patterns) > 0 {
			w.skipPatterns = patterns
		}
	}
}

// WithExtensions replaces the default candidate file extensions.
func WithExtensions(exts ...string) WalkerOption {
	return func(w *Walker) {
		if len(exts) > 0 {
			w.extensions = exts
		}
	}
}

// NewWalker creates a Walker with the default skip rules.
func NewWalker(opts ...WalkerOption) *Walker {
	w := &Walker{
		skipPatterns: DefaultSkipPatterns,
		extensions:   DefaultExtensions,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Walk enumerates candidate files under root, invoking visit with each
// absolute file path. It returns the diagnostics accumulated for unreadable
// directories. A non-nil error from visit aborts the walk and is returned
// as-is (the engine uses this for cancellation).
func (w *Walker) Walk(root string, visit func(path string) error) ([]Diagnostic, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRoot, root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s: not a directory", ErrInvalidRoot, root)
	}

	real, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRoot, root, err)
	}

	var diags []Diagnostic
	visited := map[string]struct{}{real: {}}
	err = w.walkDir(root, root, visited, &diags, visit)
	return diags, err
}

func (w *Walker) walkDir(root, dir string, visited map[string]struct{}, diags *[]Diagnostic, visit func(string) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		*diags = append(*diags, Diagnostic{
			Kind:    DiagFileUnreadable,
			File:    relSlash(root, dir),
			Message: err.Error(),
		})
		return nil
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		isDir := entry.IsDir()

		if entry.Type()&fs.ModeSymlink != 0 {
			st, err := os.Stat(path)
			if err != nil {
				*diags = append(*diags, Diagnostic{
					Kind:    DiagFileUnreadable,
					File:    relSlash(root, path),
					Message: err.Error(),
				})
				continue
			}
			isDir = st.IsDir()
		}

		if isDir {
			if w.shouldSkipDir(entry.Name(), relSlash(root, path)) {
				continue
			}
			real, err := filepath.EvalSymlinks(path)
			if err != nil {
				*diags = append(*diags, Diagnostic{
					Kind:    DiagFileUnreadable,
					File:    relSlash(root, path),
					Message: err.Error(),
				})
				continue
			}
			if _, seen := visited[real]; seen {
				continue
			}
			visited[real] = struct{}{}
			if err := w.walkDir(root, path, visited, diags, visit); err != nil {
				return err
			}
			continue
		}

		if !w.isCandidate(entry.Name()) {
			continue
		}
		if err := visit(path); err != nil {
			return err
		}
	}
	return nil
}

// shouldSkipDir matches a directory against the skip patterns by bare name
// and by root-relative path.
func (w *Walker) shouldSkipDir(name, relPath string) bool {
	for _, p := range w.skipPatterns {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
		if ok, _ := doublestar.Match(p, relPath); ok {
			return true
		}
	}
	return false
}

func (w *Walker) isCandidate(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	ext := filepath.Ext(name)
	for _, e := range w.extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// relSlash renders path relative to root with forward slashes, the form
// every model field and diagnostic uses.
func relSlash(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
