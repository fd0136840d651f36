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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/unearth/services/spec/ast"
)

var tracer = otel.Tracer("github.com/AleutianAI/unearth/services/spec/extract")

// ErrInvalidEntry means the requested entry path does not exist as a
// directory under any root. Like ErrInvalidRoot it fails the run before any
// file is processed.
var ErrInvalidEntry = errors.New("invalid entry path")

// ErrInvalidThreshold means the confidence threshold fell outside [0,1].
var ErrInvalidThreshold = errors.New("confidence threshold out of range")

// ProgressPhase identifies the pipeline stage of a progress report.
type ProgressPhase string

const (
	PhaseWalking    ProgressPhase = "walking"
	PhaseParsing    ProgressPhase = "parsing"
	PhaseAssembling ProgressPhase = "assembling"
)

// ProgressFunc receives progress updates: done units out of total within a
// phase. The total is 0 while still unknown. The callback must be fast and
// is invoked from worker goroutines.
type ProgressFunc func(phase ProgressPhase, done, total int)

// Request holds the caller-facing parameters of one extraction run.
type Request struct {
	// Roots are the filesystem roots to analyze. At least one is required.
	Roots []string

	// EntryPath optionally restricts extraction to a root-relative
	// subtree (partial mode). Imports escaping the subtree are recorded
	// as external dependencies.
	EntryPath string

	// ConfidenceThreshold filters declarations; nil applies
	// DefaultConfidenceThreshold. Must be within [0,1].
	ConfidenceThreshold *float64
}

// Engine runs the extraction pipeline: walk, parse, score, group, detect
// themes, assemble.
//
// Description:
//
//	One Engine is reusable across runs and safe for concurrent Extract
//	calls; all per-run state lives on the stack. File units fan out to a
//	bounded worker pool and fan back in through a single deterministic
//	assembler, so results never depend on completion order.
//
// Cancellation: a cancelled context stops scheduling new file units. The
// run returns the merged model of the units that completed, flagged
// Incomplete, and a nil error — partial output is still valid output.
type Engine struct {
	walker      *Walker
	heuristics  *Heuristics
	scorer      *Scorer
	grouper     *StoryGrouper
	themes      *ThemeDetector
	assembler   *Assembler
	workers     int
	maxFileSize int64
	progress    ProgressFunc
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithWorkerCount bounds the parse worker pool. Values <= 0 keep the
// default of runtime.NumCPU().
func WithWorkerCount(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithHeuristics swaps the policy tables used by every stage.
func WithHeuristics(h *Heuristics) EngineOption {
	return func(e *Engine) {
		if h != nil {
			e.heuristics = h
		}
	}
}

// WithWalker replaces the source walker (custom skip patterns or
// extensions).
func WithWalker(w *Walker) EngineOption {
	return func(e *Engine) {
		if w != nil {
			e.walker = w
		}
	}
}

// WithProgress installs a progress callback.
func WithProgress(fn ProgressFunc) EngineOption {
	return func(e *Engine) { e.progress = fn }
}

// WithEngineMaxFileSize overrides the per-file size limit handed to the
// parser.
func WithEngineMaxFileSize(n int64) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxFileSize = n
		}
	}
}

// NewEngine creates an Engine with default policies.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		workers:     runtime.NumCPU(),
		maxFileSize: ast.DefaultMaxFileSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.heuristics == nil {
		e.heuristics = DefaultHeuristics()
	}
	if e.walker == nil {
		e.walker = NewWalker()
	}
	e.scorer = NewScorer(e.heuristics)
	sx := NewScenarioExtractor(e.heuristics)
	e.grouper = NewStoryGrouper(e.heuristics, sx)
	e.themes = NewThemeDetector(e.heuristics)
	e.assembler = NewAssembler()
	return e
}

// walkUnit is one candidate file discovered by the walk.
type walkUnit struct {
	abs     string
	display string
	inScope bool
}

// Extract runs one extraction.
//
// Inputs: ctx for cancellation; req names the roots, optional entry path,
// and optional threshold.
// Outputs: the assembled model. Only an invalid root, entry path, or
// threshold produces an error; per-file failures become diagnostics and
// cancellation yields a partial model with Incomplete set.
func (e *Engine) Extract(ctx context.Context, req Request) (*SpecModel, error) {
	ctx, span := tracer.Start(ctx, "spec.extract")
	defer span.End()

	threshold := DefaultConfidenceThreshold
	if req.ConfidenceThreshold != nil {
		threshold = *req.ConfidenceThreshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidThreshold, threshold)
	}
	if len(req.Roots) == 0 {
		return nil, fmt.Errorf("%w: no roots given", ErrInvalidRoot)
	}

	start := time.Now()
	model := &SpecModel{
		RunID:               uuid.NewString(),
		Roots:               append([]string{}, req.Roots...),
		GeneratedAt:         start.UTC(),
		ConfidenceThreshold: threshold,
		Features:            []*Feature{},
		Diagnostics:         []Diagnostic{},
	}
	span.SetAttributes(
		attribute.String("run.id", model.RunID),
		attribute.Int("roots.count", len(req.Roots)),
		attribute.Float64("confidence.threshold", threshold),
	)

	// Display prefixes disambiguate files when several roots are given.
	prefixes := make([]string, len(req.Roots))
	if len(req.Roots) > 1 {
		for i, root := range req.Roots {
			prefixes[i] = filepath.Base(filepath.Clean(root))
		}
	}

	entry, entryDisplay := "", ""
	if req.EntryPath != "" {
		entry = path.Clean(filepath.ToSlash(req.EntryPath))
		found := false
		for i, root := range req.Roots {
			info, err := os.Stat(filepath.Join(root, filepath.FromSlash(entry)))
			if err == nil && info.IsDir() {
				entryDisplay = path.Join(prefixes[i], entry)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %s", ErrInvalidEntry, req.EntryPath)
		}
	}

	// Phase 1: enumerate candidates across every root. The full tree is
	// walked even in partial mode, because externals resolve against
	// files outside the entry subtree.
	var (
		units     []walkUnit
		walkDiags []Diagnostic
		cancelled bool
	)
	e.reportProgress(PhaseWalking, 0, 0)
	for i, root := range req.Roots {
		prefix := prefixes[i]
		diags, err := e.walker.Walk(root, func(abs string) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			display := path.Join(prefix, relSlash(root, abs))
			units = append(units, walkUnit{
				abs:     abs,
				display: display,
				inScope: entryDisplay == "" || hasPathPrefix(display, entryDisplay),
			})
			return nil
		})
		for _, d := range diags {
			d.File = path.Join(prefix, d.File)
			walkDiags = append(walkDiags, d)
		}
		if err != nil {
			if errors.Is(err, ErrInvalidRoot) {
				return nil, err
			}
			// Context cancellation mid-walk: keep what was found.
			cancelled = true
			break
		}
	}
	model.Stats.FilesWalked = len(units)
	e.reportProgress(PhaseWalking, len(units), len(units))

	index := &scopeIndex{
		files:        make(map[string]struct{}, len(units)),
		rootPrefixes: prefixes,
		entry:        entryDisplay,
	}
	for _, u := range units {
		index.files[u.display] = struct{}{}
	}

	inScope := make([]walkUnit, 0, len(units))
	for _, u := range units {
		if u.inScope {
			inScope = append(inScope, u)
		}
	}

	// Phase 2: fan out one unit of work per in-scope file. Workers share
	// nothing; each produces an immutable partial consumed only after
	// the pool drains.
	results := make([]*fileResult, 0, len(inScope))
	if !cancelled && len(inScope) > 0 {
		resultCh := make(chan *fileResult, len(inScope))
		g, gctx := errgroup.WithContext(ctx)
		sem := make(chan struct{}, e.workers)
		var done atomic.Int64

		for _, unit := range inScope {
			unit := unit
			g.Go(func() error {
				select {
				case sem <- struct{}{}:
				case <-gctx.Done():
					return gctx.Err()
				}
				defer func() { <-sem }()

				res, err := e.processFile(gctx, unit, threshold)
				if err != nil {
					return err
				}
				resultCh <- res
				e.reportProgress(PhaseParsing, int(done.Add(1)), len(inScope))
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			cancelled = true
		}
		close(resultCh)
		for res := range resultCh {
			results = append(results, res)
		}
	}

	// Phase 3: manifests, then the single-point merge.
	e.reportProgress(PhaseAssembling, 0, 1)
	techs, constraints, manifestDiags := e.themes.DetectTechnologies(req.Roots)
	model.Themes.Technologies = techs
	model.Themes.Constraints = constraints

	e.assembler.Assemble(model, results, index, append(walkDiags, manifestDiags...))
	model.Incomplete = cancelled
	model.Stats.Duration = time.Since(start)
	e.reportProgress(PhaseAssembling, 1, 1)

	span.SetAttributes(
		attribute.Int("files.in_scope", len(inScope)),
		attribute.Int("features.retained", len(model.Features)),
		attribute.Bool("run.incomplete", model.Incomplete),
	)
	slog.Info("extraction complete",
		slog.String("run_id", model.RunID),
		slog.Int("files_walked", model.Stats.FilesWalked),
		slog.Int("files_parsed", model.Stats.FilesParsed),
		slog.Int("features", len(model.Features)),
		slog.Bool("incomplete", model.Incomplete),
		slog.Duration("duration", model.Stats.Duration))

	return model, nil
}

// processFile is one unit of work: read, parse, score, group. It returns an
// error only when the context was cancelled mid-unit, so that no partially
// extracted file leaks into the merge. All other failures complete the unit
// with a diagnostic.
func (e *Engine) processFile(ctx context.Context, unit walkUnit, threshold float64) (*fileResult, error) {
	ctx, span := tracer.Start(ctx, "spec.extract.file",
		trace.WithAttributes(
			attribute.String("file", unit.display),
		))
	defer span.End()

	res := &fileResult{path: unit.display}

	content, err := os.ReadFile(unit.abs)
	if err != nil {
		slog.Warn("file unreadable", slog.String("path", unit.display), slog.Any("error", err))
		res.diags = append(res.diags, Diagnostic{
			Kind:    DiagFileUnreadable,
			File:    unit.display,
			Message: err.Error(),
		})
		return res, nil
	}

	parser := ast.NewParser(ast.WithMaxFileSize(e.maxFileSize))
	defer parser.Close()

	parsed, err := parser.Parse(ctx, content, unit.display)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		kind := DiagFileUnreadable
		if errors.Is(err, ast.ErrSyntax) {
			kind = DiagParseError
		}
		slog.Warn("file skipped", slog.String("path", unit.display), slog.Any("error", err))
		res.diags = append(res.diags, Diagnostic{
			Kind:    kind,
			File:    unit.display,
			Message: err.Error(),
		})
		return res, nil
	}

	res.parsed = true
	res.declsSeen = len(parsed.Declarations)
	res.imports = parsed.Imports
	res.themes = e.themes.ThemesFor(parsed)

	for _, decl := range parsed.Declarations {
		score, ok := e.scorer.Retain(decl, threshold)
		if !ok {
			continue
		}
		res.features = append(res.features, e.buildFeature(decl, score, unit.display))
	}
	span.SetAttributes(
		attribute.Int("declarations.seen", res.declsSeen),
		attribute.Int("features.retained", len(res.features)),
	)
	return res, nil
}

// buildFeature assembles one Feature from a retained declaration.
func (e *Engine) buildFeature(decl *ast.Declaration, score float64, display string) *Feature {
	key := slugify(decl.Name)
	title := titleize(lastNameSegment(decl.Name))

	f := &Feature{
		Key:        key,
		Title:      title,
		Outcomes:   leadingSentences(decl.Doc, 3),
		Acceptance: docBullets(decl.Doc),
		Confidence: score,
		SourceFile: display,
		Line:       decl.StartLine,
		Stories:    e.grouper.Group(decl, key),
	}
	if f.Outcomes == nil {
		f.Outcomes = []string{}
	}
	if len(f.Acceptance) == 0 {
		f.Acceptance = []string{title + " operations complete successfully"}
	}
	return f
}

func (e *Engine) reportProgress(phase ProgressPhase, done, total int) {
	if e.progress != nil {
		e.progress(phase, done, total)
	}
}

// hasPathPrefix reports whether display sits underneath dir in slash-path
// terms.
func hasPathPrefix(display, dir string) bool {
	return len(display) > len(dir) && display[:len(dir)] == dir && display[len(dir)] == '/'
}
