// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package spec exposes the extraction pipeline as an HTTP service: request
// validation, capacity limiting, run caching, progress streaming, and
// Prometheus metrics around the extract engine.
package spec

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/unearth/services/spec/extract"
)

// ErrCapacity means the service is already running its configured maximum
// of concurrent extractions. Callers should retry later.
var ErrCapacity = errors.New("extraction capacity reached")

// ErrRunNotFound means the requested run ID is not in the cache (never ran,
// or evicted).
var ErrRunNotFound = errors.New("run not found")

// RunSummary is the list-view projection of a cached run.
type RunSummary struct {
	RunID       string    `json:"run_id"`
	Roots       []string  `json:"roots"`
	GeneratedAt time.Time `json:"generated_at"`
	Features    int       `json:"features"`
	Diagnostics int       `json:"diagnostics"`
	Incomplete  bool      `json:"incomplete"`
}

// Service wraps the extract engine with server concerns.
//
// Description:
//
//	The service bounds concurrent runs with a non-blocking semaphore
//	(excess requests are refused, not queued), applies the configured run
//	timeout, records metrics, and keeps recent models in a bounded
//	in-memory cache keyed by run ID so clients can re-fetch results.
//
// Thread Safety: safe for concurrent use.
type Service struct {
	cfg        ServiceConfig
	engineOpts []extract.EngineOption
	engine     *extract.Engine
	sem        chan struct{}

	mu    sync.RWMutex
	runs  map[string]*extract.SpecModel
	order []string
}

// NewService creates a Service. Engine options apply to every run the
// service executes.
func NewService(cfg ServiceConfig, opts ...extract.EngineOption) *Service {
	if cfg.MaxConcurrentRuns <= 0 {
		cfg.MaxConcurrentRuns = DefaultServiceConfig().MaxConcurrentRuns
	}
	if cfg.MaxCachedRuns <= 0 {
		cfg.MaxCachedRuns = DefaultServiceConfig().MaxCachedRuns
	}
	return &Service{
		cfg:        cfg,
		engineOpts: opts,
		engine:     extract.NewEngine(opts...),
		sem:        make(chan struct{}, cfg.MaxConcurrentRuns),
		runs:       make(map[string]*extract.SpecModel),
	}
}

// Extract runs one extraction under the service's capacity and timeout
// policy and caches the result.
//
// Outputs: the model, or ErrCapacity when the run limit is reached, or the
// engine's validation error for bad inputs.
func (s *Service) Extract(ctx context.Context, req extract.Request) (*extract.SpecModel, error) {
	return s.run(ctx, req, s.engine)
}

// ExtractWithProgress is Extract with a per-run progress callback, used by
// the streaming endpoint. The callback is invoked from worker goroutines.
func (s *Service) ExtractWithProgress(ctx context.Context, req extract.Request, fn extract.ProgressFunc) (*extract.SpecModel, error) {
	opts := append(append([]extract.EngineOption{}, s.engineOpts...), extract.WithProgress(fn))
	return s.run(ctx, req, extract.NewEngine(opts...))
}

func (s *Service) run(ctx context.Context, req extract.Request, engine *extract.Engine) (*extract.SpecModel, error) {
	select {
	case s.sem <- struct{}{}:
	default:
		recordRunRefused()
		return nil, ErrCapacity
	}
	defer func() { <-s.sem }()

	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}

	recordRunStarted()
	start := time.Now()
	model, err := engine.Extract(ctx, req)
	if err != nil {
		recordRunError()
		return nil, err
	}
	recordRunFinished(model, time.Since(start))

	s.cacheRun(model)
	return model, nil
}

// GetRun returns a cached run by ID.
func (s *Service) GetRun(runID string) (*extract.SpecModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	model, ok := s.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	return model, nil
}

// ListRuns returns summaries of the cached runs, newest first.
func (s *Service) ListRuns() []RunSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RunSummary, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		model := s.runs[s.order[i]]
		out = append(out, RunSummary{
			RunID:       model.RunID,
			Roots:       model.Roots,
			GeneratedAt: model.GeneratedAt,
			Features:    len(model.Features),
			Diagnostics: len(model.Diagnostics),
			Incomplete:  model.Incomplete,
		})
	}
	return out
}

// cacheRun stores a completed model, evicting the oldest run beyond the cap.
func (s *Service) cacheRun(model *extract.SpecModel) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[model.RunID] = model
	s.order = append(s.order, model.RunID)
	for len(s.order) > s.cfg.MaxCachedRuns {
		evicted := s.order[0]
		s.order = s.order[1:]
		delete(s.runs, evicted)
		slog.Debug("run evicted from cache", slog.String("run_id", evicted))
	}
}
