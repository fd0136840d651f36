// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package spec

import (
	"context"
	"errors"
	"testing"

	"github.com/AleutianAI/unearth/services/spec/extract"
)

func TestService_RunCacheEviction(t *testing.T) {
	cfg := DefaultServiceConfig()
	cfg.MaxCachedRuns = 2
	svc := NewService(cfg)
	root := fixtureProject(t)

	var runIDs []string
	for i := 0; i < 3; i++ {
		model, err := svc.Extract(context.Background(), extract.Request{Roots: []string{root}})
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		runIDs = append(runIDs, model.RunID)
	}

	if _, err := svc.GetRun(runIDs[0]); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("oldest run should be evicted, got %v", err)
	}
	for _, id := range runIDs[1:] {
		if _, err := svc.GetRun(id); err != nil {
			t.Errorf("run %s should still be cached: %v", id, err)
		}
	}

	runs := svc.ListRuns()
	if len(runs) != 2 {
		t.Fatalf("cached runs = %d, want 2", len(runs))
	}
	if runs[0].RunID != runIDs[2] || runs[1].RunID != runIDs[1] {
		t.Errorf("runs not newest-first: %v", runs)
	}
}

func TestService_CapacityRefusal(t *testing.T) {
	cfg := DefaultServiceConfig()
	cfg.MaxConcurrentRuns = 1
	svc := NewService(cfg)

	svc.sem <- struct{}{}
	defer func() { <-svc.sem }()

	_, err := svc.Extract(context.Background(), extract.Request{Roots: []string{t.TempDir()}})
	if !errors.Is(err, ErrCapacity) {
		t.Errorf("expected ErrCapacity, got %v", err)
	}
}

func TestService_PropagatesEngineErrors(t *testing.T) {
	svc := NewService(DefaultServiceConfig())
	_, err := svc.Extract(context.Background(), extract.Request{})
	if !errors.Is(err, extract.ErrInvalidRoot) {
		t.Errorf("expected ErrInvalidRoot, got %v", err)
	}
	if len(svc.ListRuns()) != 0 {
		t.Error("failed runs must not be cached")
	}
}
