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
	"os"
	"path/filepath"
	"testing"

	"github.com/AleutianAI/unearth/services/spec/extract"
)

func TestLoadProjectConfig_Missing(t *testing.T) {
	cfg, err := LoadProjectConfig(t.TempDir())
	if err != nil {
		t.Fatalf("missing config must not error: %v", err)
	}
	if cfg.EntryPath != "" || cfg.ConfidenceThreshold != nil {
		t.Errorf("expected zero config, got %+v", cfg)
	}

	if _, err := LoadProjectConfig(""); err != nil {
		t.Errorf("empty root must not error: %v", err)
	}
}

func TestLoadProjectConfig_Valid(t *testing.T) {
	root := t.TempDir()
	content := `entry_path: app
confidence_threshold: 0.7
skip_patterns:
  - generated
  - "*.egg-info"
extensions:
  - .py
workers: 2
max_file_size_bytes: 1048576
`
	if err := os.WriteFile(filepath.Join(root, ProjectConfigName), []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadProjectConfig(root)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.EntryPath != "app" {
		t.Errorf("EntryPath = %q", cfg.EntryPath)
	}
	if cfg.ConfidenceThreshold == nil || *cfg.ConfidenceThreshold != 0.7 {
		t.Errorf("ConfidenceThreshold = %v", cfg.ConfidenceThreshold)
	}
	if len(cfg.SkipPatterns) != 2 || cfg.Workers != 2 || cfg.MaxFileSizeBytes != 1048576 {
		t.Errorf("config = %+v", cfg)
	}

	if opts := cfg.EngineOptions(); len(opts) != 3 {
		t.Errorf("EngineOptions = %d options, want walker+size+workers", len(opts))
	}
}

func TestLoadProjectConfig_InvalidYAML(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ProjectConfigName), []byte("entry_path: [unclosed"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadProjectConfig(root); err == nil {
		t.Fatal("invalid YAML must error")
	}
}

func TestProjectConfig_ApplyTo(t *testing.T) {
	threshold := 0.7
	cfg := ProjectConfig{EntryPath: "app", ConfidenceThreshold: &threshold}

	// Empty request fields pick up config values.
	req := extract.Request{Roots: []string{"/tmp/x"}}
	cfg.ApplyTo(&req)
	if req.EntryPath != "app" {
		t.Errorf("EntryPath = %q", req.EntryPath)
	}
	if req.ConfidenceThreshold == nil || *req.ConfidenceThreshold != 0.7 {
		t.Errorf("ConfidenceThreshold = %v", req.ConfidenceThreshold)
	}

	// Explicit request values win over config.
	explicit := 0.3
	req = extract.Request{Roots: []string{"/tmp/x"}, EntryPath: "lib", ConfidenceThreshold: &explicit}
	cfg.ApplyTo(&req)
	if req.EntryPath != "lib" || *req.ConfidenceThreshold != 0.3 {
		t.Errorf("request overrides lost: %+v", req)
	}
}
