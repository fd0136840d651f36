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
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/unearth/services/spec/extract"
)

// ProjectConfigName is the per-project override file probed at each
// analyzed root.
const ProjectConfigName = ".unearth.yaml"

// ProjectConfig holds user-provided extraction overrides for one analyzed
// project.
//
// Description:
//
//	Loaded from <root>/.unearth.yaml. All fields are optional; a missing
//	config file is not an error (zero-config works out of the box).
//
// Thread Safety: Safe for concurrent reads after construction.
type ProjectConfig struct {
	// EntryPath restricts extraction to a root-relative subtree.
	EntryPath string `yaml:"entry_path,omitempty"`

	// ConfidenceThreshold overrides the default retention threshold.
	// Must be within [0,1]; nil keeps the default.
	ConfidenceThreshold *float64 `yaml:"confidence_threshold,omitempty"`

	// SkipPatterns replaces the default directory skip globs.
	SkipPatterns []string `yaml:"skip_patterns,omitempty"`

	// Extensions replaces the default candidate file extensions.
	Extensions []string `yaml:"extensions,omitempty"`

	// MaxFileSizeBytes overrides the per-file parse size limit.
	MaxFileSizeBytes int64 `yaml:"max_file_size_bytes,omitempty"`

	// Workers bounds the parse worker pool.
	Workers int `yaml:"workers,omitempty"`
}

// LoadProjectConfig reads .unearth.yaml from a project root.
//
// Description:
//
//	Reads and parses the project config file. If the root is empty or the
//	file does not exist, returns an empty config with no error. Only
//	returns an error if the file exists but cannot be parsed.
//
// Inputs:
//
//	root - Path to the analyzed project root. May be empty.
//
// Outputs:
//
//	ProjectConfig - The parsed config, or empty config if file is missing.
//	error - Non-nil only if the file exists but has invalid YAML.
//
// Thread Safety: Safe for concurrent use (stateless function).
func LoadProjectConfig(root string) (ProjectConfig, error) {
	if root == "" {
		return ProjectConfig{}, nil
	}

	configPath := filepath.Join(root, ProjectConfigName)
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return ProjectConfig{}, nil
		}
		return ProjectConfig{}, fmt.Errorf("reading %s: %w", ProjectConfigName, err)
	}

	var config ProjectConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return ProjectConfig{}, fmt.Errorf("parsing %s: %w", ProjectConfigName, err)
	}

	return config, nil
}

// EngineOptions renders the config as engine options. Zero values
// contribute nothing, so the defaults stay in force.
func (c ProjectConfig) EngineOptions() []extract.EngineOption {
	var opts []extract.EngineOption
	var walkerOpts []extract.WalkerOption
	if len(c.SkipPatterns) > 0 {
		walkerOpts = append(walkerOpts, extract.WithSkipPatterns(c.SkipPatterns...))
	}
	if len(c.Extensions) > 0 {
		walkerOpts = append(walkerOpts, extract.WithExtensions(c.Extensions...))
	}
	if len(walkerOpts) > 0 {
		opts = append(opts, extract.WithWalker(extract.NewWalker(walkerOpts...)))
	}
	if c.MaxFileSizeBytes > 0 {
		opts = append(opts, extract.WithEngineMaxFileSize(c.MaxFileSizeBytes))
	}
	if c.Workers > 0 {
		opts = append(opts, extract.WithWorkerCount(c.Workers))
	}
	return opts
}

// ApplyTo copies the config's request-level fields onto req where the
// request does not already set them. Explicit request values win.
func (c ProjectConfig) ApplyTo(req *extract.Request) {
	if req.EntryPath == "" {
		req.EntryPath = c.EntryPath
	}
	if req.ConfidenceThreshold == nil && c.ConfidenceThreshold != nil {
		v := *c.ConfidenceThreshold
		req.ConfidenceThreshold = &v
	}
}

// ServiceConfig holds the server-side knobs of the spec service.
type ServiceConfig struct {
	// MaxConcurrentRuns bounds simultaneous extraction runs; further
	// requests are refused with a capacity error rather than queued.
	MaxConcurrentRuns int

	// MaxCachedRuns bounds the in-memory run cache; the oldest run is
	// evicted when the cap is exceeded.
	MaxCachedRuns int

	// RunTimeout bounds one extraction run. Zero disables the timeout.
	// A run that hits the timeout returns its partial model flagged
	// incomplete, matching cancellation semantics.
	RunTimeout time.Duration

	// RateLimitPerSecond and RateLimitBurst configure the API rate
	// limiter. A zero rate disables limiting.
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// DefaultServiceConfig returns the production defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		MaxConcurrentRuns:  4,
		MaxCachedRuns:      32,
		RunTimeout:         5 * time.Minute,
		RateLimitPerSecond: 10,
		RateLimitBurst:     20,
	}
}
