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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/unearth/services/spec/extract"
)

// =============================================================================
// Prometheus Metrics for Spec Extraction
// =============================================================================

var (
	// extractionsTotal counts extraction runs by terminal status.
	// Labels: status (complete, incomplete, refused, error)
	extractionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "unearth",
		Subsystem: "spec",
		Name:      "extractions_total",
		Help:      "Total extraction runs by terminal status",
	}, []string{"status"})

	// extractionDurationSeconds measures end-to-end run duration.
	extractionDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "unearth",
		Subsystem: "spec",
		Name:      "extraction_duration_seconds",
		Help:      "End-to-end extraction run duration",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 15, 60, 300},
	})

	// filesTotal counts processed files by outcome.
	// Labels: outcome (parsed, failed)
	filesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "unearth",
		Subsystem: "spec",
		Name:      "files_total",
		Help:      "Total processed files by outcome",
	}, []string{"outcome"})

	// featuresPerRun observes how many features each run retained.
	featuresPerRun = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "unearth",
		Subsystem: "spec",
		Name:      "features_per_run",
		Help:      "Features retained per extraction run",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})

	// diagnosticsTotal counts per-file diagnostics by kind.
	// Labels: kind (FileUnreadable, ParseError)
	diagnosticsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "unearth",
		Subsystem: "spec",
		Name:      "diagnostics_total",
		Help:      "Per-file diagnostics by kind",
	}, []string{"kind"})

	// activeRuns tracks extraction runs currently in flight.
	activeRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "unearth",
		Subsystem: "spec",
		Name:      "active_runs",
		Help:      "Extraction runs currently in flight",
	})
)

// recordRunStarted marks a run in flight.
func recordRunStarted() {
	activeRuns.Inc()
}

// recordRunRefused counts a run refused at the capacity gate.
func recordRunRefused() {
	extractionsTotal.WithLabelValues("refused").Inc()
}

// recordRunError counts a run that failed validation.
func recordRunError() {
	activeRuns.Dec()
	extractionsTotal.WithLabelValues("error").Inc()
}

// recordRunFinished records the terminal metrics of one completed run.
func recordRunFinished(model *extract.SpecModel, duration time.Duration) {
	activeRuns.Dec()

	status := "complete"
	if model.Incomplete {
		status = "incomplete"
	}
	extractionsTotal.WithLabelValues(status).Inc()
	extractionDurationSeconds.Observe(duration.Seconds())
	featuresPerRun.Observe(float64(len(model.Features)))

	filesTotal.WithLabelValues("parsed").Add(float64(model.Stats.FilesParsed))
	filesTotal.WithLabelValues("failed").Add(float64(model.Stats.FilesFailed))
	for _, d := range model.Diagnostics {
		diagnosticsTotal.WithLabelValues(string(d.Kind)).Inc()
	}
}
