// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command unearthd starts the Unearth spec extraction API server.
//
// Unearth turns a source tree into a specification model: features,
// stories, and scenarios derived from declarations and control flow.
//
// Usage:
//
//	go run ./cmd/unearthd
//	go run ./cmd/unearthd -port 9090
//	go run ./cmd/unearthd -debug
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/v1/spec/health
//
//	# Extract a spec model
//	curl -X POST http://localhost:8080/v1/spec/extract \
//	  -H "Content-Type: application/json" \
//	  -d '{"roots": ["/path/to/project"]}'
//
//	# Themes and technologies only
//	curl -X POST http://localhost:8080/v1/spec/themes \
//	  -H "Content-Type: application/json" \
//	  -d '{"roots": ["/path/to/project"]}'
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AleutianAI/unearth/services/spec"
	"github.com/AleutianAI/unearth/services/spec/extract"
)

func main() {
	port := flag.Int("port", 8080, "Port to listen on")
	debug := flag.Bool("debug", false, "Enable debug mode (verbose logging, stdout span export)")
	workers := flag.Int("workers", 0, "Parse worker count (0 = NumCPU)")
	maxRuns := flag.Int("max-runs", 0, "Max concurrent extraction runs (0 = default)")
	flag.Parse()

	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// W3C TraceContext propagation so trace context flows from incoming
	// HTTP headers through the extraction spans.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	// In debug mode, export spans to stdout so extractions can be traced
	// without external collectors.
	var tp *sdktrace.TracerProvider
	if *debug {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			slog.Warn("stdout trace exporter unavailable", slog.String("error", err.Error()))
		} else {
			tp = sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
			otel.SetTracerProvider(tp)
		}
	}

	cfg := spec.DefaultServiceConfig()
	if *maxRuns > 0 {
		cfg.MaxConcurrentRuns = *maxRuns
	}
	var engineOpts []extract.EngineOption
	if *workers > 0 {
		engineOpts = append(engineOpts, extract.WithWorkerCount(*workers))
	}

	svc := spec.NewService(cfg, engineOpts...)
	handlers := spec.NewHandlers(svc, cfg)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("unearth-spec"))
	if *debug {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	spec.RegisterRoutes(v1, handlers)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	printBanner(*port)

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		slog.Info("Shutting down Unearth server")
		if tp != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				slog.Warn("Trace provider shutdown failed", slog.String("error", err.Error()))
			}
		}
		os.Exit(0)
	}()

	addr := fmt.Sprintf(":%d", *port)
	slog.Info("Starting Unearth server", slog.String("address", addr))
	if err := router.Run(addr); err != nil {
		slog.Error("Failed to start server", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func printBanner(port int) {
	banner := `
╔═══════════════════════════════════════════════════════════════════╗
║                         UNEARTH SPEC SERVER                       ║
╠═══════════════════════════════════════════════════════════════════╣
║                                                                   ║
║  Source-to-specification extraction: features, stories, and       ║
║  scenarios mined from declarations and control flow.              ║
║                                                                   ║
║  Quick Start:                                                     ║
║  ┌─────────────────────────────────────────────────────────────┐  ║
║  │ # Health check                                              │  ║
║  │ curl http://localhost:%d/v1/spec/health               │  ║
║  │                                                             │  ║
║  │ # Extract a spec model                                      │  ║
║  │ curl -X POST http://localhost:%d/v1/spec/extract \    │  ║
║  │   -H "Content-Type: application/json" \                     │  ║
║  │   -d '{"roots": ["/your/project/path"]}'                    │  ║
║  └─────────────────────────────────────────────────────────────┘  ║
║                                                                   ║
║  Endpoints:                                                       ║
║  ├── Extraction: /extract, /extract/stream, /themes               ║
║  ├── Run cache: /runs, /runs/:id                                  ║
║  ├── Health: /health, /ready                                      ║
║  └── Metrics: /metrics (Prometheus)                               ║
║                                                                   ║
║  Press Ctrl+C to stop                                             ║
╚═══════════════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, port, port)
}
