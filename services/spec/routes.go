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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all Spec routes with the router.
//
// Description:
//
//	Registers all /v1/spec/* endpoints with the given Gin router group.
//	Health endpoints bypass the rate limiter; everything else goes
//	through it.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Extraction Endpoints:
//
//	POST /v1/spec/extract - Run an extraction, return the full model
//	GET  /v1/spec/extract/stream - Websocket extraction with progress frames
//	POST /v1/spec/themes - Run an extraction, return only themes
//
// Run Cache Endpoints:
//
//	GET  /v1/spec/runs - List cached runs
//	GET  /v1/spec/runs/:id - Fetch one cached run
//
// Health Endpoints:
//
//	GET  /v1/spec/health - Health check
//	GET  /v1/spec/ready - Readiness check
//
// Example:
//
//	service := spec.NewService(spec.DefaultServiceConfig())
//	handlers := spec.NewHandlers(service, spec.DefaultServiceConfig())
//
//	v1 := router.Group("/v1")
//	spec.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	spec := rg.Group("/spec")
	{
		// Health checks stay reachable under load.
		spec.GET("/health", handlers.HandleHealth)
		spec.GET("/ready", handlers.HandleReady)

		limited := spec.Group("", handlers.RateLimitMiddleware())
		{
			// Extraction
			limited.POST("/extract", handlers.HandleExtract)
			limited.GET("/extract/stream", handlers.HandleExtractStream)
			limited.POST("/themes", handlers.HandleThemes)

			// Run cache
			limited.GET("/runs", handlers.HandleListRuns)
			limited.GET("/runs/:id", handlers.HandleGetRun)
		}
	}
}
