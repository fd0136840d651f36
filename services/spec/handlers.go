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
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/unearth/services/spec/extract"
)

// The "confidence" binding keeps threshold validation at the edge, so the
// engine never sees an out-of-range value from the API.
func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("confidence", func(fl validator.FieldLevel) bool {
			val := fl.Field().Float()
			return val >= 0 && val <= 1
		})
	}
}

// ErrorResponse is the error body every endpoint returns on failure.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ExtractRequest is the request body of POST /v1/spec/extract and
// POST /v1/spec/themes, and the first message of the streaming endpoint.
type ExtractRequest struct {
	// Roots are the filesystem roots to analyze.
	Roots []string `json:"roots" binding:"required,min=1,dive,required"`

	// EntryPath optionally restricts extraction to a root-relative subtree.
	EntryPath string `json:"entry_path"`

	// ConfidenceThreshold optionally overrides the retention threshold.
	ConfidenceThreshold *float64 `json:"confidence_threshold" binding:"omitempty,confidence"`
}

// ListRunsResponse is the body of GET /v1/spec/runs.
type ListRunsResponse struct {
	Runs []RunSummary `json:"runs"`
}

// ThemesResponse is the body of POST /v1/spec/themes.
type ThemesResponse struct {
	RunID  string           `json:"run_id"`
	Themes extract.ThemeSet `json:"themes"`
}

// StreamMessage is one frame of the websocket progress stream.
type StreamMessage struct {
	// Type is "progress", "model", or "error".
	Type string `json:"type"`

	// Progress fields (Type == "progress").
	Phase string `json:"phase,omitempty"`
	Done  int    `json:"done,omitempty"`
	Total int    `json:"total,omitempty"`

	// Model is the final result (Type == "model").
	Model *extract.SpecModel `json:"model,omitempty"`

	// Error fields (Type == "error").
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// Handlers holds the HTTP handlers of the spec service.
type Handlers struct {
	svc      *Service
	limiter  *rate.Limiter
	upgrader websocket.Upgrader
}

// NewHandlers creates the handlers. A zero rate in cfg disables rate
// limiting.
func NewHandlers(svc *Service, cfg ServiceConfig) *Handlers {
	h := &Handlers{
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	if cfg.RateLimitPerSecond > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), burst)
	}
	return h
}

// RateLimitMiddleware refuses requests beyond the configured rate with 429.
// With no limiter configured it is a no-op.
func (h *Handlers) RateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.limiter != nil && !h.limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error: "rate limit exceeded",
				Code:  "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}

// HandleExtract handles POST /v1/spec/extract.
//
// Description:
//
//	Runs one extraction over the requested roots and returns the full
//	model. The run is also cached, so it can be re-fetched from
//	GET /v1/spec/runs/:id without re-analyzing the tree.
//
// Request Body:
//
//	ExtractRequest (roots required; entry_path and confidence_threshold optional)
//
// Response:
//
//	200 OK: extract.SpecModel
//	400 Bad Request: Malformed body, invalid root, entry path, or threshold
//	503 Service Unavailable: Concurrent-run capacity reached
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleExtract(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleExtract")

	var req ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request: " + err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}

	model, err := h.svc.Extract(c.Request.Context(), extract.Request{
		Roots:               req.Roots,
		EntryPath:           req.EntryPath,
		ConfidenceThreshold: req.ConfidenceThreshold,
	})
	if err != nil {
		writeExtractError(c, logger, err)
		return
	}

	logger.Info("extraction served",
		slog.String("run_id", model.RunID),
		slog.Int("features", len(model.Features)),
		slog.Bool("incomplete", model.Incomplete),
	)
	c.JSON(http.StatusOK, model)
}

// HandleExtractStream handles GET /v1/spec/extract/stream.
//
// Description:
//
//	Upgrades the connection to a websocket, reads one ExtractRequest
//	frame, and runs the extraction while streaming progress frames. The
//	final frame carries the full model (or an error).
//
// Frames:
//
//	client → server: ExtractRequest (exactly one)
//	server → client: StreamMessage{type: "progress"} (repeated)
//	server → client: StreamMessage{type: "model"} or {type: "error"} (terminal)
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleExtractStream(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleExtractStream")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	var req ExtractRequest
	if err := conn.ReadJSON(&req); err != nil {
		_ = conn.WriteJSON(StreamMessage{
			Type:  "error",
			Error: "invalid request frame: " + err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}
	if len(req.Roots) == 0 {
		_ = conn.WriteJSON(StreamMessage{
			Type:  "error",
			Error: "roots is required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	// Progress arrives from worker goroutines; the websocket allows one
	// concurrent writer.
	var writeMu sync.Mutex
	send := func(msg StreamMessage) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(msg); err != nil {
			logger.Debug("stream write failed", slog.Any("error", err))
		}
	}

	model, err := h.svc.ExtractWithProgress(c.Request.Context(), extract.Request{
		Roots:               req.Roots,
		EntryPath:           req.EntryPath,
		ConfidenceThreshold: req.ConfidenceThreshold,
	}, func(phase extract.ProgressPhase, done, total int) {
		send(StreamMessage{Type: "progress", Phase: string(phase), Done: done, Total: total})
	})
	if err != nil {
		send(StreamMessage{Type: "error", Error: err.Error(), Code: extractErrorCode(err)})
		return
	}

	logger.Info("streamed extraction complete",
		slog.String("run_id", model.RunID),
		slog.Int("features", len(model.Features)),
	)
	send(StreamMessage{Type: "model", Model: model})
}

// HandleThemes handles POST /v1/spec/themes.
//
// Description:
//
//	Runs an extraction and returns only the theme/technology aggregate.
//	The full run is still cached under its run ID.
//
// Response:
//
//	200 OK: ThemesResponse
//	400 Bad Request: Malformed body or invalid inputs
//	503 Service Unavailable: Concurrent-run capacity reached
func (h *Handlers) HandleThemes(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleThemes")

	var req ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request: " + err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}

	model, err := h.svc.Extract(c.Request.Context(), extract.Request{
		Roots:               req.Roots,
		EntryPath:           req.EntryPath,
		ConfidenceThreshold: req.ConfidenceThreshold,
	})
	if err != nil {
		writeExtractError(c, logger, err)
		return
	}

	logger.Info("themes served",
		slog.String("run_id", model.RunID),
		slog.Int("themes", len(model.Themes.Themes)),
	)
	c.JSON(http.StatusOK, ThemesResponse{RunID: model.RunID, Themes: model.Themes})
}

// HandleGetRun handles GET /v1/spec/runs/:id.
//
// Response:
//
//	200 OK: extract.SpecModel
//	404 Not Found: Run ID not cached
func (h *Handlers) HandleGetRun(c *gin.Context) {
	runID := c.Param("id")
	model, err := h.svc.GetRun(runID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "run not found",
			Code:  "RUN_NOT_FOUND",
		})
		return
	}
	c.JSON(http.StatusOK, model)
}

// HandleListRuns handles GET /v1/spec/runs.
//
// Response:
//
//	200 OK: ListRunsResponse (newest first)
func (h *Handlers) HandleListRuns(c *gin.Context) {
	c.JSON(http.StatusOK, ListRunsResponse{Runs: h.svc.ListRuns()})
}

// HandleHealth handles GET /v1/spec/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "spec"})
}

// HandleReady handles GET /v1/spec/ready. The service has no warmup phase,
// so readiness follows construction.
func (h *Handlers) HandleReady(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// writeExtractError maps engine and service errors onto HTTP responses.
func writeExtractError(c *gin.Context, logger *slog.Logger, err error) {
	code := extractErrorCode(err)
	status := http.StatusBadRequest
	switch code {
	case "CAPACITY":
		status = http.StatusServiceUnavailable
	case "EXTRACTION_FAILED":
		status = http.StatusInternalServerError
	}
	if status == http.StatusInternalServerError {
		logger.Error("extraction failed", slog.Any("error", err))
	} else {
		logger.Warn("extraction refused", slog.String("code", code), slog.Any("error", err))
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

func extractErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrCapacity):
		return "CAPACITY"
	case errors.Is(err, extract.ErrInvalidRoot):
		return "INVALID_ROOT"
	case errors.Is(err, extract.ErrInvalidEntry):
		return "INVALID_ENTRY"
	case errors.Is(err, extract.ErrInvalidThreshold):
		return "INVALID_THRESHOLD"
	default:
		return "EXTRACTION_FAILED"
	}
}

// getOrCreateRequestID returns the inbound X-Request-ID, minting one when
// absent, and mirrors it on the response.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
