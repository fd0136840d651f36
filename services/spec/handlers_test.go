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
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/unearth/services/spec/extract"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fixtureProject writes a small analyzable Python project.
func fixtureProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"app/service.py": `import flask


class OrderService:
    """Receive, persist, and ship customer orders."""

    def create_order(self, payload):
        """Create an order."""
        if payload:
            return self.store.insert(payload)
        return None

    def get_order(self, key):
        """Fetch an order by key."""
        return self.store.get(key)
`,
		"requirements.txt": "flask==2.0.1\n",
	}
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	return root
}

func setupSpecTestRouter(handlers *Handlers) *gin.Engine {
	r := gin.New()
	v1 := r.Group("/v1")
	RegisterRoutes(v1, handlers)
	return r
}

func newTestHandlers(cfg ServiceConfig) (*Handlers, *Service) {
	svc := NewService(cfg)
	return NewHandlers(svc, cfg), svc
}

func postJSON(t *testing.T, r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	jsonBody, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", path, bytes.NewBuffer(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleExtract_Success(t *testing.T) {
	handlers, _ := newTestHandlers(DefaultServiceConfig())
	r := setupSpecTestRouter(handlers)
	root := fixtureProject(t)

	w := postJSON(t, r, "/v1/spec/extract", ExtractRequest{Roots: []string{root}})
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, body %s", w.Code, w.Body.String())
	}

	var model extract.SpecModel
	if err := json.Unmarshal(w.Body.Bytes(), &model); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if model.RunID == "" {
		t.Error("run_id missing")
	}
	if len(model.Features) != 1 || model.Features[0].Key != "order-service" {
		t.Errorf("features = %+v", model.Features)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
}

func TestHandleExtract_InvalidBody(t *testing.T) {
	handlers, _ := newTestHandlers(DefaultServiceConfig())
	r := setupSpecTestRouter(handlers)

	w := postJSON(t, r, "/v1/spec/extract", map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Status = %d, want 400", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if resp.Code != "INVALID_REQUEST" {
		t.Errorf("Code = %s", resp.Code)
	}
}

func TestHandleExtract_InvalidRoot(t *testing.T) {
	handlers, _ := newTestHandlers(DefaultServiceConfig())
	r := setupSpecTestRouter(handlers)

	w := postJSON(t, r, "/v1/spec/extract", ExtractRequest{
		Roots: []string{filepath.Join(t.TempDir(), "missing")},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Status = %d, want 400", w.Code)
	}
	var resp ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Code != "INVALID_ROOT" {
		t.Errorf("Code = %s, want INVALID_ROOT", resp.Code)
	}
}

func TestHandleExtract_InvalidEntry(t *testing.T) {
	handlers, _ := newTestHandlers(DefaultServiceConfig())
	r := setupSpecTestRouter(handlers)
	root := fixtureProject(t)

	w := postJSON(t, r, "/v1/spec/extract", ExtractRequest{
		Roots:     []string{root},
		EntryPath: "nope",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Status = %d, want 400", w.Code)
	}
	var resp ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Code != "INVALID_ENTRY" {
		t.Errorf("Code = %s, want INVALID_ENTRY", resp.Code)
	}
}

func TestHandleExtract_ThresholdValidation(t *testing.T) {
	handlers, _ := newTestHandlers(DefaultServiceConfig())
	r := setupSpecTestRouter(handlers)
	root := fixtureProject(t)

	two := 2.0
	w := postJSON(t, r, "/v1/spec/extract", ExtractRequest{
		Roots:               []string{root},
		ConfidenceThreshold: &two,
	})
	// Binding validation rejects out-of-range thresholds before the engine.
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Status = %d, want 400", w.Code)
	}
}

func TestHandleExtract_Capacity(t *testing.T) {
	cfg := DefaultServiceConfig()
	cfg.MaxConcurrentRuns = 1
	handlers, svc := newTestHandlers(cfg)
	r := setupSpecTestRouter(handlers)
	root := fixtureProject(t)

	// Occupy the single run slot.
	svc.sem <- struct{}{}
	defer func() { <-svc.sem }()

	w := postJSON(t, r, "/v1/spec/extract", ExtractRequest{Roots: []string{root}})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Status = %d, want 503", w.Code)
	}
	var resp ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Code != "CAPACITY" {
		t.Errorf("Code = %s, want CAPACITY", resp.Code)
	}
}

func TestHandleGetRun(t *testing.T) {
	handlers, _ := newTestHandlers(DefaultServiceConfig())
	r := setupSpecTestRouter(handlers)
	root := fixtureProject(t)

	w := postJSON(t, r, "/v1/spec/extract", ExtractRequest{Roots: []string{root}})
	if w.Code != http.StatusOK {
		t.Fatalf("extract failed: %s", w.Body.String())
	}
	var model extract.SpecModel
	json.Unmarshal(w.Body.Bytes(), &model)

	req := httptest.NewRequest("GET", "/v1/spec/runs/"+model.RunID, nil)
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req)
	if w2.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w2.Code)
	}
	var fetched extract.SpecModel
	json.Unmarshal(w2.Body.Bytes(), &fetched)
	if fetched.RunID != model.RunID {
		t.Errorf("RunID = %s, want %s", fetched.RunID, model.RunID)
	}

	req = httptest.NewRequest("GET", "/v1/spec/runs/no-such-run", nil)
	w3 := httptest.NewRecorder()
	r.ServeHTTP(w3, req)
	if w3.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", w3.Code)
	}
}

func TestHandleListRuns(t *testing.T) {
	handlers, _ := newTestHandlers(DefaultServiceConfig())
	r := setupSpecTestRouter(handlers)
	root := fixtureProject(t)

	first := postJSON(t, r, "/v1/spec/extract", ExtractRequest{Roots: []string{root}})
	second := postJSON(t, r, "/v1/spec/extract", ExtractRequest{Roots: []string{root}})
	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatal("extractions failed")
	}
	var latest extract.SpecModel
	json.Unmarshal(second.Body.Bytes(), &latest)

	req := httptest.NewRequest("GET", "/v1/spec/runs", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d", w.Code)
	}

	var resp ListRunsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if len(resp.Runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(resp.Runs))
	}
	if resp.Runs[0].RunID != latest.RunID {
		t.Errorf("newest run must come first, got %s", resp.Runs[0].RunID)
	}
	if resp.Runs[0].Features != 1 {
		t.Errorf("feature count = %d", resp.Runs[0].Features)
	}
}

func TestHandleThemes(t *testing.T) {
	handlers, _ := newTestHandlers(DefaultServiceConfig())
	r := setupSpecTestRouter(handlers)
	root := fixtureProject(t)

	w := postJSON(t, r, "/v1/spec/themes", ExtractRequest{Roots: []string{root}})
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, body %s", w.Code, w.Body.String())
	}

	var resp ThemesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if resp.RunID == "" {
		t.Error("run_id missing")
	}
	found := false
	for _, theme := range resp.Themes.Themes {
		if theme == "API" {
			found = true
		}
	}
	if !found {
		t.Errorf("themes = %v, want API present", resp.Themes.Themes)
	}
	if len(resp.Themes.Technologies) != 1 || resp.Themes.Technologies[0].Name != "flask" {
		t.Errorf("technologies = %v", resp.Themes.Technologies)
	}
}

func TestHealthAndReady(t *testing.T) {
	handlers, _ := newTestHandlers(DefaultServiceConfig())
	r := setupSpecTestRouter(handlers)

	for _, path := range []string{"/v1/spec/health", "/v1/spec/ready"} {
		req := httptest.NewRequest("GET", path, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("%s: Status = %d", path, w.Code)
		}
	}
}

func TestRateLimit(t *testing.T) {
	cfg := DefaultServiceConfig()
	cfg.RateLimitPerSecond = 0.001
	cfg.RateLimitBurst = 1
	handlers, _ := newTestHandlers(cfg)
	r := setupSpecTestRouter(handlers)

	req := httptest.NewRequest("GET", "/v1/spec/runs", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("first request: Status = %d", w.Code)
	}

	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, httptest.NewRequest("GET", "/v1/spec/runs", nil))
	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: Status = %d, want 429", w2.Code)
	}

	// Health bypasses the limiter.
	w3 := httptest.NewRecorder()
	r.ServeHTTP(w3, httptest.NewRequest("GET", "/v1/spec/health", nil))
	if w3.Code != http.StatusOK {
		t.Errorf("health: Status = %d, want 200", w3.Code)
	}
}

func TestHandleExtractStream(t *testing.T) {
	handlers, _ := newTestHandlers(DefaultServiceConfig())
	r := setupSpecTestRouter(handlers)
	root := fixtureProject(t)

	server := httptest.NewServer(r)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/spec/extract/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(ExtractRequest{Roots: []string{root}}); err != nil {
		t.Fatalf("write request: %v", err)
	}

	progress := 0
	var model *extract.SpecModel
	for {
		var msg StreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		switch msg.Type {
		case "progress":
			progress++
		case "model":
			model = msg.Model
		case "error":
			t.Fatalf("stream error: %s (%s)", msg.Error, msg.Code)
		}
		if model != nil {
			break
		}
	}

	if progress == 0 {
		t.Error("no progress frames received")
	}
	if len(model.Features) != 1 || model.Features[0].Key != "order-service" {
		t.Errorf("streamed model features = %+v", model.Features)
	}
}

func TestHandleExtractStream_BadFirstFrame(t *testing.T) {
	handlers, _ := newTestHandlers(DefaultServiceConfig())
	r := setupSpecTestRouter(handlers)

	server := httptest.NewServer(r)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/spec/extract/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]any{"roots": []string{}}); err != nil {
		t.Fatalf("write request: %v", err)
	}

	var msg StreamMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if msg.Type != "error" || msg.Code != "INVALID_REQUEST" {
		t.Errorf("frame = %+v, want INVALID_REQUEST error", msg)
	}
}
