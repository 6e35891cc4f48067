package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"fragcoach/internal/coach"
	"fragcoach/internal/config"
	"fragcoach/internal/output"
	"fragcoach/internal/tools"
)

type stubTool struct{ name string }

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub" }
func (s *stubTool) External() bool      { return false }
func (s *stubTool) Execute(ctx context.Context, params map[string]interface{}) (*tools.ToolResult, error) {
	return &tools.ToolResult{Success: true, Output: "ok"}, nil
}

func testServer(t *testing.T) (*gin.Engine, *coach.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.Server.JWTSecret = "test-secret"
	cfg.Monitor.MinMonitoringSeconds = 10
	cfg.Monitor.MaxMonitoringSeconds = 60
	cfg.Monitor.SignificanceThreshold = 0.3
	cfg.Monitor.LearningThreshold = 0.6
	cfg.Monitor.EngagementThreshold = 0.6
	cfg.Monitor.DecaySeconds = 30
	cfg.Monitor.MaxSessions = 8
	cfg.Monitor.SweepIntervalSeconds = 15
	cfg.Feedback.LearningRate = 0.1
	cfg.Coach.MaxConcurrentDecisions = 2
	cfg.Coach.MaxToolCalls = 6
	cfg.Coach.MaxProcessingMs = 1000
	cfg.Coach.HistoryWindow = 16

	reg := tools.NewRegistry()
	if err := reg.Register(&stubTool{name: tools.ToolNamePositioning}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := reg.Register(&stubTool{name: tools.ToolNameEconomy}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	orch := coach.New(cfg, reg, output.NewDispatcher(), nil, nil)
	t.Cleanup(orch.Dispose)
	if err := orch.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := orch.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// The redis client is never dialed by the routes exercised here.
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	return SetupRouter(cfg, rdb, orch, reg), orch
}

func TestHealthEndpoint(t *testing.T) {
	r, _ := testServer(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if body["state"] != "running" {
		t.Errorf("expected running, got %v", body["state"])
	}
}

func TestGSIEndpoint_MalformedBodySkipped(t *testing.T) {
	r, orch := testServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/gsi", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("malformed frame must be acknowledged, got %d", w.Code)
	}
	if got := orch.GetStats().FramesProcessed; got != 0 {
		t.Errorf("expected 0 processed frames, got %d", got)
	}
}

func TestGSIEndpoint_ValidFrame(t *testing.T) {
	r, orch := testServer(t)
	payload := `{
		"provider": {"name": "csgo"},
		"map": {"name": "de_mirage", "round": 3},
		"round": {"phase": "live"},
		"player": {"steamid": "7656119", "name": "tester", "team": "CT",
			"state": {"health": 100, "money": 3000}}
	}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/gsi", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := orch.GetStats().FramesProcessed; got != 1 {
		t.Errorf("expected 1 processed frame, got %d", got)
	}
}

func TestProtectedEndpointsRequireAuth(t *testing.T) {
	r, _ := testServer(t)
	for _, route := range []struct{ method, path string }{
		{"GET", "/state"},
		{"GET", "/stats"},
		{"POST", "/feedback"},
		{"POST", "/command"},
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(route.method, route.path, nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401, got %d", route.method, route.path, w.Code)
		}
	}
}

func TestEventsEndpointRequiresToken(t *testing.T) {
	r, _ := testServer(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/ws/events", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}
}
