package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"futures-radar-bot/config"
	"futures-radar-bot/internal/auth"
)

type staticStats map[string]interface{}

func (s staticStats) Stats() map[string]interface{} { return s }

func newTestServer(authManager *auth.Manager) *Server {
	providers := map[string]StatsProvider{
		"aggregator": staticStats{"symbols": 3},
		"alert":      staticStats{"suppressed": 7},
	}
	return NewServer(config.ServerConfig{Host: "127.0.0.1", Port: 0}, authManager, providers)
}

func doRequest(s *Server, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(nil)
	w := doRequest(s, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "healthy" {
		t.Fatalf("status field = %v", body["status"])
	}
}

func TestStatusAggregatesComponents(t *testing.T) {
	s := newTestServer(nil)
	w := doRequest(s, http.MethodGet, "/api/v1/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body struct {
		Components map[string]map[string]interface{} `json:"components"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Components) != 2 {
		t.Fatalf("components = %v, want aggregator and alert", body.Components)
	}
	if got := body.Components["aggregator"]["symbols"]; got != float64(3) {
		t.Fatalf("aggregator.symbols = %v, want 3", got)
	}
}

func TestComponentStatsUnknown(t *testing.T) {
	s := newTestServer(nil)
	w := doRequest(s, http.MethodGet, "/api/v1/stats/nonexistent", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestAuthGuardsStatusRoutes(t *testing.T) {
	manager := auth.NewManager("test-secret", time.Hour)
	s := newTestServer(manager)

	// Health stays public.
	if w := doRequest(s, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", w.Code)
	}
	// Status requires a token.
	if w := doRequest(s, http.MethodGet, "/api/v1/status", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", w.Code)
	}
	if w := doRequest(s, http.MethodGet, "/api/v1/status", "garbage"); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d, want 401", w.Code)
	}

	token, err := manager.GenerateToken("tester")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if w := doRequest(s, http.MethodGet, "/api/v1/status", token); w.Code != http.StatusOK {
		t.Fatalf("authenticated status = %d, want 200", w.Code)
	}
}
