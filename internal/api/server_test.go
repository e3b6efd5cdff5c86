package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/docket0/docket/internal/testutil"
)

func newTestServer(t *testing.T, cfg ServerConfig) *Server {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = testutil.DiscardLogger()
	}
	if cfg.Pipeline == nil {
		cfg.Pipeline = &fakeRunner{lines: []string{
			`{"type":"complete","session_id":"s","response":"ok","citation_array":[]}`,
		}}
	}
	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer() failed: %v", err)
	}
	return srv
}

func TestNewServer_RequiresPipeline(t *testing.T) {
	_, err := NewServer(ServerConfig{Logger: testutil.DiscardLogger()})
	if err == nil {
		t.Fatal("NewServer() accepted a nil pipeline")
	}
}

func TestServer_Home(t *testing.T) {
	srv := newTestServer(t, ServerConfig{})

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("GET / status = %d, want %d", w.Code, http.StatusOK)
	}

	var body healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Status != "healthy" {
		t.Errorf("status = %q, want healthy", body.Status)
	}
	if body.Message != "Cloud Case Study RAG API is running successfully!" {
		t.Errorf("message = %q", body.Message)
	}
	if _, err := time.Parse(time.RFC3339, body.Timestamp); err != nil {
		t.Errorf("timestamp %q is not RFC3339: %v", body.Timestamp, err)
	}
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t, ServerConfig{})

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("GET /health status = %d, want %d", w.Code, http.StatusOK)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}
	if _, ok := body["message"]; ok {
		t.Error("health response carries a message field, want none")
	}
}

func TestServer_QueryRouted(t *testing.T) {
	runner := &fakeRunner{lines: []string{
		`{"type":"complete","session_id":"s","response":"routed","citation_array":[]}`,
	}}
	srv := newTestServer(t, ServerConfig{Pipeline: runner})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"user_query":"hi"}`))
	srv.Handler().ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("POST /query status = %d, want %d", w.Code, http.StatusOK)
	}
	events := testutil.ParseNDJSONEvents(t, w.Body.String())
	if len(events) != 1 || events[0].Type != "complete" {
		t.Fatalf("events = %+v, want one complete event", events)
	}
	if runner.calls != 1 {
		t.Errorf("runner called %d times, want 1", runner.calls)
	}
}

func TestServer_UnknownRoute(t *testing.T) {
	srv := newTestServer(t, ServerConfig{})

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("GET /nope status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestServer_HealthBypassesRateLimit(t *testing.T) {
	srv := newTestServer(t, ServerConfig{RateLimitRPS: 0.001, RateLimitBurst: 1})

	for i := range 5 {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/health", nil)
		r.RemoteAddr = "10.9.9.9:1234"
		srv.Handler().ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Fatalf("health request %d status = %d, want %d", i+1, w.Code, http.StatusOK)
		}
	}
}

func TestServer_QueryRateLimited(t *testing.T) {
	srv := newTestServer(t, ServerConfig{RateLimitRPS: 0.001, RateLimitBurst: 1})

	first := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"user_query":"hi"}`))
	r.RemoteAddr = "10.1.1.1:1234"
	srv.Handler().ServeHTTP(first, r)
	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want %d", first.Code, http.StatusOK)
	}

	second := httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"user_query":"hi"}`))
	r.RemoteAddr = "10.1.1.1:1234"
	srv.Handler().ServeHTTP(second, r)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want %d", second.Code, http.StatusTooManyRequests)
	}
}
