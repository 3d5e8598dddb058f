package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"formulary/internal/compliance"
	"formulary/internal/eu"
	"formulary/internal/handlers"
)

type fixedChecker struct{}

func (fixedChecker) CheckCompliance(_ context.Context, formulaID uint) (*compliance.Result, error) {
	return &compliance.Result{
		CheckID:         "check-1",
		FormulationID:   formulaID,
		FormulationName: "Citrus Tonic",
		IsCompliant:     true,
		CheckedAt:       time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC),
		Issues:          []compliance.Issue{},
	}, nil
}

func resetHandlers(t *testing.T) {
	t.Cleanup(func() {
		handlers.Configure(nil, nil)
		handlers.ConfigureCompliance(nil, nil)
	})
}

func TestNewAppliesSessionDefaults(t *testing.T) {
	cfg := Config{Addr: ":8080", Session: SessionConfig{CookieSecure: true}, Checker: fixedChecker{}}
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	resetHandlers(t)

	if srv.httpServer.Addr != ":8080" {
		t.Fatalf("expected server addr :8080, got %q", srv.httpServer.Addr)
	}
	if srv.httpServer.Handler == nil {
		t.Fatal("expected handler to be configured")
	}

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/app/formulations/4/compliance", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected report to render, got %d", rr.Code)
	}
	cookies := rr.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("expected session cookie to be set")
	}
	if cookies[0].Name != "formulary_session" {
		t.Fatalf("expected default session cookie name, got %q", cookies[0].Name)
	}
	if !cookies[0].Secure {
		t.Fatal("expected cookie secure flag to be true")
	}
}

func TestServerHandler(t *testing.T) {
	cfg := Config{Addr: ":9090"}
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	resetHandlers(t)

	handler := srv.Handler()
	if handler == nil {
		t.Fatal("expected non-nil handler")
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected /healthz to return 200, got %d", rr.Code)
	}
}

func TestServerServesComplianceJSON(t *testing.T) {
	store := eu.NewStore(eu.Config{})
	srv, err := New(Config{Addr: ":0", Checker: fixedChecker{}, Datasets: store})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	resetHandlers(t)

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/formulations/12/compliance", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var result compliance.Result
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.FormulationID != 12 {
		t.Fatalf("expected formulation 12, got %d", result.FormulationID)
	}

	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/eu/datasets", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected dataset status 200, got %d", rr.Code)
	}
}

func TestNewAppliesTimeoutDefaults(t *testing.T) {
	srv, err := New(Config{Addr: ":0"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	resetHandlers(t)

	if srv.httpServer.WriteTimeout != defaultWriteTimeout {
		t.Fatalf("expected default write timeout, got %s", srv.httpServer.WriteTimeout)
	}
	if srv.config.ShutdownTimeout != defaultShutdownTimeout {
		t.Fatalf("expected default shutdown timeout, got %s", srv.config.ShutdownTimeout)
	}
}

func TestLogRequestsKeepsStatus(t *testing.T) {
	handler := logRequests(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/formulations/1/compliance", nil))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 to pass through, got %d", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected generated request id header")
	}
}

func TestLogRequestsKeepsIncomingRequestID(t *testing.T) {
	handler := logRequests(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "edge-42")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Request-ID"); got != "edge-42" {
		t.Fatalf("expected incoming request id to be echoed, got %q", got)
	}
}
