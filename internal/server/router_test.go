package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"formulary/internal/metrics"
)

func TestNewRouterRegistersHealthRoute(t *testing.T) {
	router := newRouter(routerOptions{})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected /healthz to return 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json content type, got %q", ct)
	}
}

func TestNewRouterRejectsWrongMethodOnRefresh(t *testing.T) {
	router := newRouter(routerOptions{})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/eu/datasets/refresh", nil))

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestNewRouterServesMetrics(t *testing.T) {
	router := newRouter(routerOptions{metrics: metrics.New(), metricsPath: "/metrics"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected /metrics to return 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Fatal("expected go runtime metrics in exposition")
	}
}

func TestNewRouterWithoutMetrics(t *testing.T) {
	router := newRouter(routerOptions{})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected /metrics to be absent, got %d", rr.Code)
	}
}

func TestNewRouterInstrumentsRoutes(t *testing.T) {
	m := metrics.New()
	router := newRouter(routerOptions{metrics: m, metricsPath: "/metrics"})
	for i := 0; i < 2; i++ {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	}

	count, err := testutil.GatherAndCount(m.Registry(), "formulary_http_requests_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one request series for /healthz, got %d", count)
	}
}
