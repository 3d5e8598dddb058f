package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func withDatabase(t *testing.T, db *gorm.DB) {
	t.Helper()
	prevSM, prevDB := sessionManager, database
	Configure(prevSM, db)
	t.Cleanup(func() { Configure(prevSM, prevDB) })
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) healthResponse {
	t.Helper()
	var resp healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	withDatabase(t, nil)
	withCompliance(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	Health(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected Content-Type application/json, got %q", ct)
	}

	resp := decodeHealth(t, w)
	if resp.Status != "ok" {
		t.Fatalf("expected status ok, got %q", resp.Status)
	}
	if resp.Time.IsZero() {
		t.Fatal("expected response time to be populated")
	}
	if resp.Database != "not configured" {
		t.Fatalf("expected database not configured, got %q", resp.Database)
	}
	if resp.Datasets != nil {
		t.Fatalf("expected no dataset section, got %v", resp.Datasets)
	}
}

func TestHealthReportsDatabaseAndDatasets(t *testing.T) {
	withDatabase(t, openTestDB(t))
	withCompliance(t, nil, &stubDatasets{})

	w := httptest.NewRecorder()
	Health(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	resp := decodeHealth(t, w)
	if resp.Database != "ok" {
		t.Fatalf("expected database ok, got %q", resp.Database)
	}
	if !resp.Datasets["additives"] {
		t.Fatalf("expected additives to be warm: %v", resp.Datasets)
	}
	if warm, ok := resp.Datasets["flavourings"]; !ok || warm {
		t.Fatalf("expected flavourings to be reported cold: %v", resp.Datasets)
	}
}

func TestHealthDegradedWhenDatabaseClosed(t *testing.T) {
	db := openTestDB(t)
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	if err := sqlDB.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	withDatabase(t, db)

	w := httptest.NewRecorder()
	Health(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", w.Code)
	}
	resp := decodeHealth(t, w)
	if resp.Status != "degraded" || resp.Database != "unavailable" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}
