package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	templpkg "github.com/a-h/templ"
	"github.com/alexedwards/scs/v2"
	"gorm.io/gorm"

	"formulary/internal/compliance"
	"formulary/internal/eu"
	applog "formulary/internal/log"
	"formulary/internal/views/pages"
)

const sessionLastFormulaKey = "compliance:last:formula"

// ComplianceChecker runs a compliance check. *compliance.Evaluator satisfies it.
type ComplianceChecker interface {
	CheckCompliance(ctx context.Context, formulaID uint) (*compliance.Result, error)
}

// DatasetCache exposes the reference data cache. *eu.Store satisfies it.
type DatasetCache interface {
	Status() []eu.DatasetStatus
	Invalidate(dataset eu.Dataset)
}

var (
	sessionManager *scs.SessionManager
	database       *gorm.DB
	checker        ComplianceChecker
	datasets       DatasetCache
)

// Configure installs the shared dependencies used by the HTTP handlers.
func Configure(sm *scs.SessionManager, db *gorm.DB) {
	sessionManager = sm
	database = db
}

// ConfigureCompliance installs the compliance checker and the dataset cache.
func ConfigureCompliance(c ComplianceChecker, d DatasetCache) {
	checker = c
	datasets = d
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		applog.Error(r.Context(), "failed to encode json response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, r, status, errorResponse{Error: message})
}

// renderComponent writes component as a fragment for htmx requests and as a
// full document otherwise.
func renderComponent(w http.ResponseWriter, r *http.Request, title string, component templpkg.Component) {
	if !wantsFragment(r) {
		component = pages.Document(title, component)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := component.Render(r.Context(), w); err != nil {
		applog.Error(r.Context(), "failed to render page", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
