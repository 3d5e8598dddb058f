package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"formulary/internal/compliance"
	"formulary/internal/eu"
	"formulary/internal/formulations"
	applog "formulary/internal/log"
	"formulary/internal/views/pages"
)

// ComplianceJSON serves GET /api/formulations/{id}/compliance.
func ComplianceJSON(w http.ResponseWriter, r *http.Request) {
	formulaID, ok := formulaIDFromPath(r)
	if !ok {
		writeJSONError(w, r, http.StatusBadRequest, "Formulation id must be a positive integer.")
		return
	}

	result, err := runCheck(r, formulaID)
	if err != nil {
		status, message := checkErrorStatus(err)
		writeJSONError(w, r, status, message)
		return
	}

	writeJSON(w, r, http.StatusOK, result)
}

// ComplianceReport serves GET /app/formulations/{id}/compliance and remembers
// the formulation in the session.
func ComplianceReport(w http.ResponseWriter, r *http.Request) {
	formulaID, ok := formulaIDFromPath(r)
	if !ok {
		http.Error(w, "Formulation id must be a positive integer.", http.StatusBadRequest)
		return
	}

	result, err := runCheck(r, formulaID)
	if err != nil {
		status, message := checkErrorStatus(err)
		http.Error(w, message, status)
		return
	}

	if sessionManager != nil {
		sessionManager.Put(r.Context(), sessionLastFormulaKey, int(formulaID))
	}

	pushURL(w, r, r.URL.Path)
	renderComponent(w, r, fmt.Sprintf("Compliance: %s", result.FormulationName), pages.ComplianceReport(result))
}

// LastComplianceReport redirects to the most recently viewed report of the
// current session.
func LastComplianceReport(w http.ResponseWriter, r *http.Request) {
	if sessionManager == nil {
		http.Error(w, "Sessions are not configured.", http.StatusServiceUnavailable)
		return
	}

	formulaID := sessionManager.GetInt(r.Context(), sessionLastFormulaKey)
	if formulaID <= 0 {
		http.Error(w, "No compliance report has been viewed in this session.", http.StatusNotFound)
		return
	}

	http.Redirect(w, r, fmt.Sprintf("/app/formulations/%d/compliance", formulaID), http.StatusSeeOther)
}

func runCheck(r *http.Request, formulaID uint) (*compliance.Result, error) {
	if checker == nil {
		return nil, errCheckerUnavailable
	}
	applog.Debug(r.Context(), "compliance check requested", "formulaID", formulaID, "htmx", wantsFragment(r))
	return checker.CheckCompliance(r.Context(), formulaID)
}

var errCheckerUnavailable = errors.New("handlers: compliance checker not configured")

func checkErrorStatus(err error) (int, string) {
	var parseErr *eu.ParseError
	switch {
	case errors.Is(err, errCheckerUnavailable), errors.Is(err, gorm.ErrInvalidDB):
		return http.StatusServiceUnavailable, "Compliance checks are unavailable because the service is not fully configured."
	case errors.Is(err, formulations.ErrNotFound):
		return http.StatusNotFound, "The formulation does not exist."
	case errors.As(err, &parseErr):
		return http.StatusBadGateway, fmt.Sprintf("The EU %s dataset could not be read.", parseErr.Dataset)
	case errors.Is(err, eu.ErrUpstreamFetch):
		return http.StatusBadGateway, "The EU reference data is currently unreachable. Please try again later."
	default:
		return http.StatusInternalServerError, "We were unable to check this formulation. Please try again."
	}
}

func formulaIDFromPath(r *http.Request) (uint, bool) {
	raw := strings.TrimSpace(r.PathValue("id"))
	id, err := strconv.ParseUint(raw, 10, 0)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
