package handlers

import (
	"net/http"

	"formulary/internal/eu"
	applog "formulary/internal/log"
)

type datasetsResponse struct {
	Datasets []eu.DatasetStatus `json:"datasets"`
}

// DatasetStatus serves GET /api/eu/datasets.
func DatasetStatus(w http.ResponseWriter, r *http.Request) {
	if datasets == nil {
		writeJSONError(w, r, http.StatusServiceUnavailable, "The EU reference data cache is not configured.")
		return
	}
	writeJSON(w, r, http.StatusOK, datasetsResponse{Datasets: datasets.Status()})
}

// RefreshDatasets serves POST /api/eu/datasets/refresh. Both caches are
// dropped and the next check fetches fresh copies.
func RefreshDatasets(w http.ResponseWriter, r *http.Request) {
	if datasets == nil {
		writeJSONError(w, r, http.StatusServiceUnavailable, "The EU reference data cache is not configured.")
		return
	}
	datasets.Invalidate(eu.DatasetAdditives)
	datasets.Invalidate(eu.DatasetFlavourings)
	applog.Info(r.Context(), "eu dataset caches invalidated")
	writeJSON(w, r, http.StatusAccepted, datasetsResponse{Datasets: datasets.Status()})
}
