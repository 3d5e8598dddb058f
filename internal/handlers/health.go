package handlers

import (
	"context"
	"net/http"
	"time"

	applog "formulary/internal/log"
)

const healthPingTimeout = 2 * time.Second

type healthResponse struct {
	Status   string          `json:"status"`
	Time     time.Time       `json:"time"`
	Database string          `json:"database"`
	Datasets map[string]bool `json:"datasets,omitempty"`
}

// Health reports readiness. The response is 503 when the database does not
// answer a ping; cold dataset caches are reported but do not fail the probe.
func Health(w http.ResponseWriter, r *http.Request) {
	applog.Debug(r.Context(), "health check requested", "method", r.Method)
	resp := healthResponse{
		Status:   "ok",
		Time:     time.Now().UTC(),
		Database: pingDatabase(r.Context()),
	}
	if datasets != nil {
		resp.Datasets = make(map[string]bool)
		for _, st := range datasets.Status() {
			resp.Datasets[string(st.Dataset)] = st.Loaded && st.Fresh
		}
	}

	status := http.StatusOK
	if resp.Database == "unavailable" {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, resp)
}

func pingDatabase(ctx context.Context) string {
	if database == nil {
		return "not configured"
	}
	sqlDB, err := database.DB()
	if err != nil {
		applog.Warn(ctx, "health check could not access database handle", "error", err)
		return "unavailable"
	}
	ctx, cancel := context.WithTimeout(ctx, healthPingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		applog.Warn(ctx, "health check database ping failed", "error", err)
		return "unavailable"
	}
	return "ok"
}
