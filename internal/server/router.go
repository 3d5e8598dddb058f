package server

import (
	"context"
	"net/http"
	"strings"

	"formulary/internal/handlers"
	applog "formulary/internal/log"
	"formulary/internal/metrics"
)

const staticDir = "web/static"

type routerOptions struct {
	metrics     *metrics.Metrics
	metricsPath string
}

type router struct {
	mux     *http.ServeMux
	metrics *metrics.Metrics
}

// handle registers h under pattern. The metric route label is the pattern
// without its method so that GET and POST on one path share a series.
func (rt *router) handle(pattern string, h http.Handler) {
	route := pattern
	if _, path, ok := strings.Cut(pattern, " "); ok {
		route = path
	}
	rt.mux.Handle(pattern, rt.metrics.InstrumentHandler(route, h))
	applog.Debug(context.Background(), "route registered", "pattern", pattern)
}

func newRouter(opts routerOptions) http.Handler {
	rt := &router{mux: http.NewServeMux(), metrics: opts.metrics}
	applog.Debug(context.Background(), "registering http routes")

	rt.handle("/healthz", http.HandlerFunc(handlers.Health))

	rt.handle("GET /api/formulations/{id}/compliance", http.HandlerFunc(handlers.ComplianceJSON))
	rt.handle("GET /api/eu/datasets", http.HandlerFunc(handlers.DatasetStatus))
	rt.handle("POST /api/eu/datasets/refresh", http.HandlerFunc(handlers.RefreshDatasets))

	rt.handle("GET /app/formulations/{id}/compliance", http.HandlerFunc(handlers.ComplianceReport))
	rt.handle("GET /app/compliance/last", http.HandlerFunc(handlers.LastComplianceReport))

	if opts.metricsPath != "" {
		// The scrape endpoint is not instrumented.
		rt.mux.Handle("GET "+opts.metricsPath, opts.metrics.Handler())
		applog.Debug(context.Background(), "route registered", "pattern", opts.metricsPath)
	}
	rt.handle("/assets/", http.StripPrefix("/assets/", http.FileServer(http.Dir(staticDir))))
	return rt.mux
}
