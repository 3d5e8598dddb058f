// Package metrics exposes Prometheus collectors for reference data fetches
// and compliance checks. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "formulary"

// Fetch outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeUpstream = "upstream_error"
	OutcomeParse    = "parse_error"
)

// Check outcomes.
const (
	CheckCompliant    = "compliant"
	CheckNonCompliant = "non_compliant"
	CheckFailed       = "failed"
)

// Metrics groups the collectors registered by New.
type Metrics struct {
	registry *prometheus.Registry

	datasetFetches *prometheus.CounterVec
	fetchDuration  *prometheus.HistogramVec
	datasetRecords *prometheus.GaugeVec
	cacheLookups   *prometheus.CounterVec
	checks         *prometheus.CounterVec
	issues         *prometheus.CounterVec
	checkDuration  prometheus.Histogram
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// New builds a registry holding the application collectors plus the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		datasetFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eu",
			Name:      "dataset_fetches_total",
			Help:      "Upstream EU dataset fetches by dataset and outcome.",
		}, []string{"dataset", "outcome"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "eu",
			Name:      "dataset_fetch_duration_seconds",
			Help:      "Time spent downloading and parsing an EU dataset.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}, []string{"dataset"}),
		datasetRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "eu",
			Name:      "dataset_records",
			Help:      "Records held in the cached EU dataset.",
		}, []string{"dataset"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eu",
			Name:      "cache_lookups_total",
			Help:      "EU dataset cache lookups by dataset and result (hit or miss).",
		}, []string{"dataset", "result"}),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "compliance",
			Name:      "checks_total",
			Help:      "Compliance checks by outcome.",
		}, []string{"outcome"}),
		issues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "compliance",
			Name:      "issues_total",
			Help:      "Compliance issues emitted by severity and type.",
		}, []string{"severity", "type"}),
		checkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "compliance",
			Name:      "check_duration_seconds",
			Help:      "Duration of a full compliance check including reference data loading.",
			Buckets:   prometheus.DefBuckets,
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.datasetFetches,
		m.fetchDuration,
		m.datasetRecords,
		m.cacheLookups,
		m.checks,
		m.issues,
		m.checkDuration,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveFetch records one upstream fetch attempt.
func (m *Metrics) ObserveFetch(dataset, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.datasetFetches.WithLabelValues(dataset, outcome).Inc()
	m.fetchDuration.WithLabelValues(dataset).Observe(elapsed.Seconds())
}

// SetRecords records the size of a freshly cached dataset.
func (m *Metrics) SetRecords(dataset string, n int) {
	if m == nil {
		return
	}
	m.datasetRecords.WithLabelValues(dataset).Set(float64(n))
}

// CacheLookup records a cache hit or miss.
func (m *Metrics) CacheLookup(dataset string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(dataset, result).Inc()
}

// ObserveCheck records a finished compliance check.
func (m *Metrics) ObserveCheck(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.checks.WithLabelValues(outcome).Inc()
	m.checkDuration.Observe(elapsed.Seconds())
}

// Issue records one emitted compliance issue.
func (m *Metrics) Issue(severity, issueType string) {
	if m == nil {
		return
	}
	m.issues.WithLabelValues(severity, issueType).Inc()
}

// InstrumentHandler counts and times requests served by next under the route
// label. A nil receiver returns next unchanged.
func (m *Metrics) InstrumentHandler(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	labels := prometheus.Labels{"route": route}
	return promhttp.InstrumentHandlerDuration(
		m.httpDuration.MustCurryWith(labels),
		promhttp.InstrumentHandlerCounter(m.httpRequests.MustCurryWith(labels), next),
	)
}
