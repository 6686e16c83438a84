// Package metrics defines the Prometheus collectors used by the search
// engine and its daemon and exposes an HTTP handler for scraping.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	DocsAddedTotal       prometheus.Counter
	DocsDeletedTotal     prometheus.Counter
	CommitsTotal         *prometheus.CounterVec
	CommitDuration       prometheus.Histogram
	SnapshotGeneration   prometheus.Gauge
	SnapshotDocCount     prometheus.Gauge
	PendingDocs          prometheus.Gauge
	IngestEventsTotal    *prometheus.CounterVec
}

// New creates all collectors and registers them on reg. Collectors that reg
// already holds are reused, so several engines may share one registry. A
// nil reg leaves the collectors unregistered.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		)),
		HTTPRequestDuration: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		)),
		HTTPRequestsInFlight: register(reg, prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		)),
		SearchQueriesTotal: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by result type (hit, zero_result, error).",
			},
			[]string{"result_type"},
		)),
		SearchLatency: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search latency in seconds by entry point (text, query).",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"kind"},
		)),
		SearchResultsCount: register(reg, prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per search.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		)),
		CacheHitsTotal: register(reg, prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of search cache hits.",
			},
		)),
		CacheMissesTotal: register(reg, prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of search cache misses.",
			},
		)),
		DocsAddedTotal: register(reg, prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_added_total",
				Help: "Total documents admitted to the pending buffer.",
			},
		)),
		DocsDeletedTotal: register(reg, prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_deleted_total",
				Help: "Total document ids tombstoned.",
			},
		)),
		CommitsTotal: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_commits_total",
				Help: "Total commit operations by status (ok, noop, error).",
			},
			[]string{"status"},
		)),
		CommitDuration: register(reg, prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "index_commit_duration_seconds",
				Help:    "Commit latency in seconds, persistence included.",
				Buckets: prometheus.DefBuckets,
			},
		)),
		SnapshotGeneration: register(reg, prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_snapshot_generation",
				Help: "Generation of the published snapshot.",
			},
		)),
		SnapshotDocCount: register(reg, prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_snapshot_documents",
				Help: "Live documents in the published snapshot.",
			},
		)),
		PendingDocs: register(reg, prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_pending_documents",
				Help: "Documents waiting for the next commit.",
			},
		)),
		IngestEventsTotal: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_events_total",
				Help: "Ingest events consumed by type and status.",
			},
			[]string{"type", "status"},
		)),
	}
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// Handler returns the scrape handler for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
