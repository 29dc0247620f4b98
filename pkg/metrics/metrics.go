// Package metrics defines the Prometheus metric collectors used across the
// platform and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the platform. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	IngestRunsTotal      *prometheus.CounterVec
	IngestEntriesTotal   *prometheus.CounterVec
	IngestDuration       prometheus.Histogram
	OCRLatency           *prometheus.HistogramVec
	SnapshotRecords      prometheus.Gauge
	SnapshotSavesTotal   *prometheus.CounterVec
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
}

// New creates all collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		IngestRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_runs_total",
				Help: "Ingestion runs by final status (committed, archive_error, persist_error).",
			},
			[]string{"status"},
		),
		IngestEntriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_entries_total",
				Help: "Archive entries by outcome (processed, skipped, failed).",
			},
			[]string{"outcome"},
		),
		IngestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ingest_duration_seconds",
				Help:    "Wall time of a full ingestion run.",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
			},
		),
		OCRLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ocr_latency_seconds",
				Help:    "Per-image OCR latency in seconds by outcome.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"outcome"},
		),
		SnapshotRecords: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "snapshot_records",
				Help: "Number of records in the last committed snapshot.",
			},
		),
		SnapshotSavesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapshot_saves_total",
				Help: "Snapshot save attempts by status.",
			},
			[]string{"status"},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by result type (hit, zero_result, no_snapshot, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of query cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of query cache misses.",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.IngestRunsTotal,
		m.IngestEntriesTotal,
		m.IngestDuration,
		m.OCRLatency,
		m.SnapshotRecords,
		m.SnapshotSavesTotal,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
	)

	return m
}

func (m *Metrics) ObserveOCR(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.OCRLatency.WithLabelValues(outcome).Observe(d.Seconds())
	m.IngestEntriesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CountSkipped(n int) {
	if m == nil || n == 0 {
		return
	}
	m.IngestEntriesTotal.WithLabelValues("skipped").Add(float64(n))
}

func (m *Metrics) ObserveRun(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.IngestRunsTotal.WithLabelValues(status).Inc()
	m.IngestDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveSave(err error, records int) {
	if m == nil {
		return
	}
	if err != nil {
		m.SnapshotSavesTotal.WithLabelValues("error").Inc()
		return
	}
	m.SnapshotSavesTotal.WithLabelValues("ok").Inc()
	m.SnapshotRecords.Set(float64(records))
}

func (m *Metrics) ObserveSearch(resultType string, cacheStatus string, d time.Duration) {
	if m == nil {
		return
	}
	m.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	m.SearchLatency.WithLabelValues(cacheStatus).Observe(d.Seconds())
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.CacheHitsTotal.Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.CacheMissesTotal.Inc()
	}
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
