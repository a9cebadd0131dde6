// Package metrics provides centralized Prometheus metrics for the application.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics track HTTP request patterns and performance
var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures HTTP request duration in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestSize measures HTTP request body size in bytes
	HTTPRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_size_bytes",
			Help:    "HTTP request size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// HTTPResponseSize measures HTTP response body size in bytes
	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// HTTPRequestsInFlight tracks the number of requests currently being served
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests being served",
		},
	)

	// ActiveConnections tracks the number of active HTTP connections
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_connections",
			Help: "Number of active HTTP connections",
		},
	)
)

// Scraper metrics track per-source feed polling
var (
	// ScraperTicksTotal counts completed scrape cycles by source and outcome
	ScraperTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_ticks_total",
			Help: "Total number of scrape cycles by outcome",
		},
		[]string{"source_id", "outcome"},
	)

	// ScraperTickDuration measures time to complete one scrape cycle
	ScraperTickDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scraper_tick_duration_seconds",
			Help:    "Time taken to complete one scrape cycle",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"source_id"},
	)

	// FeedEntriesTotal counts feed entries by disposition (seen, inserted)
	FeedEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_entries_total",
			Help: "Total number of feed entries by disposition",
		},
		[]string{"source_id", "disposition"},
	)

	// ScrapersActive tracks the number of running scraper instances
	ScrapersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scrapers_active",
			Help: "Number of running scraper instances",
		},
	)
)

// Pipeline metrics track the enrichment workflow
var (
	// PipelineStepDuration measures enrichment step duration by step name
	PipelineStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_step_duration_seconds",
			Help:    "Enrichment pipeline step duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"step"},
	)

	// ArticlesProcessedTotal counts articles reaching a terminal status
	ArticlesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "articles_processed_total",
			Help: "Total number of articles reaching a terminal status",
		},
		[]string{"status"},
	)

	// PipelineBatchSize measures processable articles per consumed batch
	PipelineBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_batch_size",
			Help:    "Number of processable articles per consumed batch",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		},
	)

	// LimiterSleepsTotal counts politeness and backoff sleeps by reason
	LimiterSleepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "limiter_sleeps_total",
			Help: "Total number of politeness and backoff sleeps",
		},
		[]string{"reason"},
	)

	// LimiterSleepSeconds accumulates time spent sleeping by reason
	LimiterSleepSeconds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "limiter_sleep_seconds_total",
			Help: "Total time spent in politeness and backoff sleeps",
		},
		[]string{"reason"},
	)
)

// Database metrics track database performance
var (
	// DBQueryDuration measures database query duration
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"operation"},
	)

	// DBConnectionsActive tracks active database connections
	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	// DBConnectionsIdle tracks idle database connections
	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)

// RecordHTTPRequest records an HTTP request with its metadata
func RecordHTTPRequest(method, path, status string, duration time.Duration, requestSize, responseSize int) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())

	if requestSize > 0 {
		HTTPRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	}
	if responseSize > 0 {
		HTTPResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
	}
}

// RecordOperationDuration records the duration of a named operation
func RecordOperationDuration(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
