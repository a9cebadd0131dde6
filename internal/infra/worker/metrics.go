package worker

import (
	"newsriver/internal/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// WorkerMetrics provides Prometheus metrics for the enrichment worker.
// It embeds the standard ConfigMetrics for configuration monitoring and adds
// metrics for the periodic requeue sweep that rescues stalled articles.
//
// Embedded metrics (from ConfigMetrics):
//   - worker_config_load_timestamp: Unix timestamp of last configuration load
//   - worker_config_validation_errors_total: Total validation errors by field
//   - worker_config_fallbacks_total: Total fallback operations by field
//   - worker_config_fallback_active: 1 if any fallback active, 0 otherwise
//
// Worker-specific metrics:
//   - worker_requeue_runs_total: Total requeue sweeps by status (success/failure)
//   - worker_requeue_duration_seconds: Duration histogram of requeue sweeps
//   - worker_requeue_articles_total: Total articles republished by sweeps
//   - worker_requeue_last_success_timestamp: Unix timestamp of last successful sweep
//
// Example usage:
//
//	metrics := NewWorkerMetrics()
//	metrics.MustRegister()
//
//	start := time.Now()
//	count, err := reconciler.Requeue(ctx)
//	if err != nil {
//	    metrics.RecordJobRun("failure")
//	} else {
//	    metrics.RecordJobRun("success")
//	    metrics.RecordArticlesRequeued(count)
//	    metrics.RecordLastSuccess()
//	}
//	metrics.RecordJobDuration(time.Since(start).Seconds())
type WorkerMetrics struct {
	// Embedded configuration metrics
	*config.ConfigMetrics

	// RequeueRunsTotal counts the total number of requeue sweeps.
	// Type: Counter
	// Labels: status (success, failure)
	RequeueRunsTotal *prometheus.CounterVec

	// RequeueDurationSeconds measures the duration of each requeue sweep.
	// Type: Histogram
	// Buckets: 50ms to 5m. A sweep is one indexed query plus a batched
	// publish, so anything beyond a few seconds indicates trouble.
	RequeueDurationSeconds prometheus.Histogram

	// RequeueArticlesTotal counts articles republished to the queue by sweeps.
	// Type: Counter
	RequeueArticlesTotal prometheus.Counter

	// RequeueLastSuccessTimestamp records the Unix timestamp of the last
	// successful sweep. Alert when this falls more than two schedule
	// intervals behind.
	// Type: Gauge
	RequeueLastSuccessTimestamp prometheus.Gauge
}

// NewWorkerMetrics creates a new WorkerMetrics instance with all metrics initialized.
// Metrics are registered with the default Prometheus registry via promauto.
func NewWorkerMetrics() *WorkerMetrics {
	return &WorkerMetrics{
		ConfigMetrics: config.NewConfigMetrics("worker"),

		RequeueRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_requeue_runs_total",
			Help: "Total number of requeue sweeps by status (success/failure)",
		}, []string{"status"}),

		RequeueDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "worker_requeue_duration_seconds",
			Help:    "Duration of requeue sweep execution in seconds",
			Buckets: []float64{0.05, 0.25, 1, 5, 15, 60, 300},
		}),

		RequeueArticlesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "worker_requeue_articles_total",
			Help: "Total number of stalled articles republished across all sweeps",
		}),

		RequeueLastSuccessTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "worker_requeue_last_success_timestamp",
			Help: "Unix timestamp of the last successful requeue sweep",
		}),
	}
}

// MustRegister is a no-op method for API compatibility.
// Metrics are automatically registered via promauto when created in NewWorkerMetrics.
//
// This method exists to maintain consistency with the expected metrics initialization pattern:
//
//	metrics := NewWorkerMetrics()
//	metrics.MustRegister()
//
// Even though registration happens automatically, this explicit call makes the
// initialization intent clear and maintains compatibility with future changes.
func (m *WorkerMetrics) MustRegister() {
	// No-op: metrics are auto-registered via promauto
}

// RecordJobRun increments the sweep run counter for the given status.
// Status should be either "success" or "failure".
func (m *WorkerMetrics) RecordJobRun(status string) {
	m.RequeueRunsTotal.WithLabelValues(status).Inc()
}

// RecordJobDuration observes the duration of a requeue sweep in seconds.
func (m *WorkerMetrics) RecordJobDuration(seconds float64) {
	m.RequeueDurationSeconds.Observe(seconds)
}

// RecordArticlesRequeued adds the number of articles republished by one sweep.
func (m *WorkerMetrics) RecordArticlesRequeued(count int) {
	m.RequeueArticlesTotal.Add(float64(count))
}

// RecordLastSuccess records the current time as the last successful sweep completion.
func (m *WorkerMetrics) RecordLastSuccess() {
	m.RequeueLastSuccessTimestamp.SetToCurrentTime()
}
