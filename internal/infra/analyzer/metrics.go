package analyzer

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AnalysisMetricsRecorder defines the interface for recording
// analysis-related metrics. Abstracting the recorder keeps the provider
// adapters testable (inject a mock instead of Prometheus) and reusable
// across providers.
type AnalysisMetricsRecorder interface {
	// RecordInputLength records the length of the analyzed article body in
	// characters, after truncation.
	RecordInputLength(length int)

	// RecordDuration records the time taken to produce one analysis.
	RecordDuration(duration time.Duration)

	// RecordParseFailure increments the counter for model responses that
	// failed the analysis schema.
	RecordParseFailure()

	// RecordQuality counts a completed analysis by its quality grade.
	RecordQuality(quality string)
}

// PrometheusAnalysisMetrics implements AnalysisMetricsRecorder using
// Prometheus metrics. This is the production implementation.
type PrometheusAnalysisMetrics struct {
	inputHistogram    prometheus.Histogram
	durationHistogram prometheus.Histogram
	parseFailures     prometheus.Counter
	qualityCounter    *prometheus.CounterVec
}

var (
	prometheusMetricsInstance *PrometheusAnalysisMetrics
	prometheusMetricsOnce     sync.Once
)

// getOrCreateHistogram gets an existing histogram or creates a new one if it doesn't exist
func getOrCreateHistogram(opts prometheus.HistogramOpts) prometheus.Histogram {
	h := prometheus.NewHistogram(opts)
	if err := prometheus.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(prometheus.Histogram)
		}
		// If it's not an AlreadyRegisteredError, use promauto which handles this gracefully
		return promauto.NewHistogram(opts)
	}
	return h
}

// getOrCreateCounter gets an existing counter or creates a new one if it doesn't exist
func getOrCreateCounter(opts prometheus.CounterOpts) prometheus.Counter {
	c := prometheus.NewCounter(opts)
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(prometheus.Counter)
		}
		return promauto.NewCounter(opts)
	}
	return c
}

// getOrCreateCounterVec gets an existing counter vector or creates a new one if it doesn't exist
func getOrCreateCounterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(opts, labels)
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.CounterVec)
		}
		return promauto.NewCounterVec(opts, labels)
	}
	return c
}

// NewPrometheusAnalysisMetrics creates a new Prometheus-based metrics recorder.
// It initializes and registers all required Prometheus metrics.
// Uses singleton pattern to avoid duplicate metric registration in tests.
func NewPrometheusAnalysisMetrics() *PrometheusAnalysisMetrics {
	prometheusMetricsOnce.Do(func() {
		prometheusMetricsInstance = &PrometheusAnalysisMetrics{
			inputHistogram: getOrCreateHistogram(prometheus.HistogramOpts{
				Name:    "article_analysis_input_chars",
				Help:    "Distribution of analyzed article lengths in characters (Unicode runes)",
				Buckets: []float64{500, 1000, 2000, 4000, 8000, 12000, 16000, 20000},
			}),
			durationHistogram: getOrCreateHistogram(prometheus.HistogramOpts{
				Name:    "article_analysis_duration_seconds",
				Help:    "Time taken to produce a structured analysis via AI API",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
			}),
			parseFailures: getOrCreateCounter(prometheus.CounterOpts{
				Name: "article_analysis_parse_failures_total",
				Help: "Total number of model responses rejected by the analysis schema",
			}),
			qualityCounter: getOrCreateCounterVec(prometheus.CounterOpts{
				Name: "article_analysis_quality_total",
				Help: "Completed analyses by content quality grade",
			}, []string{"quality"}),
		}
	})
	return prometheusMetricsInstance
}

// RecordInputLength implements AnalysisMetricsRecorder.RecordInputLength
func (p *PrometheusAnalysisMetrics) RecordInputLength(length int) {
	p.inputHistogram.Observe(float64(length))
}

// RecordDuration implements AnalysisMetricsRecorder.RecordDuration
func (p *PrometheusAnalysisMetrics) RecordDuration(duration time.Duration) {
	p.durationHistogram.Observe(duration.Seconds())
}

// RecordParseFailure implements AnalysisMetricsRecorder.RecordParseFailure
func (p *PrometheusAnalysisMetrics) RecordParseFailure() {
	p.parseFailures.Inc()
}

// RecordQuality implements AnalysisMetricsRecorder.RecordQuality
func (p *PrometheusAnalysisMetrics) RecordQuality(quality string) {
	p.qualityCounter.WithLabelValues(quality).Inc()
}
