package config

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ConfigMetrics tracks configuration state for one component. The
// fail-open loaders in this package make a broken environment variable
// survivable; these series make it visible, so "the sweep runs hourly
// because REQUEUE_SCHEDULE has a typo" shows up on a dashboard instead
// of in a post-mortem.
//
// Metrics generated (prefixed with the component name):
//   - {component}_config_load_timestamp: Unix timestamp of last configuration load
//   - {component}_config_validation_errors_total: total validation errors by field
//   - {component}_config_fallbacks_total: total fallback operations by field
//   - {component}_config_fallback_active: 1 if any fallback active, 0 otherwise
//
// Example usage:
//
//	// In the worker binary
//	metrics := config.NewConfigMetrics("worker")
//
//	result := config.LoadEnvWithFallback("REQUEUE_SCHEDULE", defaultSchedule, config.ValidateCronSchedule)
//	if result.FallbackApplied {
//	    metrics.RecordValidationError("requeue_schedule")
//	    metrics.RecordFallback("requeue_schedule")
//	}
//	metrics.SetFallbackActive(anyFallback)
//	metrics.RecordLoadTimestamp()
type ConfigMetrics struct {
	// LoadTimestamp records the Unix timestamp of the last configuration load.
	// Type: Gauge
	LoadTimestamp prometheus.Gauge

	// ValidationErrorsTotal counts configuration validation errors.
	// Type: Counter
	// Labels: field (e.g., "requeue_schedule", "timezone", "health_port")
	ValidationErrorsTotal *prometheus.CounterVec

	// FallbacksTotal counts fallback operations.
	// Type: Counter
	// Labels: field
	FallbacksTotal *prometheus.CounterVec

	// FallbackActive indicates whether any fallback is currently active.
	// Type: Gauge
	// Values: 1 (some field is running on its default), 0 (all clean)
	FallbackActive prometheus.Gauge

	componentName string
}

// NewConfigMetrics registers the configuration series for a component
// name and returns the handle. The name prefixes every metric, so each
// binary gets its own family ("worker" produces
// worker_config_load_timestamp and so on).
//
// Registration goes through promauto against the default registry;
// calling this twice with the same component name panics on duplicate
// registration. One call per binary, at startup.
func NewConfigMetrics(componentName string) *ConfigMetrics {
	return &ConfigMetrics{
		LoadTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_config_load_timestamp", componentName),
			Help: fmt.Sprintf("Unix timestamp of last %s configuration load", componentName),
		}),

		ValidationErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_config_validation_errors_total", componentName),
			Help: fmt.Sprintf("Total number of %s configuration validation errors", componentName),
		}, []string{"field"}),

		FallbacksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_config_fallbacks_total", componentName),
			Help: fmt.Sprintf("Total number of %s configuration fallback operations", componentName),
		}, []string{"field"}),

		FallbackActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_config_fallback_active", componentName),
			Help: fmt.Sprintf("1 if any %s configuration fallback is active, 0 otherwise", componentName),
		}),

		componentName: componentName,
	}
}

// RecordLoadTimestamp stamps the gauge with the current time. Call it
// once per configuration load, after all fields are resolved.
func (m *ConfigMetrics) RecordLoadTimestamp() {
	m.LoadTimestamp.SetToCurrentTime()
}

// RecordValidationError increments the validation error counter for a
// field that failed validation.
func (m *ConfigMetrics) RecordValidationError(field string) {
	m.ValidationErrorsTotal.WithLabelValues(field).Inc()
}

// RecordFallback increments the fallback counter for a field whose
// default replaced a broken value.
func (m *ConfigMetrics) RecordFallback(field string) {
	m.FallbacksTotal.WithLabelValues(field).Inc()
}

// SetFallbackActive raises or clears the fallback flag. Set it from
// the overall load result: true when any field fell back, false when
// the whole environment parsed clean.
func (m *ConfigMetrics) SetFallbackActive(active bool) {
	if active {
		m.FallbackActive.Set(1)
	} else {
		m.FallbackActive.Set(0)
	}
}
