package worker

import (
	"fmt"
	"log/slog"
	"time"

	"newsriver/internal/pkg/config"
)

// WorkerConfig holds the operational configuration for the enrichment
// worker binary: the requeue sweep schedule, alert fan-out, and the
// health server port.
//
// Configuration sources:
//   - Environment variables (loaded via LoadConfigFromEnv)
//   - Default values (provided by DefaultConfig)
//
// All fields have defaults and validation rules so the worker can start
// safely even with invalid or missing configuration.
type WorkerConfig struct {
	// RequeueSchedule is the cron expression for the stalled-article
	// requeue sweep.
	// Format: "minute hour day month weekday"
	// Example: "15 * * * *" (every hour at minute 15)
	// Validation: Must be a valid cron expression (5 fields)
	// Default: "15 * * * *"
	RequeueSchedule string

	// Timezone is the IANA timezone name for cron scheduling.
	// Example: "UTC", "Asia/Tokyo", "America/New_York"
	// Validation: Must be a valid IANA timezone name
	// Default: "UTC"
	Timezone string

	// AlertMaxConcurrent is the maximum number of alert channels notified
	// simultaneously when a pipeline fault is raised.
	// Range: 1-50
	// Default: 4
	AlertMaxConcurrent int

	// RequeueTimeout is the maximum duration for a single requeue sweep.
	// After this timeout, the sweep is cancelled and retried on the next
	// scheduled run.
	// Must be positive (> 0)
	// Default: 5 minutes
	RequeueTimeout time.Duration

	// HealthPort is the port number for the health check HTTP server.
	// Range: 1024-65535 (avoid privileged ports)
	// Default: 9091
	HealthPort int
}

// DefaultConfig returns a WorkerConfig with production defaults: an
// hourly sweep in UTC, a 5-minute sweep budget, and the conventional
// exporter-adjacent health port.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		RequeueSchedule:    "15 * * * *", // Hourly, offset from the top of the hour
		Timezone:           "UTC",
		AlertMaxConcurrent: 4,
		RequeueTimeout:     5 * time.Minute,
		HealthPort:         9091,
	}
}

// Validate checks if the configuration values are valid.
// Each field is validated with the reusable validators from
// internal/pkg/config; all failures are collected and returned together.
func (c *WorkerConfig) Validate() error {
	var errors []error

	if err := config.ValidateCronSchedule(c.RequeueSchedule); err != nil {
		errors = append(errors, fmt.Errorf("requeue schedule: %w", err))
	}

	if err := config.ValidateTimezone(c.Timezone); err != nil {
		errors = append(errors, fmt.Errorf("timezone: %w", err))
	}

	if err := config.ValidateIntRange(c.AlertMaxConcurrent, 1, 50); err != nil {
		errors = append(errors, fmt.Errorf("alert max concurrent: %w", err))
	}

	if err := config.ValidatePositiveDuration(c.RequeueTimeout); err != nil {
		errors = append(errors, fmt.Errorf("requeue timeout: %w", err))
	}

	if err := config.ValidateIntRange(c.HealthPort, 1024, 65535); err != nil {
		errors = append(errors, fmt.Errorf("health port: %w", err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation failed: %v", errors)
	}

	return nil
}

// LoadConfigFromEnv loads worker configuration from environment variables
// with validation and automatic fallback to default values on failure.
//
// This function implements the fail-open strategy:
//  1. Start with DefaultConfig() as base
//  2. Load each field from environment variables
//  3. Validate each loaded value
//  4. If validation fails: use default value, log warning, increment metrics
//  5. Never return error - always return a valid configuration
//
// Environment variables:
//   - REQUEUE_SCHEDULE: Cron expression (default: "15 * * * *")
//   - WORKER_TIMEZONE: IANA timezone name (default: "UTC")
//   - ALERT_MAX_CONCURRENT: Integer 1-50 (default: 4)
//   - REQUEUE_TIMEOUT: Duration string, e.g., "5m" (default: 5 minutes)
//   - WORKER_HEALTH_PORT: Integer 1024-65535 (default: 9091)
//
// Metrics updated per fallback: ValidationErrorsTotal, FallbacksTotal,
// FallbackActive, LoadTimestamp.
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) (*WorkerConfig, error) {
	cfg := DefaultConfig()
	fallbackApplied := false

	result := config.LoadEnvWithFallback("REQUEUE_SCHEDULE", cfg.RequeueSchedule, config.ValidateCronSchedule)
	cfg.RequeueSchedule = result.Value.(string)
	if result.FallbackApplied {
		fallbackApplied = true
		metrics.RecordValidationError("requeue_schedule")
		metrics.RecordFallback("requeue_schedule")
		for _, warning := range result.Warnings {
			logger.Warn("Configuration fallback applied",
				slog.String("field", "RequeueSchedule"),
				slog.String("warning", warning))
		}
	}

	result = config.LoadEnvWithFallback("WORKER_TIMEZONE", cfg.Timezone, config.ValidateTimezone)
	cfg.Timezone = result.Value.(string)
	if result.FallbackApplied {
		fallbackApplied = true
		metrics.RecordValidationError("timezone")
		metrics.RecordFallback("timezone")
		for _, warning := range result.Warnings {
			logger.Warn("Configuration fallback applied",
				slog.String("field", "Timezone"),
				slog.String("warning", warning))
		}
	}

	result = config.LoadEnvInt("ALERT_MAX_CONCURRENT", cfg.AlertMaxConcurrent, func(v int) error {
		return config.ValidateIntRange(v, 1, 50)
	})
	cfg.AlertMaxConcurrent = result.Value.(int)
	if result.FallbackApplied {
		fallbackApplied = true
		metrics.RecordValidationError("alert_max_concurrent")
		metrics.RecordFallback("alert_max_concurrent")
		for _, warning := range result.Warnings {
			logger.Warn("Configuration fallback applied",
				slog.String("field", "AlertMaxConcurrent"),
				slog.String("warning", warning))
		}
	}

	// Requeue sweeps are cheap; anything over an hour means the sweep is
	// wedged, not busy.
	result = config.LoadEnvDuration("REQUEUE_TIMEOUT", cfg.RequeueTimeout, func(d time.Duration) error {
		return config.ValidateDuration(d, 30*time.Second, 1*time.Hour)
	})
	cfg.RequeueTimeout = result.Value.(time.Duration)
	if result.FallbackApplied {
		fallbackApplied = true
		metrics.RecordValidationError("requeue_timeout")
		metrics.RecordFallback("requeue_timeout")
		for _, warning := range result.Warnings {
			logger.Warn("Configuration fallback applied",
				slog.String("field", "RequeueTimeout"),
				slog.String("warning", warning))
		}
	}

	result = config.LoadEnvInt("WORKER_HEALTH_PORT", cfg.HealthPort, func(v int) error {
		return config.ValidateIntRange(v, 1024, 65535)
	})
	cfg.HealthPort = result.Value.(int)
	if result.FallbackApplied {
		fallbackApplied = true
		metrics.RecordValidationError("health_port")
		metrics.RecordFallback("health_port")
		for _, warning := range result.Warnings {
			logger.Warn("Configuration fallback applied",
				slog.String("field", "HealthPort"),
				slog.String("warning", warning))
		}
	}

	metrics.SetFallbackActive(fallbackApplied)
	metrics.RecordLoadTimestamp()

	// Always return valid config (fail-open strategy)
	return &cfg, nil
}
