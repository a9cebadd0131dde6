package worker

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	// Verify all fields have expected default values
	if config.RequeueSchedule != "15 * * * *" {
		t.Errorf("Expected RequeueSchedule '15 * * * *', got '%s'", config.RequeueSchedule)
	}

	if config.Timezone != "UTC" {
		t.Errorf("Expected Timezone 'UTC', got '%s'", config.Timezone)
	}

	if config.AlertMaxConcurrent != 4 {
		t.Errorf("Expected AlertMaxConcurrent 4, got %d", config.AlertMaxConcurrent)
	}

	if config.RequeueTimeout != 5*time.Minute {
		t.Errorf("Expected RequeueTimeout 5m, got %v", config.RequeueTimeout)
	}

	if config.HealthPort != 9091 {
		t.Errorf("Expected HealthPort 9091, got %d", config.HealthPort)
	}
}

func TestDefaultConfig_Immutability(t *testing.T) {
	// Each call to DefaultConfig should return a new instance
	config1 := DefaultConfig()
	config2 := DefaultConfig()

	config1.RequeueSchedule = "0 6 * * *"
	config1.AlertMaxConcurrent = 20

	// config2 should still have default values
	if config2.RequeueSchedule != "15 * * * *" {
		t.Error("DefaultConfig returned a shared instance instead of a new one")
	}

	if config2.AlertMaxConcurrent != 4 {
		t.Error("DefaultConfig returned a shared instance instead of a new one")
	}
}

func TestWorkerConfig_Validate_ValidConfig(t *testing.T) {
	// Default config should be valid
	config := DefaultConfig()

	if err := config.Validate(); err != nil {
		t.Errorf("DefaultConfig should be valid, got error: %v", err)
	}
}

func TestWorkerConfig_Validate_RequeueSchedule(t *testing.T) {
	tests := []struct {
		name     string
		schedule string
		valid    bool
	}{
		{"Hourly at minute 15", "15 * * * *", true},
		{"Every six hours", "0 */6 * * *", true},
		{"Empty", "", false},
		{"Garbage", "invalid cron", false},
		{"Descriptor rejected", "@hourly", false},
		{"Too many fields", "0 0 * * * *", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			config.RequeueSchedule = tt.schedule

			err := config.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid schedule %q, got error: %v", tt.schedule, err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected validation error for schedule %q", tt.schedule)
			}
		})
	}
}

func TestWorkerConfig_Validate_Timezone(t *testing.T) {
	tests := []struct {
		name     string
		timezone string
		valid    bool
	}{
		{"UTC", "UTC", true},
		{"Named zone", "Asia/Tokyo", true},
		{"Empty", "", false},
		{"Unknown zone", "Invalid/Timezone", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			config.Timezone = tt.timezone

			err := config.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid timezone %q, got error: %v", tt.timezone, err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected validation error for timezone %q", tt.timezone)
			}
		})
	}
}

func TestWorkerConfig_Validate_AlertMaxConcurrentBoundary(t *testing.T) {
	tests := []struct {
		name  string
		value int
		valid bool
	}{
		{"Min valid (1)", 1, true},
		{"Max valid (50)", 50, true},
		{"Below min (0)", 0, false},
		{"Negative", -1, false},
		{"Above max (51)", 51, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			config.AlertMaxConcurrent = tt.value

			err := config.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid config, got error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected validation error for value %d", tt.value)
			}
		})
	}
}

func TestWorkerConfig_Validate_RequeueTimeout(t *testing.T) {
	// Validate only requires a positive budget; the env loader additionally
	// clamps to the 30s..1h operational range.
	tests := []struct {
		name     string
		duration time.Duration
		valid    bool
	}{
		{"1 second", 1 * time.Second, true},
		{"5 minutes", 5 * time.Minute, true},
		{"2 hours", 2 * time.Hour, true},
		{"Zero", 0, false},
		{"Negative", -1 * time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			config.RequeueTimeout = tt.duration

			err := config.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid timeout %v, got error: %v", tt.duration, err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected validation error for timeout %v", tt.duration)
			}
		})
	}
}

func TestWorkerConfig_Validate_HealthPortBoundary(t *testing.T) {
	tests := []struct {
		name  string
		port  int
		valid bool
	}{
		{"Min valid (1024)", 1024, true},
		{"Max valid (65535)", 65535, true},
		{"Below min (1023)", 1023, false},
		{"Above max (65536)", 65536, false},
		{"Zero", 0, false},
		{"Negative", -1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			config.HealthPort = tt.port

			err := config.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid port %d, got error: %v", tt.port, err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected validation error for port %d", tt.port)
			}
		})
	}
}

func TestWorkerConfig_Validate_MultipleErrors(t *testing.T) {
	// Create config with multiple invalid fields
	config := WorkerConfig{
		RequeueSchedule:    "invalid",
		Timezone:           "Invalid/Zone",
		AlertMaxConcurrent: 0,
		RequeueTimeout:     0,
		HealthPort:         100,
	}

	err := config.Validate()
	if err == nil {
		t.Fatal("Expected validation errors for multiple invalid fields")
	}

	// Error should aggregate all failures, not stop at the first
	errStr := err.Error()
	for _, fragment := range []string{"requeue schedule", "timezone", "alert max concurrent", "requeue timeout", "health port"} {
		if !strings.Contains(errStr, fragment) {
			t.Errorf("Expected aggregated error to mention %q, got: %v", fragment, err)
		}
	}
}

// globalTestMetrics is a shared metrics instance for tests to avoid
// duplicate Prometheus registration errors. In production, metrics are
// created once at startup, so this simulates that behavior.
var globalTestMetrics = NewWorkerMetrics()

// setEnv is a test helper that sets an environment variable and fails the test if it errors
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("Failed to set %s: %v", key, err)
	}
}

// unsetEnv is a test helper that unsets an environment variable and fails the test if it errors
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("Failed to unset %s: %v", key, err)
	}
}

func TestLoadConfigFromEnv_AllEnvVarsValid(t *testing.T) {
	setEnv(t, "REQUEUE_SCHEDULE", "0 6 * * *")
	setEnv(t, "WORKER_TIMEZONE", "Asia/Tokyo")
	setEnv(t, "ALERT_MAX_CONCURRENT", "20")
	setEnv(t, "REQUEUE_TIMEOUT", "45m")
	setEnv(t, "WORKER_HEALTH_PORT", "8080")
	defer func() {
		unsetEnv(t, "REQUEUE_SCHEDULE")
		unsetEnv(t, "WORKER_TIMEZONE")
		unsetEnv(t, "ALERT_MAX_CONCURRENT")
		unsetEnv(t, "REQUEUE_TIMEOUT")
		unsetEnv(t, "WORKER_HEALTH_PORT")
	}()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	config, err := LoadConfigFromEnv(logger, globalTestMetrics)

	// Should not return error (fail-open strategy)
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}

	// Should load all values from environment
	if config.RequeueSchedule != "0 6 * * *" {
		t.Errorf("Expected RequeueSchedule '0 6 * * *', got '%s'", config.RequeueSchedule)
	}
	if config.Timezone != "Asia/Tokyo" {
		t.Errorf("Expected Timezone 'Asia/Tokyo', got '%s'", config.Timezone)
	}
	if config.AlertMaxConcurrent != 20 {
		t.Errorf("Expected AlertMaxConcurrent 20, got %d", config.AlertMaxConcurrent)
	}
	if config.RequeueTimeout != 45*time.Minute {
		t.Errorf("Expected RequeueTimeout 45m, got %v", config.RequeueTimeout)
	}
	if config.HealthPort != 8080 {
		t.Errorf("Expected HealthPort 8080, got %d", config.HealthPort)
	}

	// No warnings should be logged
	if buf.Len() > 0 {
		t.Errorf("Expected no warnings, got: %s", buf.String())
	}
}

func TestLoadConfigFromEnv_MissingEnvVars(t *testing.T) {
	unsetEnv(t, "REQUEUE_SCHEDULE")
	unsetEnv(t, "WORKER_TIMEZONE")
	unsetEnv(t, "ALERT_MAX_CONCURRENT")
	unsetEnv(t, "REQUEUE_TIMEOUT")
	unsetEnv(t, "WORKER_HEALTH_PORT")

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	config, err := LoadConfigFromEnv(logger, globalTestMetrics)

	// Should not return error (fail-open strategy)
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}

	// Should use default values
	defaults := DefaultConfig()
	if config.RequeueSchedule != defaults.RequeueSchedule {
		t.Errorf("Expected default RequeueSchedule, got '%s'", config.RequeueSchedule)
	}
	if config.Timezone != defaults.Timezone {
		t.Errorf("Expected default Timezone, got '%s'", config.Timezone)
	}
	if config.AlertMaxConcurrent != defaults.AlertMaxConcurrent {
		t.Errorf("Expected default AlertMaxConcurrent, got %d", config.AlertMaxConcurrent)
	}
	if config.RequeueTimeout != defaults.RequeueTimeout {
		t.Errorf("Expected default RequeueTimeout, got %v", config.RequeueTimeout)
	}
	if config.HealthPort != defaults.HealthPort {
		t.Errorf("Expected default HealthPort, got %d", config.HealthPort)
	}

	// No warnings should be logged (missing env vars don't trigger fallback)
	if buf.Len() > 0 {
		t.Errorf("Expected no warnings, got: %s", buf.String())
	}
}

func TestLoadConfigFromEnv_InvalidRequeueSchedule(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"Garbage", "invalid cron"},
		{"Descriptor", "@hourly"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnv(t, "REQUEUE_SCHEDULE", tt.value)
			defer unsetEnv(t, "REQUEUE_SCHEDULE")

			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))

			config, err := LoadConfigFromEnv(logger, globalTestMetrics)

			// Should not return error (fail-open strategy)
			if err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}

			if config.RequeueSchedule != DefaultConfig().RequeueSchedule {
				t.Errorf("Expected default RequeueSchedule, got '%s'", config.RequeueSchedule)
			}

			logOutput := buf.String()
			if !strings.Contains(logOutput, "Configuration fallback applied") {
				t.Error("Expected fallback warning in logs")
			}
			if !strings.Contains(logOutput, "RequeueSchedule") {
				t.Error("Expected RequeueSchedule field in warning")
			}
		})
	}
}

func TestLoadConfigFromEnv_InvalidTimezone(t *testing.T) {
	setEnv(t, "WORKER_TIMEZONE", "Invalid/Timezone")
	defer unsetEnv(t, "WORKER_TIMEZONE")

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	config, err := LoadConfigFromEnv(logger, globalTestMetrics)

	// Should not return error (fail-open strategy)
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}

	if config.Timezone != DefaultConfig().Timezone {
		t.Errorf("Expected default Timezone, got '%s'", config.Timezone)
	}

	logOutput := buf.String()
	if !strings.Contains(logOutput, "Configuration fallback applied") {
		t.Error("Expected fallback warning in logs")
	}
	if !strings.Contains(logOutput, "Timezone") {
		t.Error("Expected Timezone field in warning")
	}
}

func TestLoadConfigFromEnv_InvalidAlertMaxConcurrent(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"Zero", "0"},
		{"Negative", "-1"},
		{"Too high", "101"},
		{"Invalid format", "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnv(t, "ALERT_MAX_CONCURRENT", tt.value)
			defer unsetEnv(t, "ALERT_MAX_CONCURRENT")

			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))

			config, err := LoadConfigFromEnv(logger, globalTestMetrics)

			// Should not return error (fail-open strategy)
			if err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}

			if config.AlertMaxConcurrent != DefaultConfig().AlertMaxConcurrent {
				t.Errorf("Expected default AlertMaxConcurrent, got %d", config.AlertMaxConcurrent)
			}

			logOutput := buf.String()
			if !strings.Contains(logOutput, "Configuration fallback applied") {
				t.Error("Expected fallback warning in logs")
			}
		})
	}
}

func TestLoadConfigFromEnv_InvalidRequeueTimeout(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"Zero", "0"},
		{"Negative", "-1s"},
		{"Invalid format", "invalid"},
		{"Below range floor", "10s"},
		{"Above range ceiling", "2h"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnv(t, "REQUEUE_TIMEOUT", tt.value)
			defer unsetEnv(t, "REQUEUE_TIMEOUT")

			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))

			config, err := LoadConfigFromEnv(logger, globalTestMetrics)

			// Should not return error (fail-open strategy)
			if err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}

			if config.RequeueTimeout != DefaultConfig().RequeueTimeout {
				t.Errorf("Expected default RequeueTimeout, got %v", config.RequeueTimeout)
			}

			logOutput := buf.String()
			if !strings.Contains(logOutput, "Configuration fallback applied") {
				t.Error("Expected fallback warning in logs")
			}
		})
	}
}

func TestLoadConfigFromEnv_InvalidHealthPort(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"Too low", "1023"},
		{"Too high", "65536"},
		{"Zero", "0"},
		{"Negative", "-1"},
		{"Invalid format", "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnv(t, "WORKER_HEALTH_PORT", tt.value)
			defer unsetEnv(t, "WORKER_HEALTH_PORT")

			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))

			config, err := LoadConfigFromEnv(logger, globalTestMetrics)

			// Should not return error (fail-open strategy)
			if err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}

			if config.HealthPort != DefaultConfig().HealthPort {
				t.Errorf("Expected default HealthPort, got %d", config.HealthPort)
			}

			logOutput := buf.String()
			if !strings.Contains(logOutput, "Configuration fallback applied") {
				t.Error("Expected fallback warning in logs")
			}
		})
	}
}

func TestLoadConfigFromEnv_MultipleInvalidFields(t *testing.T) {
	setEnv(t, "REQUEUE_SCHEDULE", "invalid")
	setEnv(t, "WORKER_TIMEZONE", "Invalid/Zone")
	setEnv(t, "ALERT_MAX_CONCURRENT", "0")
	setEnv(t, "REQUEUE_TIMEOUT", "invalid")
	setEnv(t, "WORKER_HEALTH_PORT", "100")
	defer func() {
		unsetEnv(t, "REQUEUE_SCHEDULE")
		unsetEnv(t, "WORKER_TIMEZONE")
		unsetEnv(t, "ALERT_MAX_CONCURRENT")
		unsetEnv(t, "REQUEUE_TIMEOUT")
		unsetEnv(t, "WORKER_HEALTH_PORT")
	}()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	config, err := LoadConfigFromEnv(logger, globalTestMetrics)

	// Should not return error (fail-open strategy)
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}

	// All fields should use default values
	defaults := DefaultConfig()
	if config.RequeueSchedule != defaults.RequeueSchedule {
		t.Errorf("Expected default RequeueSchedule, got '%s'", config.RequeueSchedule)
	}
	if config.Timezone != defaults.Timezone {
		t.Errorf("Expected default Timezone, got '%s'", config.Timezone)
	}
	if config.AlertMaxConcurrent != defaults.AlertMaxConcurrent {
		t.Errorf("Expected default AlertMaxConcurrent, got %d", config.AlertMaxConcurrent)
	}
	if config.RequeueTimeout != defaults.RequeueTimeout {
		t.Errorf("Expected default RequeueTimeout, got %v", config.RequeueTimeout)
	}
	if config.HealthPort != defaults.HealthPort {
		t.Errorf("Expected default HealthPort, got %d", config.HealthPort)
	}

	// Multiple warnings should be logged
	logOutput := buf.String()
	warningCount := strings.Count(logOutput, "Configuration fallback applied")
	if warningCount != 5 {
		t.Errorf("Expected 5 warnings, got %d", warningCount)
	}
}

func TestLoadConfigFromEnv_PartiallyValid(t *testing.T) {
	setEnv(t, "REQUEUE_SCHEDULE", "0 6 * * *")   // Valid
	setEnv(t, "WORKER_TIMEZONE", "Invalid/Zone") // Invalid
	setEnv(t, "ALERT_MAX_CONCURRENT", "20")      // Valid
	setEnv(t, "REQUEUE_TIMEOUT", "invalid")      // Invalid
	setEnv(t, "WORKER_HEALTH_PORT", "8080")      // Valid
	defer func() {
		unsetEnv(t, "REQUEUE_SCHEDULE")
		unsetEnv(t, "WORKER_TIMEZONE")
		unsetEnv(t, "ALERT_MAX_CONCURRENT")
		unsetEnv(t, "REQUEUE_TIMEOUT")
		unsetEnv(t, "WORKER_HEALTH_PORT")
	}()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	config, err := LoadConfigFromEnv(logger, globalTestMetrics)

	// Should not return error (fail-open strategy)
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}

	// Valid fields should use environment values
	if config.RequeueSchedule != "0 6 * * *" {
		t.Errorf("Expected RequeueSchedule '0 6 * * *', got '%s'", config.RequeueSchedule)
	}
	if config.AlertMaxConcurrent != 20 {
		t.Errorf("Expected AlertMaxConcurrent 20, got %d", config.AlertMaxConcurrent)
	}
	if config.HealthPort != 8080 {
		t.Errorf("Expected HealthPort 8080, got %d", config.HealthPort)
	}

	// Invalid fields should use defaults
	if config.Timezone != DefaultConfig().Timezone {
		t.Errorf("Expected default Timezone, got '%s'", config.Timezone)
	}
	if config.RequeueTimeout != DefaultConfig().RequeueTimeout {
		t.Errorf("Expected default RequeueTimeout, got %v", config.RequeueTimeout)
	}

	// Only 2 warnings should be logged (for Timezone and RequeueTimeout)
	logOutput := buf.String()
	warningCount := strings.Count(logOutput, "Configuration fallback applied")
	if warningCount != 2 {
		t.Errorf("Expected 2 warnings, got %d", warningCount)
	}
}
