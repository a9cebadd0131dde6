package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadEnvString(t *testing.T) {
	t.Run("set", func(t *testing.T) {
		t.Setenv("TEST_REGION", "ap-northeast-1")

		assert.Equal(t, "ap-northeast-1", LoadEnvString("TEST_REGION", "us-east-1"))
	})

	t.Run("unset uses default", func(t *testing.T) {
		assert.Equal(t, "us-east-1", LoadEnvString("TEST_REGION", "us-east-1"))
	})

	t.Run("empty uses default", func(t *testing.T) {
		t.Setenv("TEST_REGION", "")

		assert.Equal(t, "us-east-1", LoadEnvString("TEST_REGION", "us-east-1"))
	})
}

func TestLoadEnvWithFallback_ValidValue(t *testing.T) {
	t.Setenv("TEST_REQUEUE_SCHEDULE", "*/10 * * * *")

	result := LoadEnvWithFallback("TEST_REQUEUE_SCHEDULE", "15 * * * *", ValidateCronSchedule)

	assert.Equal(t, "*/10 * * * *", result.Value)
	assert.Empty(t, result.Warnings)
	assert.False(t, result.FallbackApplied)
}

func TestLoadEnvWithFallback_Unset(t *testing.T) {
	result := LoadEnvWithFallback("TEST_REQUEUE_SCHEDULE", "15 * * * *", ValidateCronSchedule)

	// Default is trusted, no warning
	assert.Equal(t, "15 * * * *", result.Value)
	assert.Empty(t, result.Warnings)
	assert.False(t, result.FallbackApplied)
}

func TestLoadEnvWithFallback_Empty(t *testing.T) {
	t.Setenv("TEST_REQUEUE_SCHEDULE", "")

	result := LoadEnvWithFallback("TEST_REQUEUE_SCHEDULE", "15 * * * *", ValidateCronSchedule)

	assert.Equal(t, "15 * * * *", result.Value)
	assert.Empty(t, result.Warnings)
	assert.False(t, result.FallbackApplied)
}

func TestLoadEnvWithFallback_NilValidator(t *testing.T) {
	t.Setenv("TEST_LABEL", "anything goes")

	result := LoadEnvWithFallback("TEST_LABEL", "default", nil)

	assert.Equal(t, "anything goes", result.Value)
	assert.Empty(t, result.Warnings)
	assert.False(t, result.FallbackApplied)
}

func TestLoadEnvWithFallback_InvalidCron(t *testing.T) {
	t.Setenv("TEST_REQUEUE_SCHEDULE", "every hour please")

	result := LoadEnvWithFallback("TEST_REQUEUE_SCHEDULE", "15 * * * *", ValidateCronSchedule)

	assert.Equal(t, "15 * * * *", result.Value)
	assert.True(t, result.FallbackApplied)
	assert.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "Invalid TEST_REQUEUE_SCHEDULE='every hour please'")
	assert.Contains(t, result.Warnings[0], "falling back to default '15 * * * *'")
}

func TestLoadEnvWithFallback_InvalidTimezone(t *testing.T) {
	t.Setenv("TEST_SCHEDULER_TZ", "Mars/Olympus_Mons")

	result := LoadEnvWithFallback("TEST_SCHEDULER_TZ", "Asia/Tokyo", ValidateTimezone)

	assert.Equal(t, "Asia/Tokyo", result.Value)
	assert.True(t, result.FallbackApplied)
	assert.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "Invalid TEST_SCHEDULER_TZ='Mars/Olympus_Mons'")
	assert.Contains(t, result.Warnings[0], "falling back to default 'Asia/Tokyo'")
}

func TestLoadEnvWithFallback_AcceptedSchedules(t *testing.T) {
	testCases := []struct {
		name     string
		schedule string
	}{
		{"hourly sweep", "15 * * * *"},
		{"every ten minutes", "*/10 * * * *"},
		{"nightly", "0 3 * * *"},
		{"weekdays only", "0 9 * * 1-5"},
		{"first of month", "0 0 1 * *"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("TEST_REQUEUE_SCHEDULE", tc.schedule)

			result := LoadEnvWithFallback("TEST_REQUEUE_SCHEDULE", "15 * * * *", ValidateCronSchedule)

			assert.Equal(t, tc.schedule, result.Value)
			assert.False(t, result.FallbackApplied)
		})
	}
}

func TestLoadEnvDuration_ValidValues(t *testing.T) {
	testCases := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"hours", "2h", 2 * time.Hour},
		{"seconds", "90s", 90 * time.Second},
		{"milliseconds", "500ms", 500 * time.Millisecond},
		{"compound", "1h30m45s", 1*time.Hour + 30*time.Minute + 45*time.Second},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("TEST_UPLOAD_TIMEOUT", tc.value)

			result := LoadEnvDuration("TEST_UPLOAD_TIMEOUT", 30*time.Second, ValidatePositiveDuration)

			assert.Equal(t, tc.want, result.Value)
			assert.Empty(t, result.Warnings)
			assert.False(t, result.FallbackApplied)
		})
	}
}

func TestLoadEnvDuration_Unset(t *testing.T) {
	result := LoadEnvDuration("TEST_UPLOAD_TIMEOUT", 30*time.Second, ValidatePositiveDuration)

	assert.Equal(t, 30*time.Second, result.Value)
	assert.Empty(t, result.Warnings)
	assert.False(t, result.FallbackApplied)
}

func TestLoadEnvDuration_ParseFailure(t *testing.T) {
	t.Setenv("TEST_UPLOAD_TIMEOUT", "thirty seconds")

	result := LoadEnvDuration("TEST_UPLOAD_TIMEOUT", 30*time.Second, ValidatePositiveDuration)

	assert.Equal(t, 30*time.Second, result.Value)
	assert.True(t, result.FallbackApplied)
	assert.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "Invalid TEST_UPLOAD_TIMEOUT='thirty seconds'")
	assert.Contains(t, result.Warnings[0], "falling back to default '30s'")
}

func TestLoadEnvDuration_RejectsNonPositive(t *testing.T) {
	testCases := []struct {
		name  string
		value string
	}{
		{"negative", "-5m"},
		{"zero", "0s"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("TEST_UPLOAD_TIMEOUT", tc.value)

			result := LoadEnvDuration("TEST_UPLOAD_TIMEOUT", 30*time.Second, ValidatePositiveDuration)

			assert.Equal(t, 30*time.Second, result.Value)
			assert.True(t, result.FallbackApplied)
			assert.Contains(t, result.Warnings[0], "must be positive")
		})
	}
}

func TestLoadEnvDuration_RangeValidator(t *testing.T) {
	// Pool lifetime style bounds: parse succeeds but the value is out of range
	t.Setenv("TEST_CONN_LIFETIME", "48h")

	validator := func(d time.Duration) error {
		return ValidateDuration(d, 1*time.Minute, 24*time.Hour)
	}

	result := LoadEnvDuration("TEST_CONN_LIFETIME", 1*time.Hour, validator)

	assert.Equal(t, 1*time.Hour, result.Value)
	assert.True(t, result.FallbackApplied)
	assert.Contains(t, result.Warnings[0], "exceeds maximum")
}

func TestLoadEnvInt_ValidValue(t *testing.T) {
	t.Setenv("TEST_POOL_SIZE", "50")

	result := LoadEnvInt("TEST_POOL_SIZE", 25, func(v int) error {
		return ValidateIntRange(v, 1, 500)
	})

	assert.Equal(t, 50, result.Value)
	assert.Empty(t, result.Warnings)
	assert.False(t, result.FallbackApplied)
}

func TestLoadEnvInt_Unset(t *testing.T) {
	result := LoadEnvInt("TEST_POOL_SIZE", 25, func(v int) error {
		return ValidateIntRange(v, 1, 500)
	})

	assert.Equal(t, 25, result.Value)
	assert.Empty(t, result.Warnings)
	assert.False(t, result.FallbackApplied)
}

func TestLoadEnvInt_NegativeWithoutValidator(t *testing.T) {
	t.Setenv("TEST_OFFSET", "-5")

	result := LoadEnvInt("TEST_OFFSET", 0, nil)

	// Parsing alone does not reject negatives; that is the validator's job
	assert.Equal(t, -5, result.Value)
	assert.Empty(t, result.Warnings)
	assert.False(t, result.FallbackApplied)
}

func TestLoadEnvInt_StrictParsing(t *testing.T) {
	// Partial parses are rejected outright. "50x" must not become 50,
	// and "10.5" must not become 10.
	testCases := []struct {
		name  string
		value string
	}{
		{"words", "not-a-number"},
		{"trailing junk", "50x"},
		{"decimal", "10.5"},
		{"surrounding spaces", " 42 "},
		{"hex", "0x1F"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("TEST_POOL_SIZE", tc.value)

			result := LoadEnvInt("TEST_POOL_SIZE", 25, nil)

			assert.Equal(t, 25, result.Value)
			assert.True(t, result.FallbackApplied)
			assert.Len(t, result.Warnings, 1)
			assert.Contains(t, result.Warnings[0], "invalid integer format")
			assert.Contains(t, result.Warnings[0], "falling back to default '25'")
		})
	}
}

func TestLoadEnvInt_RangeValidation(t *testing.T) {
	t.Run("below minimum", func(t *testing.T) {
		t.Setenv("TEST_HEALTH_PORT", "80")

		result := LoadEnvInt("TEST_HEALTH_PORT", 8080, func(v int) error {
			return ValidateIntRange(v, 1024, 65535)
		})

		assert.Equal(t, 8080, result.Value)
		assert.True(t, result.FallbackApplied)
		assert.Contains(t, result.Warnings[0], "below minimum")
	})

	t.Run("above maximum", func(t *testing.T) {
		t.Setenv("TEST_HEALTH_PORT", "70000")

		result := LoadEnvInt("TEST_HEALTH_PORT", 8080, func(v int) error {
			return ValidateIntRange(v, 1024, 65535)
		})

		assert.Equal(t, 8080, result.Value)
		assert.True(t, result.FallbackApplied)
		assert.Contains(t, result.Warnings[0], "exceeds maximum")
	})
}

func TestLoadEnvBool_AcceptedSpellings(t *testing.T) {
	testCases := []struct {
		value string
		want  bool
	}{
		{"1", true},
		{"t", true},
		{"T", true},
		{"true", true},
		{"TRUE", true},
		{"True", true},
		{"0", false},
		{"f", false},
		{"F", false},
		{"false", false},
		{"FALSE", false},
		{"False", false},
	}

	for _, tc := range testCases {
		t.Run(tc.value, func(t *testing.T) {
			t.Setenv("TEST_PATH_STYLE", tc.value)

			result := LoadEnvBool("TEST_PATH_STYLE", !tc.want)

			assert.Equal(t, tc.want, result.Value)
			assert.Empty(t, result.Warnings)
			assert.False(t, result.FallbackApplied)
		})
	}
}

func TestLoadEnvBool_Unset(t *testing.T) {
	result := LoadEnvBool("TEST_PATH_STYLE", true)

	assert.Equal(t, true, result.Value)
	assert.Empty(t, result.Warnings)
	assert.False(t, result.FallbackApplied)
}

func TestLoadEnvBool_Empty(t *testing.T) {
	t.Setenv("TEST_PATH_STYLE", "")

	result := LoadEnvBool("TEST_PATH_STYLE", true)

	assert.Equal(t, true, result.Value)
	assert.Empty(t, result.Warnings)
	assert.False(t, result.FallbackApplied)
}

func TestLoadEnvBool_RejectedSpellings(t *testing.T) {
	// strconv.ParseBool vocabulary only; yes/no and on/off are not in it
	testCases := []string{"yes", "no", "on", "off", "2", "enabled"}

	for _, value := range testCases {
		t.Run(value, func(t *testing.T) {
			t.Setenv("TEST_PATH_STYLE", value)

			result := LoadEnvBool("TEST_PATH_STYLE", false)

			assert.Equal(t, false, result.Value)
			assert.True(t, result.FallbackApplied)
			assert.Len(t, result.Warnings, 1)
			assert.Contains(t, result.Warnings[0], "Invalid TEST_PATH_STYLE='"+value+"'")
			assert.Contains(t, result.Warnings[0], "invalid boolean format")
			assert.Contains(t, result.Warnings[0], "falling back to default 'false'")
		})
	}
}

// Mirrors what LoadConfigFromEnv does when several variables are broken at
// once: every loader falls back independently and the warnings accumulate.
func TestMultipleFallbacks(t *testing.T) {
	t.Setenv("TEST_REQUEUE_SCHEDULE", "whenever")
	t.Setenv("TEST_SCHEDULER_TZ", "Invalid/Zone")
	t.Setenv("TEST_REQUEUE_TIMEOUT", "-5m")

	var allWarnings []string
	fallbackCount := 0

	scheduleResult := LoadEnvWithFallback("TEST_REQUEUE_SCHEDULE", "15 * * * *", ValidateCronSchedule)
	if scheduleResult.FallbackApplied {
		fallbackCount++
		allWarnings = append(allWarnings, scheduleResult.Warnings...)
	}

	tzResult := LoadEnvWithFallback("TEST_SCHEDULER_TZ", "Asia/Tokyo", ValidateTimezone)
	if tzResult.FallbackApplied {
		fallbackCount++
		allWarnings = append(allWarnings, tzResult.Warnings...)
	}

	timeoutResult := LoadEnvDuration("TEST_REQUEUE_TIMEOUT", 10*time.Minute, ValidatePositiveDuration)
	if timeoutResult.FallbackApplied {
		fallbackCount++
		allWarnings = append(allWarnings, timeoutResult.Warnings...)
	}

	assert.Equal(t, 3, fallbackCount)
	assert.Len(t, allWarnings, 3)
	assert.Equal(t, "15 * * * *", scheduleResult.Value)
	assert.Equal(t, "Asia/Tokyo", tzResult.Value)
	assert.Equal(t, 10*time.Minute, timeoutResult.Value)
}

// Callers read Value through a type assertion; the concrete type must match
// the loader that produced it.
func TestConfigLoadResult_ValueTypes(t *testing.T) {
	t.Run("string", func(t *testing.T) {
		t.Setenv("TEST_LABEL", "feeds")

		result := LoadEnvWithFallback("TEST_LABEL", "default", nil)

		value, ok := result.Value.(string)
		assert.True(t, ok)
		assert.Equal(t, "feeds", value)
	})

	t.Run("duration", func(t *testing.T) {
		t.Setenv("TEST_UPLOAD_TIMEOUT", "45s")

		result := LoadEnvDuration("TEST_UPLOAD_TIMEOUT", 30*time.Second, nil)

		value, ok := result.Value.(time.Duration)
		assert.True(t, ok)
		assert.Equal(t, 45*time.Second, value)
	})

	t.Run("int", func(t *testing.T) {
		t.Setenv("TEST_POOL_SIZE", "12")

		result := LoadEnvInt("TEST_POOL_SIZE", 25, nil)

		value, ok := result.Value.(int)
		assert.True(t, ok)
		assert.Equal(t, 12, value)
	})

	t.Run("bool", func(t *testing.T) {
		t.Setenv("TEST_PATH_STYLE", "true")

		result := LoadEnvBool("TEST_PATH_STYLE", false)

		value, ok := result.Value.(bool)
		assert.True(t, ok)
		assert.Equal(t, true, value)
	})
}
