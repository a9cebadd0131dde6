package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ConfigLoadResult is what every loader in this package returns: the
// value that should be used, the warnings explaining any fallback, and
// a flag for metrics.
//
// The loaders never fail. A missing variable silently yields the
// default; a present-but-broken one yields the default plus a warning.
// Operational knobs (pool sizes, sweep schedules, ports) are never
// worth refusing to start over, and the warnings plus the fallback
// metrics make sure a typo does not go unnoticed either.
//
// Fields:
//   - Value: the value to use (type-assert to the loader's type)
//   - Warnings: one message per fallback applied
//   - FallbackApplied: true when the default replaced a broken value
//
// Example:
//
//	result := LoadEnvDuration("REQUEUE_TIMEOUT", 5*time.Minute, ValidatePositiveDuration)
//	if result.FallbackApplied {
//	    for _, warning := range result.Warnings {
//	        logger.Warn("configuration fallback", slog.String("warning", warning))
//	    }
//	}
//	timeout := result.Value.(time.Duration)
type ConfigLoadResult struct {
	Value           interface{}
	Warnings        []string
	FallbackApplied bool
}

// LoadEnvString returns the environment value, or the default when the
// variable is unset or empty. No validation, no ConfigLoadResult; use
// LoadEnvWithFallback when a bad value must be caught.
//
// Example:
//
//	region := LoadEnvString("BLOB_REGION", "auto")
func LoadEnvString(envKey, defaultValue string) string {
	value := os.Getenv(envKey)
	if value == "" {
		return defaultValue
	}
	return value
}

// LoadEnvWithFallback loads a string value with validation and
// automatic fallback to the default on validation failure.
//
// Loading behavior:
//  1. Read environment variable
//  2. If not set or empty: use default value (no warning)
//  3. If set: validate using the provided validator
//  4. If validation fails: use default value and generate a warning
//
// Parameters:
//   - envKey: environment variable name to read
//   - defaultValue: value to use if the variable is unset or invalid
//   - validator: validation function (nil skips validation)
//
// Example:
//
//	result := LoadEnvWithFallback("REQUEUE_SCHEDULE", "15 * * * *", ValidateCronSchedule)
//	schedule := result.Value.(string)
//
// Warning format:
//
//	"Invalid {envKey}='{value}': {error}, falling back to default '{default}'"
func LoadEnvWithFallback(envKey, defaultValue string, validator func(string) error) ConfigLoadResult {
	value := os.Getenv(envKey)

	// If environment variable is not set or empty, use default (no warning)
	if value == "" {
		return ConfigLoadResult{
			Value:           defaultValue,
			Warnings:        nil,
			FallbackApplied: false,
		}
	}

	if validator != nil {
		if err := validator(value); err != nil {
			warning := fmt.Sprintf(
				"Invalid %s='%s': %v, falling back to default '%s'",
				envKey,
				value,
				err,
				defaultValue,
			)
			return ConfigLoadResult{
				Value:           defaultValue,
				Warnings:        []string{warning},
				FallbackApplied: true,
			}
		}
	}

	return ConfigLoadResult{
		Value:           value,
		Warnings:        nil,
		FallbackApplied: false,
	}
}

// LoadEnvDuration loads a duration value with parsing, validation, and
// automatic fallback to the default on failure.
//
// Loading behavior:
//  1. Read environment variable
//  2. If not set or empty: use default value (no warning)
//  3. If set: parse using time.ParseDuration
//  4. If parsing fails: use default value and generate a warning
//  5. If parsing succeeds: validate using the provided validator
//  6. If validation fails: use default value and generate a warning
//
// Parameters:
//   - envKey: environment variable name to read
//   - defaultValue: duration to use if the variable is unset or invalid
//   - validator: validation function (nil skips validation)
//
// The variable must be a Go duration string: "30s", "5m", "1h30m".
//
// Example:
//
//	result := LoadEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour, ValidatePositiveDuration)
//	lifetime := result.Value.(time.Duration)
func LoadEnvDuration(envKey string, defaultValue time.Duration, validator func(time.Duration) error) ConfigLoadResult {
	valueStr := os.Getenv(envKey)

	// If environment variable is not set or empty, use default (no warning)
	if valueStr == "" {
		return ConfigLoadResult{
			Value:           defaultValue,
			Warnings:        nil,
			FallbackApplied: false,
		}
	}

	parsedDuration, err := time.ParseDuration(valueStr)
	if err != nil {
		warning := fmt.Sprintf(
			"Invalid %s='%s': %v, falling back to default '%v'",
			envKey,
			valueStr,
			err,
			defaultValue,
		)
		return ConfigLoadResult{
			Value:           defaultValue,
			Warnings:        []string{warning},
			FallbackApplied: true,
		}
	}

	if validator != nil {
		if err := validator(parsedDuration); err != nil {
			warning := fmt.Sprintf(
				"Invalid %s='%s': %v, falling back to default '%v'",
				envKey,
				valueStr,
				err,
				defaultValue,
			)
			return ConfigLoadResult{
				Value:           defaultValue,
				Warnings:        []string{warning},
				FallbackApplied: true,
			}
		}
	}

	return ConfigLoadResult{
		Value:           parsedDuration,
		Warnings:        nil,
		FallbackApplied: false,
	}
}

// LoadEnvInt loads an integer value with parsing, validation, and
// automatic fallback to the default on failure.
//
// Loading behavior:
//  1. Read environment variable
//  2. If not set or empty: use default value (no warning)
//  3. If set: parse using strconv.Atoi, so "50x" is rejected rather
//     than read as 50
//  4. If parsing fails: use default value and generate a warning
//  5. If parsing succeeds: validate using the provided validator
//  6. If validation fails: use default value and generate a warning
//
// Parameters:
//   - envKey: environment variable name to read
//   - defaultValue: integer to use if the variable is unset or invalid
//   - validator: validation function (nil skips validation)
//
// Example:
//
//	result := LoadEnvInt("DB_MAX_OPEN_CONNS", 25, func(v int) error {
//	    return ValidateIntRange(v, 1, 500)
//	})
//	maxOpen := result.Value.(int)
func LoadEnvInt(envKey string, defaultValue int, validator func(int) error) ConfigLoadResult {
	valueStr := os.Getenv(envKey)

	// If environment variable is not set or empty, use default (no warning)
	if valueStr == "" {
		return ConfigLoadResult{
			Value:           defaultValue,
			Warnings:        nil,
			FallbackApplied: false,
		}
	}

	parsedInt, err := strconv.Atoi(valueStr)
	if err != nil {
		warning := fmt.Sprintf(
			"Invalid %s='%s': invalid integer format, falling back to default '%d'",
			envKey,
			valueStr,
			defaultValue,
		)
		return ConfigLoadResult{
			Value:           defaultValue,
			Warnings:        []string{warning},
			FallbackApplied: true,
		}
	}

	if validator != nil {
		if err := validator(parsedInt); err != nil {
			warning := fmt.Sprintf(
				"Invalid %s='%s': %v, falling back to default '%d'",
				envKey,
				valueStr,
				err,
				defaultValue,
			)
			return ConfigLoadResult{
				Value:           defaultValue,
				Warnings:        []string{warning},
				FallbackApplied: true,
			}
		}
	}

	return ConfigLoadResult{
		Value:           parsedInt,
		Warnings:        nil,
		FallbackApplied: false,
	}
}

// LoadEnvBool loads a boolean value with parsing and automatic
// fallback to the default on failure.
//
// Loading behavior:
//  1. Read environment variable
//  2. If not set or empty: use default value (no warning)
//  3. If set: parse using strconv.ParseBool, which accepts
//     "1", "t", "T", "true", "TRUE", "True" and their false forms
//  4. If parsing fails: use default value and generate a warning
//
// Parameters:
//   - envKey: environment variable name to read
//   - defaultValue: boolean to use if the variable is unset or invalid
//
// Example:
//
//	result := LoadEnvBool("BLOB_USE_PATH_STYLE", false)
//	usePathStyle := result.Value.(bool)
func LoadEnvBool(envKey string, defaultValue bool) ConfigLoadResult {
	valueStr := os.Getenv(envKey)

	// If environment variable is not set or empty, use default (no warning)
	if valueStr == "" {
		return ConfigLoadResult{
			Value:           defaultValue,
			Warnings:        nil,
			FallbackApplied: false,
		}
	}

	parsedBool, err := strconv.ParseBool(valueStr)
	if err != nil {
		warning := fmt.Sprintf(
			"Invalid %s='%s': invalid boolean format, expected 'true' or 'false', falling back to default '%t'",
			envKey,
			valueStr,
			defaultValue,
		)
		return ConfigLoadResult{
			Value:           defaultValue,
			Warnings:        []string{warning},
			FallbackApplied: true,
		}
	}

	return ConfigLoadResult{
		Value:           parsedBool,
		Warnings:        nil,
		FallbackApplied: false,
	}
}
