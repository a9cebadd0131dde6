package config

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ValidateCronSchedule validates a cron expression with the same
// robfig/cron/v3 parser the worker's requeue sweep runs on, so a
// schedule that passes here is a schedule the scheduler accepts.
//
// The expression must use the standard five-field format:
//   - "minute hour day month weekday"
//   - Example: "15 * * * *" (hourly at minute 15)
//   - Example: "0 */6 * * *" (every 6 hours)
//   - Example: "30 9 * * 1-5" (weekdays at 9:30)
//
// Returns nil when valid, otherwise an error naming the schedule and
// the parser's complaint, which is what ends up in the fallback
// warning an operator reads.
//
// Example:
//
//	err := ValidateCronSchedule("15 * * * *")
//
// Validation tool: https://crontab.guru/
func ValidateCronSchedule(schedule string) error {
	if schedule == "" {
		return fmt.Errorf("invalid cron schedule: cannot be empty")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("invalid cron schedule '%s': %w", schedule, err)
	}

	return nil
}

// ValidateTimezone validates an IANA timezone name by loading it with
// time.LoadLocation:
//   - Example: "UTC"
//   - Example: "Asia/Tokyo"
//   - Example: "America/New_York"
//
// Loading depends on timezone data being present on the host, so this
// can fail for a perfectly spelled name inside a container missing the
// tzdata package. The error message carries the name and the loader's
// reason to make that case diagnosable.
//
// Common issues:
//   - Missing tzdata package in the Docker image
//   - Typo in the timezone name
//   - A UTC offset instead of an IANA name ("+09:00" vs "Asia/Tokyo")
//
// Timezone database: https://www.iana.org/time-zones
func ValidateTimezone(timezone string) error {
	if timezone == "" {
		return fmt.Errorf("invalid timezone: cannot be empty")
	}

	_, err := time.LoadLocation(timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone '%s': %w", timezone, err)
	}

	return nil
}

// ValidateDuration validates that a duration lies within [min, max],
// both inclusive. The error names the value and the violated bound so
// the fallback warning tells an operator which direction they missed.
//
// Example:
//
//	// The requeue sweep budget must stay between 30s and 1h
//	err := ValidateDuration(timeout, 30*time.Second, 1*time.Hour)
func ValidateDuration(duration, min, max time.Duration) error {
	if min > max {
		return fmt.Errorf("invalid range: min (%v) cannot be greater than max (%v)", min, max)
	}

	if duration < min {
		return fmt.Errorf("duration %v is below minimum %v", duration, min)
	}

	if duration > max {
		return fmt.Errorf("duration %v exceeds maximum %v", duration, max)
	}

	return nil
}

// ValidateIntRange validates that an integer lies within [min, max],
// both inclusive.
//
// Example:
//
//	// Pool sizes must stay between 1 and 500 connections
//	err := ValidateIntRange(maxOpen, 1, 500)
//
// Use cases in this codebase:
//   - Health server port (1024-65535)
//   - Alert fan-out concurrency (1-50)
//   - Database pool sizing (1-500)
func ValidateIntRange(value, min, max int) error {
	if min > max {
		return fmt.Errorf("invalid range: min (%d) cannot be greater than max (%d)", min, max)
	}

	if value < min {
		return fmt.Errorf("value %d is below minimum %d", value, min)
	}

	if value > max {
		return fmt.Errorf("value %d exceeds maximum %d", value, max)
	}

	return nil
}

// ValidatePositiveDuration validates that a duration is strictly
// greater than zero. Zero usually spells "disabled" in the libraries
// these values are handed to, which is never what a timeout or
// connection lifetime means here.
//
// Example:
//
//	err := ValidatePositiveDuration(connMaxLifetime)
func ValidatePositiveDuration(duration time.Duration) error {
	if duration <= 0 {
		return fmt.Errorf("duration must be positive, got %v", duration)
	}

	return nil
}
