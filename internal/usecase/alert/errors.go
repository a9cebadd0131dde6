package alert

import "errors"

// Sentinel errors for alert use case operations.
var (
	// ErrChannelDisabled indicates that Send() was called on a disabled channel.
	// This error is returned when attempting to deliver an alert through a channel
	// that is not enabled in the configuration.
	ErrChannelDisabled = errors.New("channel is disabled")

	// ErrInvalidAlert indicates that the alert is nil or missing required fields.
	ErrInvalidAlert = errors.New("invalid alert data")

	// ErrAlertDropped indicates that an alert was dropped due to goroutine pool
	// saturation or timeout waiting for a worker slot.
	// This is a non-critical error used for observability.
	ErrAlertDropped = errors.New("alert dropped due to pool saturation")

	// ErrCircuitBreakerOpen indicates that the circuit breaker is open for this channel
	// and alerts are being rejected to prevent continuous failures.
	// The circuit breaker will automatically close after the timeout period.
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open for this channel")
)
