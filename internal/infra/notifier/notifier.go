// Package notifier delivers operational alerts about pipeline faults to
// webhook channels. It defines the Notifier interface which allows different
// delivery mechanisms (Discord, Slack, etc.) to be used interchangeably
// through dependency injection.
//
// The package includes implementations for Discord and Slack webhooks and a
// no-op notifier for when alerting is disabled.
package notifier

import (
	"context"
	"time"
)

// Severity classifies how urgently an alert needs attention.
type Severity string

const (
	// SeverityInfo marks routine operational notices.
	SeverityInfo Severity = "info"

	// SeverityWarning marks degraded but self-recovering conditions,
	// such as a requeue sweep failure that the next run may clear.
	SeverityWarning Severity = "warning"

	// SeverityCritical marks faults needing intervention, such as a
	// message diverted to the dead-letter stream.
	SeverityCritical Severity = "critical"
)

// Alert describes a pipeline fault worth surfacing to an operator.
type Alert struct {
	// Severity is the urgency classification.
	Severity Severity

	// Component names the pipeline stage that raised the alert,
	// e.g. "dispatcher", "requeue", "queue".
	Component string

	// Title is a short human-readable headline.
	Title string

	// Message carries the detail: error text, article IDs, counts.
	Message string

	// At is when the fault was observed.
	At time.Time
}

// Notifier delivers pipeline alerts to one channel. Implementations handle
// rate limiting and retries internally and log attempts through the context
// logger, so callers only decide whether the returned error matters.
type Notifier interface {
	// NotifyAlert delivers an alert, blocking until it is accepted by the
	// provider, fails definitively, retries run out, or ctx ends. The alert
	// must not be nil.
	NotifyAlert(ctx context.Context, alert *Alert) error
}
