package notifier

import (
	"context"
)

// NoOpNotifier discards alerts. Channels built with alerting disabled hold
// one so callers never have to branch on a nil Notifier.
type NoOpNotifier struct{}

// NewNoOpNotifier returns a notifier that accepts and drops every alert.
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

// NotifyAlert returns nil immediately without delivering anything.
func (n *NoOpNotifier) NotifyAlert(ctx context.Context, alert *Alert) error {
	return nil
}
