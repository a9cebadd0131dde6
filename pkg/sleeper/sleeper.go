// Package sleeper provides an injectable sleep capability.
//
// Every long wait in the pipeline (rate-limit cooldowns, retry backoff,
// strategy jitter) goes through a Sleeper instead of time.Sleep so that a
// durable orchestrator can checkpoint progress across restarts, and so
// tests can observe waits without a real clock. Under a plain runtime the
// Real implementation is just a cancellable timer.
package sleeper

import (
	"context"
	"time"
)

// Sleeper suspends the calling task for a duration. The reason is a short
// stable label ("domain-cooldown", "retry-backoff:fetch-feed") recorded by
// orchestrators and metrics; it must not carry per-item data.
//
// Sleep returns early with the context error when ctx is cancelled.
type Sleeper interface {
	Sleep(ctx context.Context, reason string, d time.Duration) error
}

// Real sleeps on the wall clock.
type Real struct{}

// Sleep blocks for d or until ctx is done. Non-positive durations return
// immediately.
func (Real) Sleep(ctx context.Context, reason string, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Func adapts a plain function to the Sleeper interface.
type Func func(ctx context.Context, reason string, d time.Duration) error

// Sleep calls f.
func (f Func) Sleep(ctx context.Context, reason string, d time.Duration) error {
	return f(ctx, reason, d)
}

// Nop returns immediately without waiting. Intended for tests that only
// care about call counts, not elapsed time.
type Nop struct{}

// Sleep honors cancellation but never blocks.
func (Nop) Sleep(ctx context.Context, reason string, d time.Duration) error {
	return ctx.Err()
}
