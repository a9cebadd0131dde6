package metrics

import (
	"context"
	"strings"
	"time"

	"newsriver/pkg/sleeper"
)

// InstrumentSleeper wraps s so that every positive wait is recorded via
// RecordLimiterSleep before it begins. Raw sleep reasons are collapsed
// into the stable metric vocabulary: the per-step "retry-backoff:*"
// reasons all count as retry_backoff, and the limiter cooldown reasons
// both count as domain_rate.
func InstrumentSleeper(s sleeper.Sleeper) sleeper.Sleeper {
	return sleeper.Func(func(ctx context.Context, reason string, d time.Duration) error {
		if d > 0 {
			RecordLimiterSleep(sleepReasonLabel(reason), d)
		}
		return s.Sleep(ctx, reason, d)
	})
}

func sleepReasonLabel(reason string) string {
	switch {
	case strings.HasPrefix(reason, "retry-backoff"):
		return "retry_backoff"
	case reason == "domain-cooldown" || reason == "global-cooldown":
		return "domain_rate"
	case reason == "strategy-jitter":
		return "politeness_jitter"
	case reason == "redelivery-backoff":
		return "redelivery_backoff"
	default:
		return "other"
	}
}
