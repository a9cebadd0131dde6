package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"newsriver/pkg/sleeper"
)

func TestSleepReasonLabel(t *testing.T) {
	tests := []struct {
		reason string
		want   string
	}{
		{"retry-backoff:fetch-feed", "retry_backoff"},
		{"retry-backoff:scrape-article", "retry_backoff"},
		{"retry-backoff", "retry_backoff"},
		{"domain-cooldown", "domain_rate"},
		{"global-cooldown", "domain_rate"},
		{"strategy-jitter", "politeness_jitter"},
		{"redelivery-backoff", "redelivery_backoff"},
		{"something-else", "other"},
		{"", "other"},
	}

	for _, tt := range tests {
		if got := sleepReasonLabel(tt.reason); got != tt.want {
			t.Errorf("sleepReasonLabel(%q) = %q, want %q", tt.reason, got, tt.want)
		}
	}
}

func TestInstrumentSleeper_PassesRawReasonThrough(t *testing.T) {
	var gotReason string
	var gotDuration time.Duration

	wrapped := InstrumentSleeper(sleeper.Func(func(ctx context.Context, reason string, d time.Duration) error {
		gotReason = reason
		gotDuration = d
		return nil
	}))

	assert.NotPanics(t, func() {
		err := wrapped.Sleep(context.Background(), "retry-backoff:embed-article", 2*time.Second)
		assert.NoError(t, err)
	})

	// The inner sleeper sees the raw reason; only the metric label is collapsed.
	assert.Equal(t, "retry-backoff:embed-article", gotReason)
	assert.Equal(t, 2*time.Second, gotDuration)
}

func TestInstrumentSleeper_PropagatesError(t *testing.T) {
	wantErr := errors.New("interrupted")
	wrapped := InstrumentSleeper(sleeper.Func(func(ctx context.Context, reason string, d time.Duration) error {
		return wantErr
	}))

	err := wrapped.Sleep(context.Background(), "domain-cooldown", time.Second)
	assert.ErrorIs(t, err, wantErr)
}

func TestInstrumentSleeper_ZeroDurationStillDelegates(t *testing.T) {
	calls := 0
	wrapped := InstrumentSleeper(sleeper.Func(func(ctx context.Context, reason string, d time.Duration) error {
		calls++
		return nil
	}))

	assert.NotPanics(t, func() {
		_ = wrapped.Sleep(context.Background(), "strategy-jitter", 0)
	})
	assert.Equal(t, 1, calls)
}
