// Package domainlimit provides a batch scheduler that enforces per-host
// politeness cooldowns and a global concurrency cap.
//
// It is a generic, reusable primitive: callers hand it a batch of
// (id, url) items and a work function, and it releases work in waves,
// never running more than MaxConcurrent invocations at once and never
// hitting the same host twice within DomainCooldown. All waits go through
// an injected sleeper.Sleeper so the scheduler behaves identically under
// a real clock and under a durable orchestrator.
package domainlimit

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"newsriver/pkg/sleeper"
)

// minReadyWait floors the sleep taken when no item is ready, so a herd of
// nearly-cooled hosts does not busy-spin the scheduler.
const minReadyWait = 500 * time.Millisecond

// Sleep reasons reported to the sleeper.
const (
	ReasonGlobalCooldown = "global-cooldown"
	ReasonDomainCooldown = "domain-cooldown"
)

// Config controls one limiter.
type Config struct {
	// MaxConcurrent caps parallel work invocations per wave. Values < 1
	// are treated as 1.
	MaxConcurrent int

	// GlobalCooldown is slept between non-final waves.
	GlobalCooldown time.Duration

	// DomainCooldown is the minimum spacing between two releases against
	// the same host.
	DomainCooldown time.Duration
}

// Item is one unit of batch input.
type Item struct {
	ID  int64
	URL string
}

// Work produces a result for one item. A returned error rejects the item:
// it is logged and dropped from the batch output.
type Work[T any] func(ctx context.Context, item Item, host string) (T, error)

// Limiter tracks per-host last-access times across the waves of a batch.
//
// The host map is mutated only by the goroutine running ProcessBatch; a
// limiter must not be shared across concurrently-running batches.
type Limiter struct {
	cfg        Config
	lastAccess map[string]time.Time
	now        func() time.Time
}

// New creates a limiter with an empty host map.
func New(cfg Config) *Limiter {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	return &Limiter{
		cfg:        cfg,
		lastAccess: make(map[string]time.Time),
		now:        time.Now,
	}
}

// pending is an item whose URL already parsed to a usable host.
type pending struct {
	item Item
	host string
}

// outcome carries one work result and whether it was fulfilled.
type outcome[T any] struct {
	value T
	ok    bool
}

// ProcessBatch drives items through work under l's cooldown rules and
// returns the fulfilled results in completion order.
//
// Items with unparseable URLs are dropped silently. In each wave the
// limiter releases up to MaxConcurrent items whose hosts have been quiet
// for DomainCooldown, marking each host as accessed at selection time so
// two items on one host never share a wave. When nothing is ready it
// sleeps the smallest remaining host cooldown (floored at 500ms) and
// retries; between non-final waves it sleeps GlobalCooldown.
//
// The only error returned is a failed sleep (cancellation); work errors
// reject their item but never abort the batch.
func ProcessBatch[T any](ctx context.Context, l *Limiter, items []Item, s sleeper.Sleeper, work Work[T]) ([]T, error) {
	remaining := make([]pending, 0, len(items))
	for _, it := range items {
		host, ok := hostOf(it.URL)
		if !ok {
			slog.Debug("dropping item with invalid url",
				slog.Int64("item_id", it.ID),
				slog.String("url", it.URL))
			continue
		}
		remaining = append(remaining, pending{item: it, host: host})
	}

	results := make([]T, 0, len(remaining))

	for len(remaining) > 0 {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		ready, rest := l.selectReady(remaining)
		if len(ready) == 0 {
			wait := l.minRemainingWait(remaining)
			if wait < minReadyWait {
				wait = minReadyWait
			}
			if err := s.Sleep(ctx, ReasonDomainCooldown, wait); err != nil {
				return results, err
			}
			continue
		}
		remaining = rest

		results = append(results, runWave(ctx, ready, work)...)

		if len(remaining) > 0 {
			if err := s.Sleep(ctx, ReasonGlobalCooldown, l.cfg.GlobalCooldown); err != nil {
				return results, err
			}
		}
	}

	return results, nil
}

// selectReady picks up to MaxConcurrent items whose hosts are cooled,
// marking each picked host at selection time. Within one call a host can
// therefore be picked at most once.
func (l *Limiter) selectReady(remaining []pending) (ready, rest []pending) {
	now := l.now()

	for _, p := range remaining {
		if len(ready) < l.cfg.MaxConcurrent && l.cooled(p.host, now) {
			l.lastAccess[p.host] = now
			ready = append(ready, p)
			continue
		}
		rest = append(rest, p)
	}
	return ready, rest
}

func (l *Limiter) cooled(host string, now time.Time) bool {
	last, seen := l.lastAccess[host]
	return !seen || now.Sub(last) >= l.cfg.DomainCooldown
}

// minRemainingWait returns the smallest positive time until some
// remaining host cools down.
func (l *Limiter) minRemainingWait(remaining []pending) time.Duration {
	now := l.now()
	var min time.Duration

	for _, p := range remaining {
		last, seen := l.lastAccess[p.host]
		if !seen {
			continue
		}
		wait := l.cfg.DomainCooldown - now.Sub(last)
		if wait <= 0 {
			continue
		}
		if min == 0 || wait < min {
			min = wait
		}
	}
	return min
}

// runWave executes work for one wave in parallel and returns the
// fulfilled results in the order they completed.
func runWave[T any](ctx context.Context, wave []pending, work Work[T]) []T {
	out := make(chan outcome[T], len(wave))

	var wg sync.WaitGroup
	for _, p := range wave {
		wg.Add(1)
		go func(p pending) {
			defer wg.Done()
			v, err := work(ctx, p.item, p.host)
			if err != nil {
				slog.Debug("batch item rejected",
					slog.Int64("item_id", p.item.ID),
					slog.String("host", p.host),
					slog.Any("error", err))
				out <- outcome[T]{ok: false}
				return
			}
			out <- outcome[T]{value: v, ok: true}
		}(p)
	}
	wg.Wait()
	close(out)

	results := make([]T, 0, len(wave))
	for r := range out {
		if r.ok {
			results = append(results, r.value)
		}
	}
	return results
}

// hostOf extracts a normalized host from a raw URL; ok is false when the
// URL cannot identify one.
func hostOf(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "", false
	}
	return strings.ToLower(u.Hostname()), true
}
