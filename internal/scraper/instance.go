package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"newsriver/internal/domain/entity"
	"newsriver/internal/infra/feed"
	"newsriver/internal/observability/metrics"
	"newsriver/internal/repository"
	"newsriver/internal/resilience/retry"
	"newsriver/pkg/sleeper"
)

// firstTickDelay is how far in the future a freshly initialized instance
// arms its first tick.
const firstTickDelay = 5 * time.Second

// corruptStatePark is how long an instance with an unusable state blob
// waits before looking again. Corruption is not transient; a short park
// would turn one bad row into a tight failure loop.
const corruptStatePark = 24 * time.Hour

// FeedFetcher retrieves the raw feed document for a source URL.
type FeedFetcher interface {
	Fetch(ctx context.Context, feedURL string) ([]byte, error)
}

// FeedParser decodes a feed document into normalized entries.
type FeedParser interface {
	Parse(data []byte) ([]feed.Entry, error)
}

// Deps bundles the collaborators shared by every instance.
type Deps struct {
	States    repository.ScraperStateRepository
	Sources   repository.SourceRepository
	Articles  repository.ArticleRepository
	Publisher repository.ArticlePublisher
	Fetcher   FeedFetcher
	Parser    FeedParser
	Sleeper   sleeper.Sleeper
}

// Phase is the lifecycle position of an instance: SCHEDULED while waiting
// on its timer, RUNNING inside a tick, DESTROYED once removed. A source
// with no instance at all is uninitialized and has no phase.
type Phase string

const (
	PhaseScheduled Phase = "SCHEDULED"
	PhaseRunning   Phase = "RUNNING"
	PhaseDestroyed Phase = "DESTROYED"
)

// Status is the admin-facing view of one instance: the persisted control
// block plus the armed fire time.
type Status struct {
	State      *entity.ScraperState `json:"state"`
	Phase      Phase                `json:"phase"`
	NextTickAt time.Time            `json:"nextTickAt"`
}

// Instance is one source's polling state machine. Its run goroutine is the
// sole tick executor, so ticks for a source never interleave.
type Instance struct {
	SourceID int64
	URL      string
	Deps

	mu       sync.Mutex
	phase    Phase
	nextTick time.Time

	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// NewInstance creates an instance for a source. It does not start the
// timer loop; the manager does that once the first tick is decided.
func NewInstance(sourceID int64, url string, deps Deps) *Instance {
	return &Instance{
		SourceID: sourceID,
		URL:      url,
		Deps:     deps,
		phase:    PhaseScheduled,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// start launches the run goroutine with the first tick armed at firstTick.
// The loop runs on its own context so an admin request ending cannot kill
// a long-lived instance; only stop ends it.
func (i *Instance) start(firstTick time.Time) {
	ctx, cancel := context.WithCancel(context.Background())
	i.cancel = cancel

	i.mu.Lock()
	i.phase = PhaseScheduled
	i.nextTick = firstTick
	i.mu.Unlock()

	go i.run(ctx)
}

// stop halts the run loop and waits for any in-flight tick to unwind.
func (i *Instance) stop(ctx context.Context) error {
	i.cancel()
	select {
	case <-i.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the timer loop. It sleeps until the armed fire time, runs the
// tick, and re-reads the arm time whenever someone re-arms it.
func (i *Instance) run(ctx context.Context) {
	defer close(i.done)

	for {
		i.mu.Lock()
		next := i.nextTick
		i.mu.Unlock()

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-i.wake:
			timer.Stop()
			continue
		case <-timer.C:
			i.tick(ctx)
		}
	}
}

// Trigger arms an immediate tick. The run loop fires it as soon as the
// goroutine is free; a tick already in flight is the immediate work.
func (i *Instance) Trigger(ctx context.Context) {
	i.arm(ctx, time.Now())
}

// Status reports the persisted state and the armed fire time.
func (i *Instance) Status(ctx context.Context) (*Status, error) {
	state, err := i.States.Get(ctx, i.SourceID)
	if err != nil {
		return nil, fmt.Errorf("scraper status: %w", err)
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	return &Status{State: state, Phase: i.phase, NextTickAt: i.nextTick}, nil
}

// NextTickAt returns the armed fire time.
func (i *Instance) NextTickAt() time.Time {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.nextTick
}

// arm schedules the next tick. The in-memory timer always moves so
// liveness never depends on the database; the persisted copy exists for
// scheduler restarts and is written best-effort.
func (i *Instance) arm(ctx context.Context, at time.Time) {
	i.mu.Lock()
	i.nextTick = at
	i.mu.Unlock()

	select {
	case i.wake <- struct{}{}:
	default:
	}

	if err := i.States.SetNextTick(context.WithoutCancel(ctx), i.SourceID, at); err != nil {
		slog.Warn("failed to persist next tick",
			slog.Int64("source_id", i.SourceID),
			slog.Time("at", at),
			slog.Any("error", err))
	}
}

// tick runs one scrape cycle. The ordering is load-bearing: the successor
// tick is armed before any fallible work, and lastChecked advances only
// after every step has succeeded, so a failed cycle is simply re-run whole
// on the next fire.
func (i *Instance) tick(ctx context.Context) {
	logger := slog.Default()
	start := time.Now()

	i.setPhase(PhaseRunning)
	defer i.setPhase(PhaseScheduled)

	state, err := i.States.Get(ctx, i.SourceID)
	if err == nil {
		err = state.Validate()
	}
	if err != nil {
		i.arm(ctx, time.Now().Add(corruptStatePark))
		metrics.RecordTick(i.SourceID, "corrupt_state", time.Since(start))
		logger.Error("scraper state unusable, parking instance",
			slog.Int64("source_id", i.SourceID),
			slog.Duration("park", corruptStatePark),
			slog.Any("error", err))
		return
	}

	i.arm(ctx, time.Now().Add(state.Interval()))

	var body []byte
	err = retry.WithBackoffSleep(ctx, retry.TickStepConfig(), i.Sleeper, "retry-backoff:fetch-feed", func() error {
		var ferr error
		body, ferr = i.Fetcher.Fetch(ctx, state.URL)
		return ferr
	})
	if err != nil {
		i.recordFailure(ctx, start, "fetch_failed", err)
		return
	}

	var entries []feed.Entry
	err = retry.WithBackoffSleep(ctx, retry.TickStepConfig(), i.Sleeper, "retry-backoff:parse-feed", func() error {
		var perr error
		entries, perr = i.Parser.Parse(body)
		return perr
	})
	if err != nil {
		i.recordFailure(ctx, start, "parse_failed", err)
		return
	}

	rows := buildRows(state.SourceID, entries)

	var inserted []int64
	err = retry.WithBackoffSleep(ctx, retry.TickStepConfig(), i.Sleeper, "retry-backoff:insert-articles", func() error {
		var ierr error
		inserted, ierr = i.Articles.InsertIgnoreDuplicates(ctx, rows)
		return ierr
	})
	if err != nil {
		i.recordFailure(ctx, start, "insert_failed", err)
		return
	}

	if len(inserted) > 0 {
		if _, err := i.Publisher.PublishArticleIDs(ctx, inserted); err != nil {
			i.recordFailure(ctx, start, "publish_failed", err)
			return
		}
	}

	// Everything above succeeded; only now may lastChecked advance.
	now := time.Now()
	state.LastChecked = &now
	safeCtx := context.WithoutCancel(ctx)
	if err := i.States.Put(safeCtx, state); err != nil {
		i.recordFailure(ctx, start, "state_write_failed", err)
		return
	}
	if err := i.Sources.UpdateLastChecked(safeCtx, i.SourceID, now); err != nil {
		logger.Warn("failed to mirror last checked onto source row",
			slog.Int64("source_id", i.SourceID),
			slog.Any("error", err))
	}

	metrics.RecordTick(i.SourceID, "success", time.Since(start))
	metrics.RecordFeedEntries(i.SourceID, len(entries), len(inserted))
	logger.Info("tick completed",
		slog.Int64("source_id", i.SourceID),
		slog.Int("entries", len(entries)),
		slog.Int("inserted", len(inserted)),
		slog.Duration("duration", time.Since(start)))
}

func (i *Instance) setPhase(p Phase) {
	i.mu.Lock()
	i.phase = p
	i.mu.Unlock()
}

// recordFailure logs and counts a failed tick. Cancellation during
// shutdown is not a tick outcome and stays out of the series.
func (i *Instance) recordFailure(ctx context.Context, start time.Time, outcome string, err error) {
	if ctx.Err() != nil {
		slog.Debug("tick aborted by shutdown",
			slog.Int64("source_id", i.SourceID),
			slog.String("step", outcome))
		return
	}
	metrics.RecordTick(i.SourceID, outcome, time.Since(start))
	slog.Warn("tick failed",
		slog.Int64("source_id", i.SourceID),
		slog.String("outcome", outcome),
		slog.Any("error", err))
}

// buildRows maps feed entries onto insertable article rows. Status and
// creation time come from database defaults.
func buildRows(sourceID int64, entries []feed.Entry) []*entity.Article {
	rows := make([]*entity.Article, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, &entity.Article{
			SourceID:    sourceID,
			Title:       e.Title,
			URL:         e.Link,
			PublishDate: e.PublishedAt,
		})
	}
	return rows
}
