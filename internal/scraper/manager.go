package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"newsriver/internal/domain/entity"
	"newsriver/internal/observability/logging"
	"newsriver/internal/observability/metrics"
)

// Manager owns every scraper instance in the process, keyed by the
// URL-derived ScraperID. Admin operations address instances through it;
// at boot Restore rebuilds the set from do_initialized_at rows.
type Manager struct {
	deps Deps

	mu        sync.Mutex
	instances map[string]*Instance
}

// NewManager creates an empty manager. Call Restore to rebuild instances
// for sources initialized by an earlier run.
func NewManager(deps Deps) *Manager {
	return &Manager{
		deps:      deps,
		instances: make(map[string]*Instance),
	}
}

// Initialize creates (or converges) the instance for a source. The source
// row must already exist; a request racing a concurrent source delete
// returns silently. do_initialized_at is written only after the state
// blob is persisted and the first tick armed, so a crash in between
// leaves a partially initialized source that a repeat call repairs.
func (m *Manager) Initialize(ctx context.Context, src *entity.Source) error {
	logger := logging.FromContext(ctx)

	if src == nil {
		return fmt.Errorf("initialize: %w", entity.ErrInvalidInput)
	}
	if err := src.Validate(); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	tier, coerced := entity.NormalizeTier(src.ScrapeFrequencyTier)
	if coerced {
		logger.Warn("unknown frequency tier, using standard",
			slog.Int64("source_id", src.ID),
			slog.Int("tier", src.ScrapeFrequencyTier))
	}

	if _, err := m.deps.Sources.Get(ctx, src.ID); err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			// The admin deleted the source between creating it and this
			// call reaching us. Nothing to do.
			logger.Info("initialize skipped, source no longer exists",
				slog.Int64("source_id", src.ID))
			return nil
		}
		return fmt.Errorf("initialize: verify source: %w", err)
	}

	state := &entity.ScraperState{
		SourceID:            src.ID,
		URL:                 src.URL,
		ScrapeFrequencyTier: tier,
	}
	if err := m.deps.States.Put(ctx, state); err != nil {
		return fmt.Errorf("initialize: persist state: %w", err)
	}

	firstTick := time.Now().Add(firstTickDelay)

	id := ScraperID(src.URL)
	m.mu.Lock()
	inst, ok := m.instances[id]
	if !ok {
		inst = NewInstance(src.ID, src.URL, m.deps)
		inst.start(firstTick)
		m.instances[id] = inst
	}
	count := len(m.instances)
	m.mu.Unlock()

	inst.arm(ctx, firstTick)
	metrics.UpdateActiveScrapers(count)

	now := time.Now()
	if err := m.deps.Sources.SetInitialized(ctx, src.ID, &now); err != nil {
		return fmt.Errorf("initialize: set initialized: %w", err)
	}

	logger.Info("scraper initialized",
		slog.Int64("source_id", src.ID),
		slog.String("url", src.URL),
		slog.Int("tier", tier),
		slog.Time("first_tick", firstTick))
	return nil
}

// Trigger arms an immediate tick on the instance for url.
func (m *Manager) Trigger(ctx context.Context, url string) error {
	inst, err := m.lookup(url)
	if err != nil {
		return err
	}
	inst.Trigger(ctx)
	return nil
}

// Status reports the instance for url.
func (m *Manager) Status(ctx context.Context, url string) (*Status, error) {
	inst, err := m.lookup(url)
	if err != nil {
		return nil, err
	}
	return inst.Status(ctx)
}

// Destroy stops the instance for url, deletes its persisted state, and
// clears do_initialized_at. When the process holds no instance it still
// cleans up a crashed predecessor's persisted remains.
func (m *Manager) Destroy(ctx context.Context, url string) error {
	id := ScraperID(url)
	m.mu.Lock()
	inst, ok := m.instances[id]
	if ok {
		delete(m.instances, id)
	}
	count := len(m.instances)
	m.mu.Unlock()

	var sourceID int64
	if ok {
		if err := inst.stop(ctx); err != nil {
			return fmt.Errorf("destroy: stop instance: %w", err)
		}
		inst.setPhase(PhaseDestroyed)
		metrics.UpdateActiveScrapers(count)
		sourceID = inst.SourceID
	} else {
		src, err := m.deps.Sources.GetByURL(ctx, url)
		if err != nil {
			return fmt.Errorf("destroy: %w", err)
		}
		sourceID = src.ID
	}

	if err := m.deps.States.Delete(ctx, sourceID); err != nil {
		return fmt.Errorf("destroy: delete state: %w", err)
	}
	if err := m.deps.Sources.SetInitialized(ctx, sourceID, nil); err != nil {
		return fmt.Errorf("destroy: clear initialized: %w", err)
	}

	logging.FromContext(ctx).Info("scraper destroyed",
		slog.Int64("source_id", sourceID),
		slog.String("url", url))
	return nil
}

// Restore rebuilds instances for every source whose do_initialized_at is
// set. Persisted fire times are honored so a scheduler restart does not
// tick the whole fleet at once; anything already due fires right away.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	logger := logging.FromContext(ctx)

	srcs, err := m.deps.Sources.ListInitialized(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore: %w", err)
	}

	restored := 0
	for _, src := range srcs {
		firstTick, err := m.restoreTick(ctx, src)
		if err != nil {
			logger.Warn("could not restore scraper, skipping",
				slog.Int64("source_id", src.ID),
				slog.String("url", src.URL),
				slog.Any("error", err))
			continue
		}

		id := ScraperID(src.URL)
		m.mu.Lock()
		if _, ok := m.instances[id]; ok {
			m.mu.Unlock()
			continue
		}
		inst := NewInstance(src.ID, src.URL, m.deps)
		inst.start(firstTick)
		m.instances[id] = inst
		count := len(m.instances)
		m.mu.Unlock()

		metrics.UpdateActiveScrapers(count)
		restored++
	}

	logger.Info("scrapers restored",
		slog.Int("restored", restored),
		slog.Int("initialized_sources", len(srcs)))
	return restored, nil
}

// restoreTick decides when a restored instance first fires. The persisted
// fire time wins; a missing or never-armed state falls back to the
// initialize delay. A source marked initialized whose state row
// disappeared gets the blob rebuilt from the source row, keeping it
// tickable instead of parked.
func (m *Manager) restoreTick(ctx context.Context, src *entity.Source) (time.Time, error) {
	at, err := m.deps.States.NextTick(ctx, src.ID)
	if err == nil && !at.IsZero() {
		return at, nil
	}
	if err != nil && !errors.Is(err, entity.ErrNotFound) {
		return time.Time{}, err
	}

	if errors.Is(err, entity.ErrNotFound) {
		tier, _ := entity.NormalizeTier(src.ScrapeFrequencyTier)
		state := &entity.ScraperState{
			SourceID:            src.ID,
			URL:                 src.URL,
			ScrapeFrequencyTier: tier,
			LastChecked:         src.LastChecked,
		}
		if perr := m.deps.States.Put(ctx, state); perr != nil {
			return time.Time{}, perr
		}
	}

	at = time.Now().Add(firstTickDelay)
	if err := m.deps.States.SetNextTick(ctx, src.ID, at); err != nil {
		return time.Time{}, err
	}
	return at, nil
}

// Shutdown cancels every instance, then waits for in-flight ticks to
// unwind or ctx to expire. Instances stay registered; shutdown is not
// destruction.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	insts := make([]*Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		insts = append(insts, inst)
	}
	m.mu.Unlock()

	for _, inst := range insts {
		inst.cancel()
	}
	for _, inst := range insts {
		select {
		case <-inst.done:
		case <-ctx.Done():
			return fmt.Errorf("shutdown: source %d: %w", inst.SourceID, ctx.Err())
		}
	}
	return nil
}

// Count returns the number of running instances.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.instances)
}

// lookup finds the running instance for a source URL.
func (m *Manager) lookup(url string) (*Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[ScraperID(url)]
	if !ok {
		return nil, fmt.Errorf("scraper for %s: %w", url, entity.ErrNotFound)
	}
	return inst, nil
}
