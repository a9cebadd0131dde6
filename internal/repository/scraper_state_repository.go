package repository

import (
	"context"
	"time"

	"newsriver/internal/domain/entity"
)

// ScraperStateRepository persists each scraper instance's control block
// and its next scheduled tick. One row per source; the owning instance
// goroutine is the only writer of its row.
type ScraperStateRepository interface {
	// Get retrieves the persisted state for a source.
	// Returns entity.ErrNotFound when the instance was never initialized,
	// and an error wrapping entity.ErrCorruptState when the stored blob
	// does not decode.
	Get(ctx context.Context, sourceID int64) (*entity.ScraperState, error)

	// Put upserts the state blob.
	Put(ctx context.Context, state *entity.ScraperState) error

	// SetNextTick records when the instance intends to fire next, so a
	// restarted scheduler can rebuild its timers instead of ticking
	// everything at once.
	SetNextTick(ctx context.Context, sourceID int64, at time.Time) error

	// NextTick returns the persisted fire time, or the zero time when the
	// instance never armed one.
	NextTick(ctx context.Context, sourceID int64) (time.Time, error)

	// Delete removes the state row. Used by destroy.
	Delete(ctx context.Context, sourceID int64) error
}
