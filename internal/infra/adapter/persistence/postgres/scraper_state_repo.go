package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"newsriver/internal/domain/entity"
	"newsriver/internal/repository"
)

type ScraperStateRepo struct{ db DBTX }

func NewScraperStateRepo(db DBTX) repository.ScraperStateRepository {
	return &ScraperStateRepo{db: db}
}

func (repo *ScraperStateRepo) Get(ctx context.Context, sourceID int64) (*entity.ScraperState, error) {
	const query = `
SELECT state
FROM scraper_states
WHERE source_id = $1
LIMIT 1`
	var raw []byte
	err := repo.db.QueryRowContext(ctx, query, sourceID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("Get: source %d: %w", sourceID, entity.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}

	var state entity.ScraperState
	if err := json.Unmarshal(raw, &state); err != nil {
		// The blob does not decode. The caller must park the instance
		// rather than retry; corruption is not transient.
		return nil, fmt.Errorf("Get: decode state for source %d: %v: %w", sourceID, err, entity.ErrCorruptState)
	}
	return &state, nil
}

func (repo *ScraperStateRepo) Put(ctx context.Context, state *entity.ScraperState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("Put: marshal state: %w", err)
	}

	const query = `
INSERT INTO scraper_states (source_id, state, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (source_id) DO UPDATE SET
       state      = EXCLUDED.state,
       updated_at = now()`
	if _, err := repo.db.ExecContext(ctx, query, state.SourceID, raw); err != nil {
		return fmt.Errorf("Put: %w", err)
	}
	return nil
}

func (repo *ScraperStateRepo) SetNextTick(ctx context.Context, sourceID int64, at time.Time) error {
	const query = `UPDATE scraper_states SET next_tick_at = $1 WHERE source_id = $2`
	res, err := repo.db.ExecContext(ctx, query, at, sourceID)
	if err != nil {
		return fmt.Errorf("SetNextTick: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("SetNextTick: source %d: %w", sourceID, entity.ErrNotFound)
	}
	return nil
}

func (repo *ScraperStateRepo) NextTick(ctx context.Context, sourceID int64) (time.Time, error) {
	const query = `
SELECT next_tick_at
FROM scraper_states
WHERE source_id = $1
LIMIT 1`
	var at *time.Time
	err := repo.db.QueryRowContext(ctx, query, sourceID).Scan(&at)
	if err == sql.ErrNoRows {
		return time.Time{}, fmt.Errorf("NextTick: source %d: %w", sourceID, entity.ErrNotFound)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("NextTick: %w", err)
	}
	if at == nil {
		return time.Time{}, nil
	}
	return *at, nil
}

// Delete is idempotent; destroying an instance twice is not an error.
func (repo *ScraperStateRepo) Delete(ctx context.Context, sourceID int64) error {
	const query = `DELETE FROM scraper_states WHERE source_id = $1`
	if _, err := repo.db.ExecContext(ctx, query, sourceID); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}
