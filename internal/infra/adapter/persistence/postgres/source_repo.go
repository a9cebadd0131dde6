package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"newsriver/internal/domain/entity"
	"newsriver/internal/repository"
)

type SourceRepo struct{ db DBTX }

func NewSourceRepo(db DBTX) repository.SourceRepository {
	return &SourceRepo{db: db}
}

const sourceColumns = `id, name, url, category, paywall, scrape_frequency_tier, last_checked, do_initialized_at`

func scanSource(scan func(dest ...any) error) (*entity.Source, error) {
	var source entity.Source
	var name, category sql.NullString
	if err := scan(
		&source.ID, &name, &source.URL, &category, &source.Paywall,
		&source.ScrapeFrequencyTier, &source.LastChecked, &source.InitializedAt,
	); err != nil {
		return nil, err
	}
	source.Name = name.String
	source.Category = category.String
	return &source, nil
}

func (repo *SourceRepo) Get(ctx context.Context, id int64) (*entity.Source, error) {
	query := fmt.Sprintf(`
SELECT %s
FROM sources
WHERE id = $1
LIMIT 1`, sourceColumns)
	source, err := scanSource(repo.db.QueryRowContext(ctx, query, id).Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("Get: source %d: %w", id, entity.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return source, nil
}

func (repo *SourceRepo) GetByURL(ctx context.Context, url string) (*entity.Source, error) {
	query := fmt.Sprintf(`
SELECT %s
FROM sources
WHERE url = $1
LIMIT 1`, sourceColumns)
	source, err := scanSource(repo.db.QueryRowContext(ctx, query, url).Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("GetByURL: %q: %w", url, entity.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetByURL: %w", err)
	}
	return source, nil
}

func (repo *SourceRepo) List(ctx context.Context) ([]*entity.Source, error) {
	query := fmt.Sprintf(`
SELECT %s
FROM sources
ORDER BY id ASC`, sourceColumns)
	return repo.queryList(ctx, "List", query)
}

func (repo *SourceRepo) ListInitialized(ctx context.Context) ([]*entity.Source, error) {
	query := fmt.Sprintf(`
SELECT %s
FROM sources
WHERE do_initialized_at IS NOT NULL
ORDER BY id ASC`, sourceColumns)
	return repo.queryList(ctx, "ListInitialized", query)
}

func (repo *SourceRepo) queryList(ctx context.Context, op, query string) ([]*entity.Source, error) {
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	sources := make([]*entity.Source, 0, 50)
	for rows.Next() {
		source, err := scanSource(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("%s: Scan: %w", op, err)
		}
		sources = append(sources, source)
	}
	return sources, rows.Err()
}

// Upsert keys on the externally assigned source id. do_initialized_at and
// last_checked are deliberately not touched here; they have dedicated
// writers.
func (repo *SourceRepo) Upsert(ctx context.Context, source *entity.Source) error {
	const query = `
INSERT INTO sources (id, name, url, category, paywall, scrape_frequency_tier)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
       name                  = EXCLUDED.name,
       url                   = EXCLUDED.url,
       category              = EXCLUDED.category,
       paywall               = EXCLUDED.paywall,
       scrape_frequency_tier = EXCLUDED.scrape_frequency_tier`
	_, err := repo.db.ExecContext(ctx, query,
		source.ID, source.Name, source.URL,
		source.Category, source.Paywall, source.ScrapeFrequencyTier,
	)
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	return nil
}

func (repo *SourceRepo) SetInitialized(ctx context.Context, id int64, at *time.Time) error {
	const query = `UPDATE sources SET do_initialized_at = $1 WHERE id = $2`
	res, err := repo.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("SetInitialized: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("SetInitialized: source %d: %w", id, entity.ErrNotFound)
	}
	return nil
}

func (repo *SourceRepo) UpdateLastChecked(ctx context.Context, id int64, t time.Time) error {
	const query = `UPDATE sources SET last_checked = $1 WHERE id = $2`
	_, err := repo.db.ExecContext(ctx, query, t, id)
	return err
}
