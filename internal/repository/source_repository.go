package repository

import (
	"context"
	"time"

	"newsriver/internal/domain/entity"
)

type SourceRepository interface {
	Get(ctx context.Context, id int64) (*entity.Source, error)
	GetByURL(ctx context.Context, url string) (*entity.Source, error)
	List(ctx context.Context) ([]*entity.Source, error)
	// ListInitialized returns sources whose do_initialized_at is set,
	// meaning a scraper instance exists and must be restored at boot.
	ListInitialized(ctx context.Context) ([]*entity.Source, error)
	// Upsert creates the source row, or refreshes url, name, category and
	// frequency tier when the id is already present.
	Upsert(ctx context.Context, source *entity.Source) error
	// SetInitialized records (or clears, with nil) do_initialized_at.
	SetInitialized(ctx context.Context, id int64, at *time.Time) error
	UpdateLastChecked(ctx context.Context, id int64, t time.Time) error
}
