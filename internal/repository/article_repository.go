package repository

import (
	"context"
	"time"

	"newsriver/internal/domain/entity"
)

// ArticleRepository persists articles across the harvest and enrichment
// lifecycle. The bus delivers at least once, so every write here must be
// idempotent against redelivery.
type ArticleRepository interface {
	// InsertIgnoreDuplicates inserts freshly harvested entries as
	// PENDING_FETCH rows. URLs already present are skipped without error.
	// Returns the ids of the rows actually created.
	InsertIgnoreDuplicates(ctx context.Context, articles []*entity.Article) ([]int64, error)

	// Get retrieves one article by id.
	// Returns entity.ErrNotFound if no row exists.
	Get(ctx context.Context, id int64) (*entity.Article, error)

	// ListProcessable narrows candidate ids to rows still worth enriching:
	// never processed, no fail reason recorded, and published after the
	// cutoff. Ids that do not qualify are simply absent from the result.
	ListProcessable(ctx context.Context, ids []int64, publishedAfter time.Time) ([]*entity.Article, error)

	// ListStalled returns ids of rows that entered the pipeline before
	// enqueuedBefore but never reached a terminal status, limited to rows
	// published after the cutoff. The requeue reconciler feeds these back
	// onto the bus.
	ListStalled(ctx context.Context, publishedAfter, enqueuedBefore time.Time, limit int) ([]int64, error)

	// MarkContentFetched records a successful scrape: status moves to
	// CONTENT_FETCHED, usedBrowser records which strategy won, and
	// publishDate backfills the row when the feed supplied no date.
	MarkContentFetched(ctx context.Context, id int64, usedBrowser bool, publishDate *time.Time) error

	// MarkFailed stamps a terminal failure in one write: the status, the
	// reason, and processedAt. The row never re-enters the pipeline.
	MarkFailed(ctx context.Context, id int64, status entity.ArticleStatus, failReason string, processedAt time.Time) error

	// CommitProcessed finalizes a fully enriched article in a single
	// update carrying the analysis fields, the embedding, the blob key,
	// PROCESSED, and processedAt. There is no partial variant.
	CommitProcessed(ctx context.Context, article *entity.Article) error
}
