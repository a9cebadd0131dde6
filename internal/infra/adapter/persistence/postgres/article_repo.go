package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"newsriver/internal/domain/entity"
	"newsriver/internal/repository"

	"github.com/pgvector/pgvector-go"
)

type ArticleRepo struct {
	db DBTX
}

func NewArticleRepo(db DBTX) repository.ArticleRepository {
	return &ArticleRepo{db: db}
}

// articleColumns is the scan set shared by Get and ListProcessable. The
// embedding column is write-only from the pipeline's point of view and is
// never read back here.
const articleColumns = `id, source_id, title, url, publish_date, status, used_browser, content_file_key, fail_reason, processed_at, created_at`

func scanArticle(scan func(dest ...any) error) (*entity.Article, error) {
	var article entity.Article
	var status string
	var contentFileKey, failReason sql.NullString
	if err := scan(
		&article.ID, &article.SourceID, &article.Title, &article.URL,
		&article.PublishDate, &status, &article.UsedBrowser,
		&contentFileKey, &failReason, &article.ProcessedAt, &article.CreatedAt,
	); err != nil {
		return nil, err
	}
	article.Status = entity.ArticleStatus(status)
	article.ContentFileKey = contentFileKey.String
	article.FailReason = failReason.String
	return &article, nil
}

func (repo *ArticleRepo) InsertIgnoreDuplicates(ctx context.Context, articles []*entity.Article) ([]int64, error) {
	if len(articles) == 0 {
		return nil, nil
	}

	const cols = 4
	args := make([]interface{}, 0, len(articles)*cols)
	for _, a := range articles {
		args = append(args, a.SourceID, a.Title, a.URL, a.PublishDate)
	}

	query := fmt.Sprintf(`
INSERT INTO articles (source_id, title, url, publish_date)
VALUES %s
ON CONFLICT (url) DO NOTHING
RETURNING id`, valuesClause(len(articles), cols))

	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("InsertIgnoreDuplicates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	inserted := make([]int64, 0, len(articles))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("InsertIgnoreDuplicates: Scan: %w", err)
		}
		inserted = append(inserted, id)
	}
	return inserted, rows.Err()
}

func (repo *ArticleRepo) Get(ctx context.Context, id int64) (*entity.Article, error) {
	query := fmt.Sprintf(`
SELECT %s
FROM articles
WHERE id = $1
LIMIT 1`, articleColumns)
	article, err := scanArticle(repo.db.QueryRowContext(ctx, query, id).Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("Get: article %d: %w", id, entity.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return article, nil
}

func (repo *ArticleRepo) ListProcessable(ctx context.Context, ids []int64, publishedAfter time.Time) ([]*entity.Article, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]interface{}, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, publishedAfter)

	query := fmt.Sprintf(`
SELECT %s
FROM articles
WHERE id IN (%s)
  AND processed_at IS NULL
  AND fail_reason IS NULL
  AND publish_date > $%d
ORDER BY id ASC`, articleColumns, placeholderList(1, len(ids)), len(ids)+1)

	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListProcessable: %w", err)
	}
	defer func() { _ = rows.Close() }()

	articles := make([]*entity.Article, 0, len(ids))
	for rows.Next() {
		article, err := scanArticle(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("ListProcessable: Scan: %w", err)
		}
		articles = append(articles, article)
	}
	return articles, rows.Err()
}

func (repo *ArticleRepo) ListStalled(ctx context.Context, publishedAfter, enqueuedBefore time.Time, limit int) ([]int64, error) {
	const query = `
SELECT id
FROM articles
WHERE processed_at IS NULL
  AND fail_reason IS NULL
  AND publish_date > $1
  AND created_at < $2
ORDER BY id ASC
LIMIT $3`
	rows, err := repo.db.QueryContext(ctx, query, publishedAfter, enqueuedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("ListStalled: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := make([]int64, 0, limit)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ListStalled: Scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (repo *ArticleRepo) MarkContentFetched(ctx context.Context, id int64, usedBrowser bool, publishDate *time.Time) error {
	const query = `
UPDATE articles SET
       status       = $1,
       used_browser = $2,
       publish_date = COALESCE(publish_date, $3)
WHERE id = $4 AND processed_at IS NULL`
	res, err := repo.db.ExecContext(ctx, query,
		string(entity.StatusContentFetched), usedBrowser, publishDate, id,
	)
	if err != nil {
		return fmt.Errorf("MarkContentFetched: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("MarkContentFetched: article %d: %w", id, entity.ErrNotFound)
	}
	return nil
}

func (repo *ArticleRepo) MarkFailed(ctx context.Context, id int64, status entity.ArticleStatus, failReason string, processedAt time.Time) error {
	if !status.Valid() || !status.Terminal() {
		return fmt.Errorf("MarkFailed: status %q: %w", status, entity.ErrInvalidInput)
	}

	// processed_at IS NULL makes terminal transitions happen at most once;
	// redelivered bus messages hit zero rows and that is fine.
	const query = `
UPDATE articles SET
       status       = $1,
       fail_reason  = $2,
       processed_at = $3
WHERE id = $4 AND processed_at IS NULL`
	_, err := repo.db.ExecContext(ctx, query, string(status), failReason, processedAt, id)
	if err != nil {
		return fmt.Errorf("MarkFailed: %w", err)
	}
	return nil
}

func (repo *ArticleRepo) CommitProcessed(ctx context.Context, article *entity.Article) error {
	if article.Analysis == nil {
		return fmt.Errorf("CommitProcessed: article %d has no analysis: %w", article.ID, entity.ErrInvalidInput)
	}
	if len(article.Embedding) != entity.EmbeddingDim {
		return fmt.Errorf("CommitProcessed: article %d embedding has %d dims, want %d: %w",
			article.ID, len(article.Embedding), entity.EmbeddingDim, entity.ErrInvalidInput)
	}
	if article.ContentFileKey == "" {
		return fmt.Errorf("CommitProcessed: article %d has no content file key: %w", article.ID, entity.ErrInvalidInput)
	}

	analysis := article.Analysis
	summaryJSON, err := marshalStringList(analysis.EventSummaryPoints)
	if err != nil {
		return fmt.Errorf("CommitProcessed: %w", err)
	}
	keywordsJSON, err := marshalStringList(analysis.ThematicKeywords)
	if err != nil {
		return fmt.Errorf("CommitProcessed: %w", err)
	}
	tagsJSON, err := marshalStringList(analysis.TopicTags)
	if err != nil {
		return fmt.Errorf("CommitProcessed: %w", err)
	}
	entitiesJSON, err := marshalStringList(analysis.KeyEntities)
	if err != nil {
		return fmt.Errorf("CommitProcessed: %w", err)
	}
	focusJSON, err := marshalStringList(analysis.ContentFocus)
	if err != nil {
		return fmt.Errorf("CommitProcessed: %w", err)
	}

	const query = `
UPDATE articles SET
       status               = $1,
       language             = $2,
       primary_location     = $3,
       completeness         = $4,
       content_quality      = $5,
       event_summary_points = $6,
       thematic_keywords    = $7,
       topic_tags           = $8,
       key_entities         = $9,
       content_focus        = $10,
       embedding            = $11,
       content_file_key     = $12,
       processed_at         = $13
WHERE id = $14 AND processed_at IS NULL`
	_, err = repo.db.ExecContext(ctx, query,
		string(entity.StatusProcessed),
		analysis.Language, analysis.PrimaryLocation,
		string(analysis.Completeness), string(analysis.ContentQuality),
		summaryJSON, keywordsJSON, tagsJSON, entitiesJSON, focusJSON,
		pgvector.NewVector(article.Embedding),
		article.ContentFileKey, article.ProcessedAt, article.ID,
	)
	if err != nil {
		return fmt.Errorf("CommitProcessed: %w", err)
	}
	return nil
}

// marshalStringList encodes a string slice as JSONB, mapping nil to an
// empty array so PROCESSED rows never carry null analysis fields.
func marshalStringList(list []string) ([]byte, error) {
	if list == nil {
		list = []string{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("marshal string list: %w", err)
	}
	return data, nil
}
