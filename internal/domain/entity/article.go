// Package entity defines the core domain entities and validation logic for the application.
// It contains the fundamental business objects such as Article, Source and ScraperState,
// along with their validation rules and domain-specific errors.
package entity

import "time"

// EmbeddingDim is the fixed width of the article embedding vector.
// The vector column in Postgres is declared with the same width; changing
// the embedding model requires a coordinated migration of both.
const EmbeddingDim = 384

// ArticleStatus tracks an article through the enrichment pipeline.
// PENDING_FETCH and CONTENT_FETCHED are the only non-terminal statuses;
// every other value is final and the article is never reprocessed.
type ArticleStatus string

const (
	StatusPendingFetch     ArticleStatus = "PENDING_FETCH"
	StatusContentFetched   ArticleStatus = "CONTENT_FETCHED"
	StatusProcessed        ArticleStatus = "PROCESSED"
	StatusSkippedPDF       ArticleStatus = "SKIPPED_PDF"
	StatusFetchFailed      ArticleStatus = "FETCH_FAILED"
	StatusRenderFailed     ArticleStatus = "RENDER_FAILED"
	StatusAnalysisFailed   ArticleStatus = "AI_ANALYSIS_FAILED"
	StatusEmbeddingFailed  ArticleStatus = "EMBEDDING_FAILED"
	StatusBlobUploadFailed ArticleStatus = "BLOB_UPLOAD_FAILED"
)

// Valid reports whether s is one of the known pipeline statuses.
func (s ArticleStatus) Valid() bool {
	switch s {
	case StatusPendingFetch, StatusContentFetched, StatusProcessed,
		StatusSkippedPDF, StatusFetchFailed, StatusRenderFailed,
		StatusAnalysisFailed, StatusEmbeddingFailed, StatusBlobUploadFailed:
		return true
	}
	return false
}

// Terminal reports whether an article in status s has left the pipeline.
// Terminal articles carry either a full analysis (PROCESSED) or a fail
// reason, and must never be picked up by a worker again.
func (s ArticleStatus) Terminal() bool {
	switch s {
	case StatusPendingFetch, StatusContentFetched:
		return false
	}
	return true
}

// Article represents one story discovered from a source feed.
// The URL is the global dedup key: re-observing a known URL is a no-op.
//
// Nullable columns map to pointer or zero values: PublishDate and
// ProcessedAt are nil until known, FailReason and ContentFileKey are empty
// until written, Embedding is nil unless Status is PROCESSED.
type Article struct {
	ID          int64
	SourceID    int64
	Title       string
	URL         string
	PublishDate *time.Time
	Status      ArticleStatus
	UsedBrowser bool

	Analysis       *ArticleAnalysis
	Embedding      []float32
	ContentFileKey string
	FailReason     string
	ProcessedAt    *time.Time
	CreatedAt      time.Time
}
