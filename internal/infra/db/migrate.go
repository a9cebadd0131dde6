package db

import (
	"database/sql"
	_ "embed"
)

//go:embed seeds/sources.sql
var seedSourcesSQL string

// MigrateUp creates the pipeline schema if it does not exist yet and loads
// the seed sources. Statements are idempotent; both binaries run this at
// boot and the second one is a no-op.
func MigrateUp(db *sql.DB) error {
	// pgvector must exist before the articles table declares its
	// embedding column. Ignored when already installed or when the role
	// lacks the privilege; the CREATE TABLE below fails loudly in the
	// latter case.
	_, _ = db.Exec(`CREATE EXTENSION IF NOT EXISTS vector`)

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS sources (
    id                    BIGINT PRIMARY KEY,
    name                  TEXT,
    url                   TEXT NOT NULL UNIQUE,
    category              TEXT,
    paywall               BOOLEAN NOT NULL DEFAULT FALSE,
    scrape_frequency_tier INT NOT NULL DEFAULT 2,
    last_checked          TIMESTAMPTZ,
    do_initialized_at     TIMESTAMPTZ
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS articles (
    id                   BIGSERIAL PRIMARY KEY,
    source_id            BIGINT REFERENCES sources(id),
    title                TEXT NOT NULL,
    url                  TEXT NOT NULL UNIQUE,
    publish_date         TIMESTAMPTZ,
    status               VARCHAR(32) NOT NULL DEFAULT 'PENDING_FETCH',
    used_browser         BOOLEAN NOT NULL DEFAULT FALSE,
    language             TEXT,
    primary_location     TEXT,
    completeness         TEXT,
    content_quality      TEXT,
    event_summary_points JSONB,
    thematic_keywords    JSONB,
    topic_tags           JSONB,
    key_entities         JSONB,
    content_focus        JSONB,
    embedding            vector(384),
    content_file_key     TEXT,
    fail_reason          TEXT,
    processed_at         TIMESTAMPTZ,
    created_at           TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS scraper_states (
    source_id    BIGINT PRIMARY KEY REFERENCES sources(id) ON DELETE CASCADE,
    state        JSONB NOT NULL,
    next_tick_at TIMESTAMPTZ,
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return err
	}

	indexes := []string{
		// Step-0 selection and the requeue reconciler both scan for
		// unprocessed rows inside the publish window.
		`CREATE INDEX IF NOT EXISTS idx_articles_unprocessed ON articles(publish_date) WHERE processed_at IS NULL AND fail_reason IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_articles_source_id ON articles(source_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sources_initialized ON sources(do_initialized_at) WHERE do_initialized_at IS NOT NULL`,
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return err
		}
	}

	// Status values are closed; reject anything outside the pipeline set.
	// Ignored when the constraint already exists.
	_, _ = db.Exec(`
DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM pg_constraint
        WHERE conname = 'chk_article_status'
    ) THEN
        ALTER TABLE articles ADD CONSTRAINT chk_article_status
        CHECK (status IN ('PENDING_FETCH', 'CONTENT_FETCHED', 'PROCESSED',
                          'SKIPPED_PDF', 'FETCH_FAILED', 'RENDER_FAILED',
                          'AI_ANALYSIS_FAILED', 'EMBEDDING_FAILED',
                          'BLOB_UPLOAD_FAILED'));
    END IF;
END $$;
`)

	// Cosine similarity index for downstream consumers of the embeddings.
	// Ignored when pgvector is unavailable; nothing in the pipeline reads
	// vectors back.
	_, _ = db.Exec(`
CREATE INDEX IF NOT EXISTS idx_articles_embedding
    ON articles USING ivfflat (embedding vector_cosine_ops)
    WITH (lists = 100)`)

	if _, err := db.Exec(seedSourcesSQL); err != nil {
		return err
	}

	return nil
}

// MigrateDown removes the pipeline schema in reverse dependency order.
// Use with caution: this deletes all data in the affected tables.
func MigrateDown(db *sql.DB) error {
	dropStatements := []string{
		`DROP TABLE IF EXISTS scraper_states CASCADE`,
		`DROP TABLE IF EXISTS articles CASCADE`,
		`DROP TABLE IF EXISTS sources CASCADE`,
	}
	for _, stmt := range dropStatements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	// The vector extension stays; other schemas may depend on it.

	return nil
}
