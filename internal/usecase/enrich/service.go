// Package enrich drives consumed article ids through the full pipeline:
// politeness-limited content scrape, LLM analysis, embedding and text
// upload in parallel, and a single commit that flips the row to
// PROCESSED. Every article leaves the package in exactly one terminal
// status; failures along the way stamp the row and drop it.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"newsriver/internal/domain/entity"
	"newsriver/internal/infra/extract"
	"newsriver/internal/observability/logging"
	"newsriver/internal/observability/metrics"
	"newsriver/internal/observability/slo"
	"newsriver/internal/repository"
	"newsriver/internal/resilience/retry"
	"newsriver/pkg/domainlimit"
	"newsriver/pkg/sleeper"

	"golang.org/x/sync/errgroup"
)

const (
	// analysisParallelism caps concurrent LLM calls across a batch
	// (rate-limited upstream).
	analysisParallelism = 5

	// ProcessableWindow is how far back an article's publish date may lie
	// and still be worth enriching. The requeue reconciler applies the same
	// window when deciding which stalled rows are worth re-publishing.
	ProcessableWindow = 48 * time.Hour
)

// ContentFetcher retrieves a page over plain HTTP.
type ContentFetcher interface {
	Fetch(ctx context.Context, articleURL string) ([]byte, error)
}

// ContentRenderer retrieves a page through a rendering browser.
type ContentRenderer interface {
	Render(ctx context.Context, articleURL string) ([]byte, error)
}

// ContentExtractor pulls the main article body out of page HTML.
type ContentExtractor interface {
	Extract(html []byte, pageURL string) (*extract.Result, error)
}

// Analyzer produces the structured analysis for an article. Implementations
// own their retry, timeout, and circuit-breaker behavior; a returned error
// means the attempt chain is exhausted.
type Analyzer interface {
	Analyze(ctx context.Context, title, content string) (*entity.ArticleAnalysis, error)
}

// Embedder turns search text into a fixed-width vector.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// ContentStore persists extracted article text and returns the object key.
type ContentStore interface {
	UploadArticleText(ctx context.Context, articleID int64, publishDate *time.Time, content string) (string, error)
}

// TrickyChecker reports hosts that never yield to a plain GET and must go
// straight to the rendered fetch.
type TrickyChecker interface {
	IsTricky(host string) bool
}

// Service is the enrichment worker. One ProcessArticles call handles one
// consumed batch end to end; the caller decides whether the batch is acked
// based on the returned error.
type Service struct {
	Articles  repository.ArticleRepository
	Fetcher   ContentFetcher
	Renderer  ContentRenderer
	Extractor ContentExtractor
	Analyzer  Analyzer
	Embedder  Embedder
	Blobs     ContentStore
	Policy    TrickyChecker
	Sleeper   sleeper.Sleeper
	Limits    domainlimit.Config
}

// NewService creates an enrichment Service with the provided dependencies.
// Limits configures the politeness limiter for the scrape step; the
// sleeper receives every politeness and backoff wait the service takes.
func NewService(
	articles repository.ArticleRepository,
	fetcher ContentFetcher,
	renderer ContentRenderer,
	extractor ContentExtractor,
	analyzer Analyzer,
	embedder Embedder,
	blobs ContentStore,
	policy TrickyChecker,
	s sleeper.Sleeper,
	limits domainlimit.Config,
) Service {
	return Service{
		Articles:  articles,
		Fetcher:   fetcher,
		Renderer:  renderer,
		Extractor: extractor,
		Analyzer:  analyzer,
		Embedder:  embedder,
		Blobs:     blobs,
		Policy:    policy,
		Sleeper:   s,
		Limits:    limits,
	}
}

// Stats summarizes one batch run.
type Stats struct {
	Candidates  int   // ids handed in from the bus
	Processable int   // rows that survived the freshness filter
	Scraped     int64 // articles whose content fetch succeeded
	Processed   int64 // articles committed as PROCESSED
	Failed      int64 // articles stamped with a terminal failure
	Duration    time.Duration
}

// ProcessArticles runs the pipeline over a batch of candidate article ids.
//
// Ids that are already terminal, carry a fail reason, or fall outside the
// freshness window are skipped silently, which makes redelivery of a
// partially handled batch a cheap no-op. Per-article failures stamp the
// row and continue; an error is returned only for batch-level problems
// (repository access, context cancellation), in which case the caller
// should leave the batch unacked for redelivery.
func (s *Service) ProcessArticles(ctx context.Context, ids []int64) (*Stats, error) {
	logger := logging.FromContext(ctx)
	start := time.Now()
	stats := &Stats{Candidates: len(ids)}

	if len(ids) == 0 {
		stats.Duration = time.Since(start)
		return stats, nil
	}

	cutoff := time.Now().Add(-ProcessableWindow)
	articles, err := s.Articles.ListProcessable(ctx, ids, cutoff)
	if err != nil {
		return stats, fmt.Errorf("list processable articles: %w", err)
	}
	stats.Processable = len(articles)
	metrics.RecordBatchSize(len(articles))

	if len(articles) == 0 {
		logger.Info("no processable articles in batch",
			slog.Int("candidates", stats.Candidates))
		stats.Duration = time.Since(start)
		return stats, nil
	}

	scrapedItems, err := s.scrapeBatch(ctx, articles, stats)
	if err != nil {
		return stats, err
	}

	sem := make(chan struct{}, analysisParallelism)
	eg, egCtx := errgroup.WithContext(ctx)

	for _, item := range scrapedItems {
		it := item
		eg.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()
			return s.enrichOne(egCtx, it, stats)
		})
	}
	if err := eg.Wait(); err != nil {
		return stats, err
	}

	stats.Duration = time.Since(start)
	slo.UpdateBatchDuration(stats.Duration)
	slo.UpdateEnrichmentSuccess(float64(atomic.LoadInt64(&stats.Processed)) / float64(stats.Processable))
	logger.Info("article batch enriched",
		slog.Int("candidates", stats.Candidates),
		slog.Int("processable", stats.Processable),
		slog.Int64("scraped", atomic.LoadInt64(&stats.Scraped)),
		slog.Int64("processed", atomic.LoadInt64(&stats.Processed)),
		slog.Int64("failed", atomic.LoadInt64(&stats.Failed)),
		slog.Duration("duration", stats.Duration),
	)
	return stats, nil
}

// enrichOne takes one scraped article through analysis, embedding, upload,
// and commit. Exhausted step failures stamp the row and return nil so the
// rest of the batch keeps going; repository write errors and cancellation
// propagate and fail the batch.
func (s *Service) enrichOne(ctx context.Context, item scraped, stats *Stats) error {
	logger := logging.FromContext(ctx)
	article := item.article

	analysisStart := time.Now()
	analysis, err := s.Analyzer.Analyze(ctx, article.Title, item.text)
	metrics.RecordPipelineStep("analyze", time.Since(analysisStart))
	if err != nil {
		// The analyzer wraps its own timeout, so its error alone cannot
		// distinguish a slow API from a worker shutdown; the batch context
		// can.
		if ctx.Err() != nil {
			return err
		}
		logger.Warn("article analysis failed",
			slog.Int64("article_id", article.ID),
			slog.String("url", article.URL),
			slog.Any("error", err))
		return s.failArticle(ctx, article, entity.StatusAnalysisFailed, err.Error(), stats)
	}
	article.Analysis = analysis

	searchText := BuildSearchText(article.Title, analysis)

	var (
		embedding []float32
		blobKey   string
		embedErr  error
		uploadErr error
	)

	// Embed and upload run in parallel and both run to completion; a
	// half-finished sibling would leave nothing useful behind either way.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		start := time.Now()
		embedErr = retry.WithBackoffSleep(ctx, retry.EmbeddingConfig(), s.Sleeper, "retry-backoff:embed-article", func() error {
			var err error
			embedding, err = s.Embedder.EmbedOne(ctx, searchText)
			return err
		})
		metrics.RecordPipelineStep("embed", time.Since(start))
	}()
	go func() {
		defer wg.Done()
		start := time.Now()
		uploadErr = retry.WithBackoffSleep(ctx, retry.BlobConfig(), s.Sleeper, "retry-backoff:upload-blob", func() error {
			var err error
			blobKey, err = s.Blobs.UploadArticleText(ctx, article.ID, article.PublishDate, item.text)
			return err
		})
		metrics.RecordPipelineStep("upload", time.Since(start))
	}()
	wg.Wait()

	if ctx.Err() != nil && (embedErr != nil || uploadErr != nil) {
		if embedErr != nil {
			return embedErr
		}
		return uploadErr
	}
	if embedErr != nil {
		logger.Warn("article embedding failed",
			slog.Int64("article_id", article.ID),
			slog.Any("error", embedErr))
		return s.failArticle(ctx, article, entity.StatusEmbeddingFailed, embedErr.Error(), stats)
	}
	if uploadErr != nil {
		logger.Warn("article text upload failed",
			slog.Int64("article_id", article.ID),
			slog.Any("error", uploadErr))
		return s.failArticle(ctx, article, entity.StatusBlobUploadFailed, uploadErr.Error(), stats)
	}

	now := time.Now()
	article.Embedding = embedding
	article.ContentFileKey = blobKey
	article.Status = entity.StatusProcessed
	article.ProcessedAt = &now

	commitStart := time.Now()
	if err := s.Articles.CommitProcessed(context.WithoutCancel(ctx), article); err != nil {
		return fmt.Errorf("commit article %d: %w", article.ID, err)
	}
	metrics.RecordPipelineStep("commit", time.Since(commitStart))

	atomic.AddInt64(&stats.Processed, 1)
	metrics.RecordArticleOutcome(string(entity.StatusProcessed))
	logger.Info("article enriched",
		slog.Int64("article_id", article.ID),
		slog.String("content_file_key", blobKey),
		slog.Bool("used_browser", article.UsedBrowser))
	return nil
}

// failArticle stamps a terminal failure on the row. The write survives
// cancellation so an article that genuinely failed is never silently
// requeued; a failed write bubbles up to the caller.
func (s *Service) failArticle(ctx context.Context, article *entity.Article, status entity.ArticleStatus, reason string, stats *Stats) error {
	if err := s.Articles.MarkFailed(context.WithoutCancel(ctx), article.ID, status, reason, time.Now()); err != nil {
		slog.Warn("failed to stamp terminal article status",
			slog.Int64("article_id", article.ID),
			slog.String("status", string(status)),
			slog.Any("error", err))
		return fmt.Errorf("mark article %d %s: %w", article.ID, status, err)
	}
	atomic.AddInt64(&stats.Failed, 1)
	metrics.RecordArticleOutcome(string(status))
	return nil
}
