package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"newsriver/internal/domain/entity"
	"newsriver/internal/infra/extract"
	"newsriver/internal/observability/logging"
	"newsriver/internal/observability/metrics"
	"newsriver/internal/resilience/retry"
	"newsriver/pkg/domainlimit"
)

// scrapeTimeout bounds the whole attempt chain for one article, politeness
// jitter and backoff included.
const scrapeTimeout = 2 * time.Minute

// Jitter slept between a failed plain fetch and the rendered fallback, so
// the second hit on the same host does not look mechanical.
const (
	strategyJitterMin  = 500 * time.Millisecond
	strategyJitterSpan = 2500 * time.Millisecond
)

const pdfFailReason = "PDF article - cannot process"

// scraped pairs an article with its extracted text, ready for analysis.
type scraped struct {
	article *entity.Article
	text    string
}

// scrapeBatch fetches article content for the whole batch under the
// politeness limiter. Articles whose scrape ends in a terminal status are
// stamped inside the work function and drop out of the result.
//
// The limiter's host map is confined to this one batch, so a fresh
// limiter per call keeps it race-free.
func (s *Service) scrapeBatch(ctx context.Context, articles []*entity.Article, stats *Stats) ([]scraped, error) {
	byID := make(map[int64]*entity.Article, len(articles))
	items := make([]domainlimit.Item, 0, len(articles))
	for _, article := range articles {
		byID[article.ID] = article
		items = append(items, domainlimit.Item{ID: article.ID, URL: article.URL})
	}

	limiter := domainlimit.New(s.Limits)
	return domainlimit.ProcessBatch(ctx, limiter, items, s.Sleeper,
		func(ctx context.Context, item domainlimit.Item, host string) (scraped, error) {
			return s.scrapeOne(ctx, byID[item.ID], host, stats)
		})
}

// scrapeOne runs the full scrape step for one article: PDF short-circuit,
// strategy attempts under retry, then the CONTENT_FETCHED mark. A returned
// error drops the article from the batch; terminal stamping has already
// happened here for everything except cancellation and mark-write races.
func (s *Service) scrapeOne(ctx context.Context, article *entity.Article, host string, stats *Stats) (scraped, error) {
	logger := logging.FromContext(ctx)

	if isPDFURL(article.URL) {
		if err := s.failArticle(ctx, article, entity.StatusSkippedPDF, pdfFailReason, stats); err != nil {
			return scraped{}, err
		}
		logger.Info("article skipped, PDF target",
			slog.Int64("article_id", article.ID),
			slog.String("url", article.URL))
		return scraped{}, fmt.Errorf("article %d: %w", article.ID, entity.ErrPDFContent)
	}

	scrapeCtx, cancel := context.WithTimeout(ctx, scrapeTimeout)
	defer cancel()

	var (
		result      *extract.Result
		usedBrowser bool
	)
	start := time.Now()
	err := retry.WithBackoffSleep(scrapeCtx, retry.ScrapeStepConfig(), s.Sleeper, "retry-backoff:scrape-article", func() error {
		var attemptErr error
		result, usedBrowser, attemptErr = s.scrapeAttempt(scrapeCtx, article.URL, host)
		return attemptErr
	})
	metrics.RecordPipelineStep("scrape", time.Since(start))

	if err != nil {
		// Only the batch context tells a worker shutdown apart from this
		// article's own timeout; the latter is a real fetch failure.
		if ctx.Err() != nil {
			return scraped{}, fmt.Errorf("scrape article %d: %w", article.ID, err)
		}
		status, reason := classifyScrapeFailure(err)
		logger.Warn("article scrape failed",
			slog.Int64("article_id", article.ID),
			slog.String("url", article.URL),
			slog.String("status", string(status)),
			slog.Any("error", err))
		if markErr := s.failArticle(ctx, article, status, reason, stats); markErr != nil {
			return scraped{}, markErr
		}
		return scraped{}, fmt.Errorf("scrape article %d: %w", article.ID, err)
	}

	// Backfill the publish date from page metadata when the feed had none,
	// mirroring the COALESCE the repository applies to the row.
	if article.PublishDate == nil {
		article.PublishDate = result.PublishedAt
	}

	if err := s.Articles.MarkContentFetched(context.WithoutCancel(ctx), article.ID, usedBrowser, result.PublishedAt); err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			logger.Info("article already finalized elsewhere, dropping",
				slog.Int64("article_id", article.ID))
		} else {
			logger.Warn("failed to record fetched content, leaving article for requeue",
				slog.Int64("article_id", article.ID),
				slog.Any("error", err))
		}
		return scraped{}, fmt.Errorf("mark article %d content fetched: %w", article.ID, err)
	}
	article.Status = entity.StatusContentFetched
	article.UsedBrowser = usedBrowser

	atomic.AddInt64(&stats.Scraped, 1)
	logger.Debug("article content fetched",
		slog.Int64("article_id", article.ID),
		slog.Bool("used_browser", usedBrowser),
		slog.Int("content_chars", len(result.Text)))
	return scraped{article: article, text: result.Text}, nil
}

// scrapeAttempt is one pass of the fetch strategy. Tricky hosts go
// straight to the rendering browser; everything else tries a plain GET
// first and falls back to the browser after a short jitter when the plain
// route yields no usable article. The bool reports which route produced
// the result.
func (s *Service) scrapeAttempt(ctx context.Context, articleURL, host string) (*extract.Result, bool, error) {
	if !s.Policy.IsTricky(host) {
		body, err := s.Fetcher.Fetch(ctx, articleURL)
		if err == nil {
			result, exErr := s.Extractor.Extract(body, articleURL)
			if exErr == nil {
				return result, false, nil
			}
			err = exErr
		}
		if errors.Is(err, entity.ErrPDFContent) {
			return nil, false, err
		}
		logging.FromContext(ctx).Debug("plain fetch yielded no article, trying rendered",
			slog.String("url", articleURL),
			slog.Any("error", err))
		if sleepErr := s.Sleeper.Sleep(ctx, "strategy-jitter", jitterDelay()); sleepErr != nil {
			return nil, false, sleepErr
		}
	}

	body, err := s.Renderer.Render(ctx, articleURL)
	if err != nil {
		return nil, true, err
	}
	result, err := s.Extractor.Extract(body, articleURL)
	if err != nil {
		return nil, true, err
	}
	return result, true, nil
}

// classifyScrapeFailure maps an exhausted scrape error to the terminal
// status and fail reason written to the row.
func classifyScrapeFailure(err error) (entity.ArticleStatus, string) {
	if errors.Is(err, entity.ErrPDFContent) {
		return entity.StatusSkippedPDF, pdfFailReason
	}
	if strings.Contains(strings.ToLower(err.Error()), "render") {
		return entity.StatusRenderFailed, err.Error()
	}
	return entity.StatusFetchFailed, err.Error()
}

// isPDFURL reports whether the URL path targets a PDF document.
func isPDFURL(articleURL string) bool {
	parsed, err := url.Parse(articleURL)
	if err != nil {
		return strings.HasSuffix(strings.ToLower(articleURL), ".pdf")
	}
	return strings.HasSuffix(strings.ToLower(parsed.Path), ".pdf")
}

func jitterDelay() time.Duration {
	// #nosec G404 -- politeness jitter does not need cryptographic randomness
	return strategyJitterMin + time.Duration(rand.Int63n(int64(strategyJitterSpan)+1))
}
