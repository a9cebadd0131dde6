package metrics

import (
	"fmt"
	"time"
)

// RecordTick records the result of one scrape cycle for a source.
// Outcome should be one of "success", "fetch_failed", "parse_failed",
// "insert_failed", "publish_failed", "state_write_failed", or
// "corrupt_state".
func RecordTick(sourceID int64, outcome string, duration time.Duration) {
	ScraperTicksTotal.WithLabelValues(
		fmt.Sprintf("%d", sourceID),
		outcome,
	).Inc()
	ScraperTickDuration.WithLabelValues(
		fmt.Sprintf("%d", sourceID),
	).Observe(duration.Seconds())
}

// RecordFeedEntries records how many entries a feed poll produced and how
// many survived URL deduplication into new article rows.
func RecordFeedEntries(sourceID int64, seen, inserted int) {
	id := fmt.Sprintf("%d", sourceID)
	if seen > 0 {
		FeedEntriesTotal.WithLabelValues(id, "seen").Add(float64(seen))
	}
	if inserted > 0 {
		FeedEntriesTotal.WithLabelValues(id, "inserted").Add(float64(inserted))
	}
}

// UpdateActiveScrapers updates the count of running scraper instances.
// This gauge should be updated whenever the scheduler adds or removes one.
func UpdateActiveScrapers(count int) {
	ScrapersActive.Set(float64(count))
}

// RecordPipelineStep records the duration of one enrichment step.
// Step should name the stage (e.g. "scrape", "analyze", "embed", "upload").
func RecordPipelineStep(step string, duration time.Duration) {
	PipelineStepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordArticleOutcome records an article reaching a terminal status.
// Status should be an article status value (e.g. "PROCESSED", "FETCH_FAILED").
func RecordArticleOutcome(status string) {
	ArticlesProcessedTotal.WithLabelValues(status).Inc()
}

// RecordBatchSize records the number of processable articles in a consumed batch.
func RecordBatchSize(count int) {
	PipelineBatchSize.Observe(float64(count))
}

// RecordLimiterSleep records a politeness or backoff sleep.
// Reason should name the wait (e.g. "domain_rate", "politeness_jitter",
// "retry_backoff", "redelivery_backoff"). Most callers get this for free
// by wrapping their sleeper with InstrumentSleeper.
func RecordLimiterSleep(reason string, duration time.Duration) {
	LimiterSleepsTotal.WithLabelValues(reason).Inc()
	LimiterSleepSeconds.WithLabelValues(reason).Add(duration.Seconds())
}

// RecordDBQuery records the duration of a database query operation.
// Operation should describe the query type (e.g., "select_articles", "insert_article").
func RecordDBQuery(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateDBConnectionStats updates database connection pool statistics.
func UpdateDBConnectionStats(active, idle int) {
	DBConnectionsActive.Set(float64(active))
	DBConnectionsIdle.Set(float64(idle))
}
