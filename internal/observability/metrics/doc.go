// Package metrics provides Prometheus metrics registry and recording utilities.
//
// This package centralizes all application metrics including:
//   - HTTP request metrics (duration, count, size)
//   - Scraper metrics (tick outcomes, feed entries, active instances)
//   - Pipeline metrics (step durations, article outcomes, limiter sleeps)
//   - Database query metrics
//
// All metrics are automatically registered with the Prometheus default registry
// and exposed via the /metrics endpoint.
//
// Example usage:
//
//	import "newsriver/internal/observability/metrics"
//
//	func tick(sourceID int64) {
//	    start := time.Now()
//	    // ... poll the feed ...
//
//	    metrics.RecordTick(sourceID, "success", time.Since(start))
//	    metrics.RecordFeedEntries(sourceID, seen, inserted)
//	}
package metrics
