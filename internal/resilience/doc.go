// Package resilience groups the fault tolerance building blocks the
// pipeline leans on when an upstream misbehaves.
//
// Two subpackages:
//   - circuitbreaker: gobreaker-backed breakers around every external
//     dependency (feed hosts, the renderer, Claude, OpenAI, the
//     embeddings service, Postgres)
//   - retry: exponential backoff with jitter, with per-step budgets
//     tuned to how each pipeline stage fails
//
// Usage:
//
//	cb := circuitbreaker.New(circuitbreaker.FeedFetchConfig())
//	result, err := cb.Execute(func() (interface{}, error) {
//	    return fetchFeed(ctx, url)
//	})
//
//	err := retry.WithBackoff(ctx, retry.ScrapeStepConfig(), func() error {
//	    return scrape(ctx, articleURL)
//	})
//
// Breakers answer "stop calling something that is down"; retry answers
// "this call is worth a second attempt". Pipeline steps stack them with
// the breaker innermost, so once it trips the remaining attempts fail
// immediately instead of hammering the upstream.
package resilience
