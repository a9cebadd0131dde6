package feed

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"newsriver/internal/domain/entity"
	"newsriver/internal/resilience/circuitbreaker"
	"newsriver/internal/resilience/retry"

	"github.com/sony/gobreaker"
)

const (
	fetcherUserAgent = "NewsRiverBot/1.0 (+feed-harvester)"

	defaultFetchTimeout = 30 * time.Second
	maxFeedBody         = 16 * 1024 * 1024
)

// Fetcher retrieves raw feed documents over HTTP. Retries are owned by the
// calling tick; the fetcher contributes the circuit breaker and tags its
// failures so the caller can classify them.
//
// Thread safety: Fetcher is safe for concurrent use.
type Fetcher struct {
	client         *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	timeout        time.Duration
}

// NewFetcher creates a feed fetcher with the shared feed-fetch breaker.
// A nil client gets a pooled default with TLS 1.2+ enforced.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{
			Timeout: defaultFetchTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
			},
		}
	}
	return &Fetcher{
		client:         client,
		circuitBreaker: circuitbreaker.New(circuitbreaker.FeedFetchConfig()),
		timeout:        defaultFetchTimeout,
	}
}

// Fetch retrieves the raw feed document at feedURL. Transport failures and
// non-2xx statuses come back tagged FETCH_ERROR; an open circuit is
// returned untagged so the caller fails fast instead of retrying.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) ([]byte, error) {
	result, err := f.circuitBreaker.Execute(func() (interface{}, error) {
		return f.doFetch(ctx, feedURL)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			slog.Warn("feed fetch rejected, circuit open",
				slog.String("url", feedURL),
				slog.String("state", f.circuitBreaker.State().String()))
			return nil, err
		}
		return nil, entity.NewPipelineError(entity.KindFetchError, "feed.Fetch", err)
	}
	return result.([]byte), nil
}

// doFetch performs the actual HTTP request without the circuit breaker.
func (f *Fetcher) doFetch(ctx context.Context, feedURL string) (interface{}, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("User-Agent", fetcherUserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &retry.HTTPError{StatusCode: resp.StatusCode, Message: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBody+1))
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}
	if len(body) > maxFeedBody {
		return nil, fmt.Errorf("feed body exceeds %d bytes", maxFeedBody)
	}

	return body, nil
}
