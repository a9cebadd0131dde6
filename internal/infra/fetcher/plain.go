package fetcher

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"newsriver/internal/domain/entity"
	"newsriver/internal/resilience/circuitbreaker"
	"newsriver/internal/resilience/retry"

	"github.com/sony/gobreaker"
)

// PlainFetcher implements the fetch strategy: a direct HTTP GET that
// presents itself as a mobile browser arriving from a Google search.
// It returns the raw page HTML; content extraction is the extract
// package's job.
//
// Features:
//   - SSRF prevention via URL validation, re-checked on every redirect
//   - Circuit breaker for fault tolerance
//   - Size limiting to prevent memory exhaustion
//   - PDF detection so the pipeline can skip instead of parse
//
// Thread safety: PlainFetcher is safe for concurrent use.
type PlainFetcher struct {
	client         *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	config         Config
}

// NewPlainFetcher creates a plain fetcher from config. The HTTP client
// enforces TLS 1.2+, the configured timeout, and per-redirect SSRF
// validation.
func NewPlainFetcher(config Config) *PlainFetcher {
	cbConfig := circuitbreaker.Config{
		Name:             "plain-fetch",
		MaxRequests:      5,
		Interval:         60 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
		// A PDF response is a property of the article, not a fault of
		// the upstream; caller cancellation is a property of us. Neither
		// should push the breaker toward open.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, entity.ErrPDFContent) ||
				errors.Is(err, context.Canceled)
		},
	}

	fetcher := &PlainFetcher{
		circuitBreaker: circuitbreaker.New(cbConfig),
		config:         config,
	}

	client := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= fetcher.config.MaxRedirects {
				return fmt.Errorf("%w: %d redirects", ErrTooManyRedirects, len(via))
			}
			if err := validateURL(req.URL.String(), fetcher.config.DenyPrivateIPs); err != nil {
				return fmt.Errorf("redirect target validation failed: %w", err)
			}
			return nil
		},
	}

	fetcher.client = client
	return fetcher
}

// Fetch retrieves the raw page at articleURL. Transport failures and
// non-2xx statuses come back tagged FETCH_ERROR; a PDF response surfaces
// the permanent-skip sentinel; an open circuit is returned untagged so
// callers fail fast.
func (f *PlainFetcher) Fetch(ctx context.Context, articleURL string) ([]byte, error) {
	if err := validateURL(articleURL, f.config.DenyPrivateIPs); err != nil {
		return nil, entity.NewPipelineError(entity.KindFetchError, "fetcher.Plain", err)
	}

	result, err := f.circuitBreaker.Execute(func() (interface{}, error) {
		return f.doFetch(ctx, articleURL)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			slog.Warn("plain fetch rejected, circuit open",
				slog.String("url", articleURL),
				slog.String("state", f.circuitBreaker.State().String()))
			return nil, err
		}
		if errors.Is(err, entity.ErrPDFContent) {
			return nil, err
		}
		return nil, entity.NewPipelineError(entity.KindFetchError, "fetcher.Plain", err)
	}

	return result.([]byte), nil
}

// doFetch performs the actual HTTP request without the circuit breaker.
func (f *PlainFetcher) doFetch(ctx context.Context, articleURL string) (interface{}, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, articleURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrInvalidURL, err)
	}

	req.Header.Set("User-Agent", pickUserAgent(f.config.UserAgents))
	req.Header.Set("Referer", "https://www.google.com/")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("request exceeded %v: %w", f.config.Timeout, context.DeadlineExceeded)
		}
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Err != nil {
			return nil, urlErr.Err
		}
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &retry.HTTPError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("unexpected status: %s", resp.Status),
		}
	}

	if isPDFResponse(resp.Header.Get("Content-Type")) {
		return nil, fmt.Errorf("content type %q: %w", resp.Header.Get("Content-Type"), entity.ErrPDFContent)
	}

	limitedReader := io.LimitReader(resp.Body, f.config.MaxBodySize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > f.config.MaxBodySize {
		return nil, fmt.Errorf("%w: response exceeds %d bytes", ErrBodyTooLarge, f.config.MaxBodySize)
	}

	return body, nil
}

// isPDFResponse reports whether the Content-Type header names a PDF.
func isPDFResponse(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}
	return strings.EqualFold(strings.TrimSpace(mediaType), "application/pdf")
}
