package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"newsriver/internal/observability/logging"
)

const (
	// maxDeliveryAttempts bounds how many times a single alert is posted to a
	// provider before it is given up on. Alerting must never hold a worker
	// slot for long, so the budget is deliberately small.
	maxDeliveryAttempts = 2

	// defaultRetryDelay spaces delivery attempts when the provider does not
	// say how long to back off.
	defaultRetryDelay = 5 * time.Second
)

// RateLimitError is returned for a 429 response. RetryAfter carries the
// backoff the provider asked for.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (retry after %v)", e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded (retry after %v)", e.RetryAfter)
}

// ClientError is returned when the provider rejects the request outright
// (4xx other than 429), typically a revoked webhook URL or a malformed
// payload. Sending the same alert again cannot succeed.
type ClientError struct {
	StatusCode int
	Message    string
}

func (e *ClientError) Error() string {
	return e.Message
}

// ServerError is returned for a 5xx response. The provider is having a bad
// moment and a later attempt may go through.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return e.Message
}

// isRetryableError reports whether another delivery attempt could help.
// Rate limits, server errors and transport failures are worth retrying.
// A ClientError is definitive and is the only case that is not.
func isRetryableError(err error) bool {
	var clientErr *ClientError
	return !errors.As(err, &clientErr)
}

// retryBackoff picks how long to wait before the next attempt. A 429
// response carries the provider's own retry_after, which takes precedence.
// Anything else backs off on the base delay scaled by the attempt number.
func retryBackoff(err error, attempt int, base time.Duration) time.Duration {
	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) && rateLimitErr.RetryAfter > 0 {
		return rateLimitErr.RetryAfter
	}
	return base * time.Duration(attempt)
}

// retryAfterHint reads how long a 429 response asks us to back off. Discord
// reports a retry_after field with sub-second precision in the JSON body;
// the Retry-After header is the standard fallback. Responses carrying
// neither get defaultRetryDelay.
func retryAfterHint(resp *http.Response, body []byte) time.Duration {
	var hint struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if err := json.Unmarshal(body, &hint); err == nil && hint.RetryAfter > 0 {
		return time.Duration(hint.RetryAfter * float64(time.Second))
	}

	if v := resp.Header.Get("Retry-After"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}

	return defaultRetryDelay
}

// postWebhook marshals payload and POSTs it to the provider's webhook URL,
// classifying the response into the package error types so the retry loop
// can decide what to do with it.
func postWebhook(ctx context.Context, client *http.Client, url, provider string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// The body explains failures and is small either way.
	body, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{
			Message:    provider + " rate limit exceeded",
			RetryAfter: retryAfterHint(resp, body),
		}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &ClientError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s webhook rejected the alert: %s", provider, body),
		}
	case resp.StatusCode >= 500:
		return &ServerError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s webhook unavailable: %s", provider, body),
		}
	default:
		return fmt.Errorf("unexpected status %d from %s webhook: %s", resp.StatusCode, provider, body)
	}
}

// deliverWithRetry runs send up to maxDeliveryAttempts times. Between
// attempts it waits out the provider's retry_after on a 429 or a scaled
// baseDelay otherwise, and it stops early when send returns a ClientError or
// the context ends. Attempts are logged through the context logger, so lines
// land with whatever correlation fields the caller attached.
func deliverWithRetry(ctx context.Context, provider string, alert *Alert, baseDelay time.Duration, send func(context.Context, *Alert) error) error {
	logger := logging.FromContext(ctx).With(
		slog.String("provider", provider),
		slog.String("component", alert.Component))

	var lastErr error
	for attempt := 1; attempt <= maxDeliveryAttempts; attempt++ {
		err := send(ctx, alert)
		if err == nil {
			logger.Info("alert delivered",
				slog.String("severity", string(alert.Severity)),
				slog.Int("attempt", attempt))
			return nil
		}
		lastErr = err

		if !isRetryableError(err) {
			logger.Error("alert delivery rejected, not retrying",
				slog.Any("error", err),
				slog.Int("attempt", attempt))
			return err
		}

		if attempt == maxDeliveryAttempts {
			break
		}

		delay := retryBackoff(err, attempt, baseDelay)
		logger.Warn("alert delivery failed, retrying",
			slog.Any("error", err),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("wait before retry: %w", ctx.Err())
		}
	}

	logger.Error("alert delivery gave up",
		slog.Any("error", lastErr),
		slog.Int("attempts", maxDeliveryAttempts))
	return fmt.Errorf("%s alert failed after %d attempts: %w", provider, maxDeliveryAttempts, lastErr)
}

// truncateText shortens text to at most limit runes, appending suffix when it
// had to cut. Webhook character limits count code points, not bytes, and
// alert messages routinely quote Japanese article titles, so slicing by byte
// offset could split a rune and hand the provider invalid UTF-8.
func truncateText(text string, limit int, suffix string) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}

	keep := limit - utf8.RuneCountInString(suffix)
	if keep < 0 {
		keep = 0
	}

	return string([]rune(text)[:keep]) + suffix
}
