// Package embed is the client for the external embeddings microservice.
// The service accepts a batch of texts and returns one fixed-width vector
// per text; the client enforces the schema dimension on every response so
// a misconfigured model upstream cannot reach the vector column.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"newsriver/internal/domain/entity"
	"newsriver/internal/resilience/circuitbreaker"
	"newsriver/internal/resilience/retry"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const maxEmbedBody = 8 * 1024 * 1024

// Config holds the settings for the embeddings-service client.
type Config struct {
	// BaseURL is the embeddings service API root, without a trailing slash.
	BaseURL string

	// APIToken is sent as X-API-Token on every request.
	APIToken string

	// Timeout is the maximum duration for one embeddings request.
	// Default: 30s
	Timeout time.Duration

	// RequestsPerSecond smooths calls to the service across the parallel
	// per-article embedding fan-out. Zero disables smoothing.
	// Default: 10
	RequestsPerSecond float64
}

// DefaultConfig returns production defaults for the embeddings client.
func DefaultConfig() Config {
	return Config{
		Timeout:           30 * time.Second,
		RequestsPerSecond: 10,
	}
}

// LoadConfigFromEnv loads embeddings-client settings from environment
// variables. BaseURL and APIToken are required.
//
// Environment variables:
//   - EMBEDDINGS_API_BASE_URL: service root, e.g. "https://embeddings.internal"
//   - EMBEDDINGS_API_TOKEN: shared token sent as X-API-Token
//   - EMBEDDINGS_TIMEOUT: duration string (default: 30s)
//   - EMBEDDINGS_REQUESTS_PER_SECOND: float (default: 10)
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	cfg.BaseURL = strings.TrimRight(os.Getenv("EMBEDDINGS_API_BASE_URL"), "/")
	cfg.APIToken = os.Getenv("EMBEDDINGS_API_TOKEN")

	if cfg.BaseURL == "" {
		return cfg, errors.New("EMBEDDINGS_API_BASE_URL is required")
	}
	if cfg.APIToken == "" {
		return cfg, errors.New("EMBEDDINGS_API_TOKEN is required")
	}

	if val := os.Getenv("EMBEDDINGS_TIMEOUT"); val != "" {
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return cfg, fmt.Errorf("invalid EMBEDDINGS_TIMEOUT: %v", err)
		}
		cfg.Timeout = parsed
	}

	if val := os.Getenv("EMBEDDINGS_REQUESTS_PER_SECOND"); val != "" {
		var parsed float64
		if _, err := fmt.Sscanf(val, "%f", &parsed); err != nil {
			return cfg, fmt.Errorf("invalid EMBEDDINGS_REQUESTS_PER_SECOND: %v", err)
		}
		cfg.RequestsPerSecond = parsed
	}

	return cfg, nil
}

// Client calls the embeddings service. Retries belong to the caller; the
// client contributes request smoothing and a circuit breaker, the same
// split the rendering client uses.
//
// Thread safety: Client is safe for concurrent use.
type Client struct {
	client         *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	limiter        *rate.Limiter
	config         Config
}

// NewClient creates an embeddings client from config.
func NewClient(config Config) *Client {
	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}

	return &Client{
		client: &http.Client{
			Timeout: config.Timeout,
		},
		circuitBreaker: circuitbreaker.New(circuitbreaker.EmbeddingServiceConfig()),
		limiter:        rate.NewLimiter(limit, 1),
		config:         config,
	}
}

// embedRequest is the embeddings service request body.
type embedRequest struct {
	Texts []string `json:"texts"`
}

// embedResponse is the embeddings service response body.
type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed returns one vector per input text, in input order. Failures are
// tagged: transport and non-2xx are FETCH_ERROR, a non-JSON response is
// PARSE_ERROR, and a response with the wrong vector count or width is
// VALIDATION_ERROR.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return c.doEmbed(ctx, texts)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			slog.Warn("embed rejected, circuit open",
				slog.Int("texts", len(texts)),
				slog.String("state", c.circuitBreaker.State().String()))
			return nil, err
		}
		var pipeErr *entity.PipelineError
		if errors.As(err, &pipeErr) {
			return nil, err
		}
		return nil, entity.NewPipelineError(entity.KindFetchError, "embed.Embed", err)
	}

	return result.([][]float32), nil
}

// EmbedOne embeds a single text and returns its vector.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// doEmbed performs one embeddings request without the circuit breaker.
func (c *Client) doEmbed(ctx context.Context, texts []string) (interface{}, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	body, err := json.Marshal(embedRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.config.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Token", c.config.APIToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxEmbedBody))
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &retry.HTTPError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("embeddings service status: %s", resp.Status),
		}
	}

	var decoded embedResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, entity.NewPipelineError(entity.KindParseError, "embed.Embed",
			fmt.Errorf("response is not JSON: %w", err))
	}

	if len(decoded.Embeddings) != len(texts) {
		return nil, entity.NewPipelineError(entity.KindValidationError, "embed.Embed",
			fmt.Errorf("expected %d vectors, got %d", len(texts), len(decoded.Embeddings)))
	}
	for i, vector := range decoded.Embeddings {
		if len(vector) != entity.EmbeddingDim {
			return nil, entity.NewPipelineError(entity.KindValidationError, "embed.Embed",
				fmt.Errorf("vector %d has dimension %d, want %d", i, len(vector), entity.EmbeddingDim))
		}
	}

	return decoded.Embeddings, nil
}

// Ping checks that the embeddings service is reachable. Used by the
// worker's readiness probe.
func (c *Client) Ping(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.config.BaseURL+"/ping", nil)
	if err != nil {
		return fmt.Errorf("build ping request: %w", err)
	}
	req.Header.Set("X-API-Token", c.config.APIToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("embeddings service unreachable: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("embeddings service ping status: %s", resp.Status)
	}
	return nil
}
