package fetcher

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

// contentSelector is what the renderer waits for before capturing HTML.
const contentSelector = "article, .article, .content, .post, #article, main"

const (
	selectorTimeoutMS = 5000
	gotoTimeoutMS     = 30000

	maxRenderedBody = 20 * 1024 * 1024
)

// RenderConfig holds the settings for the browser-rendering service
// client.
type RenderConfig struct {
	// BaseURL is the rendering service API root, without a trailing slash.
	BaseURL string

	// AccountID selects the rendering account in the request path.
	AccountID string

	// APIToken is sent as a bearer token on every request.
	APIToken string

	// Timeout is the maximum duration for one rendering request. Rendering
	// involves a real browser navigation, so this is much longer than a
	// plain fetch.
	// Default: 60s
	Timeout time.Duration

	// RequestsPerSecond smooths calls to the rendering service, which
	// meters per-second usage. Zero disables smoothing.
	// Default: 2
	RequestsPerSecond float64

	// UserAgents overrides the built-in mobile User-Agent pool when
	// non-empty.
	UserAgents []string
}

// DefaultRenderConfig returns production defaults for the renderer client.
func DefaultRenderConfig() RenderConfig {
	return RenderConfig{
		Timeout:           60 * time.Second,
		RequestsPerSecond: 2,
	}
}

// LoadRenderConfigFromEnv loads renderer settings from environment
// variables. BaseURL, AccountID, and APIToken are required.
//
// Environment variables:
//   - RENDER_API_BASE_URL: rendering service root, e.g. "https://api.cloudflare.com/client/v4"
//   - RENDER_ACCOUNT_ID: account segment of the request path
//   - RENDER_API_TOKEN: bearer token
//   - RENDER_TIMEOUT: duration string (default: 60s)
//   - RENDER_REQUESTS_PER_SECOND: float (default: 2)
func LoadRenderConfigFromEnv() (RenderConfig, error) {
	cfg := DefaultRenderConfig()

	cfg.BaseURL = strings.TrimRight(os.Getenv("RENDER_API_BASE_URL"), "/")
	cfg.AccountID = os.Getenv("RENDER_ACCOUNT_ID")
	cfg.APIToken = os.Getenv("RENDER_API_TOKEN")

	if cfg.BaseURL == "" {
		return cfg, errors.New("RENDER_API_BASE_URL is required")
	}
	if cfg.AccountID == "" {
		return cfg, errors.New("RENDER_ACCOUNT_ID is required")
	}
	if cfg.APIToken == "" {
		return cfg, errors.New("RENDER_API_TOKEN is required")
	}

	if val := os.Getenv("RENDER_TIMEOUT"); val != "" {
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return cfg, fmt.Errorf("invalid RENDER_TIMEOUT: %v", err)
		}
		cfg.Timeout = parsed
	}

	if val := os.Getenv("RENDER_REQUESTS_PER_SECOND"); val != "" {
		var parsed float64
		if _, err := fmt.Sscanf(val, "%f", &parsed); err != nil {
			return cfg, fmt.Errorf("invalid RENDER_REQUESTS_PER_SECOND: %v", err)
		}
		cfg.RequestsPerSecond = parsed
	}

	return cfg, nil
}

// Renderer implements the render strategy: it posts the article URL to an
// external headless-browser service that navigates the page, injects the
// cleanup scripts, waits for article content, and returns the final HTML.
//
// Thread safety: Renderer is safe for concurrent use.
type Renderer struct {
	client         *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	limiter        *rate.Limiter
	config         RenderConfig
}

// NewRenderer creates a rendering client from config.
func NewRenderer(config RenderConfig) *Renderer {
	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}

	return &Renderer{
		client: &http.Client{
			Timeout: config.Timeout,
		},
		circuitBreaker: circuitbreaker.New(circuitbreaker.RendererConfig()),
		limiter:        rate.NewLimiter(limit, 1),
		config:         config,
	}
}

// renderRequest is the rendering service request body.
type renderRequest struct {
	URL                 string            `json:"url"`
	UserAgent           string            `json:"userAgent"`
	GotoOptions         renderGotoOptions `json:"gotoOptions"`
	RejectResourceTypes []string          `json:"rejectResourceTypes"`
	AddScriptTag        []renderScriptTag `json:"addScriptTag"`
	WaitForSelector     renderWaitFor     `json:"waitForSelector"`
}

type renderGotoOptions struct {
	WaitUntil string `json:"waitUntil"`
	Timeout   int    `json:"timeout"`
}

type renderScriptTag struct {
	Content string `json:"content"`
}

type renderWaitFor struct {
	Selector string `json:"selector"`
	Timeout  int    `json:"timeout"`
}

// renderResponse is the rendering service response body.
type renderResponse struct {
	Status bool          `json:"status"`
	Errors []renderError `json:"errors"`
	Result string        `json:"result"`
}

type renderError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Render posts articleURL to the rendering service and returns the
// rendered page HTML. Failures are tagged: transport and non-2xx are
// FETCH_ERROR, a non-JSON response is PARSE_ERROR, and a response that
// decodes but reports failure or carries no HTML is VALIDATION_ERROR.
func (r *Renderer) Render(ctx context.Context, articleURL string) ([]byte, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := r.circuitBreaker.Execute(func() (interface{}, error) {
		return r.doRender(ctx, articleURL)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			slog.Warn("render rejected, circuit open",
				slog.String("url", articleURL),
				slog.String("state", r.circuitBreaker.State().String()))
			return nil, err
		}
		var pipeErr *entity.PipelineError
		if errors.As(err, &pipeErr) {
			return nil, err
		}
		return nil, entity.NewPipelineError(entity.KindFetchError, "fetcher.Render", err)
	}

	return result.([]byte), nil
}

// doRender performs one rendering request without the circuit breaker.
func (r *Renderer) doRender(ctx context.Context, articleURL string) (interface{}, error) {
	reqCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	scripts := make([]renderScriptTag, 0, len(cleanupScripts))
	for _, script := range cleanupScripts {
		scripts = append(scripts, renderScriptTag{Content: script})
	}

	payload := renderRequest{
		URL:       articleURL,
		UserAgent: pickUserAgent(r.config.UserAgents),
		GotoOptions: renderGotoOptions{
			WaitUntil: "networkidle0",
			Timeout:   gotoTimeoutMS,
		},
		RejectResourceTypes: []string{"image", "media", "font"},
		AddScriptTag:        scripts,
		WaitForSelector: renderWaitFor{
			Selector: contentSelector,
			Timeout:  selectorTimeoutMS,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal render request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/accounts/%s/browser-rendering/content", r.config.BaseURL, r.config.AccountID)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build render request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.config.APIToken)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxRenderedBody))
	if err != nil {
		return nil, fmt.Errorf("read render response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &retry.HTTPError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("render service status: %s", resp.Status),
		}
	}

	var decoded renderResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, entity.NewPipelineError(entity.KindParseError, "fetcher.Render",
			fmt.Errorf("response is not JSON: %w", err))
	}

	if !decoded.Status {
		return nil, entity.NewPipelineError(entity.KindValidationError, "fetcher.Render",
			fmt.Errorf("render failed: %s", joinRenderErrors(decoded.Errors)))
	}
	if strings.TrimSpace(decoded.Result) == "" {
		return nil, entity.NewPipelineError(entity.KindValidationError, "fetcher.Render",
			errors.New("render succeeded but returned no HTML"))
	}

	return []byte(decoded.Result), nil
}

func joinRenderErrors(errs []renderError) string {
	if len(errs) == 0 {
		return "no error detail"
	}
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, fmt.Sprintf("[%d] %s", e.Code, e.Message))
	}
	return strings.Join(parts, "; ")
}
