package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"newsriver/internal/domain/entity"
	"newsriver/internal/resilience/circuitbreaker"
	"newsriver/internal/resilience/retry"
	"newsriver/internal/utils/text"
)

// ClaudeConfig holds configuration parameters for the Claude analyzer.
// Configuration is loaded from environment variables with fallback to defaults.
type ClaudeConfig struct {
	// Model is the Claude API model identifier to use for analysis.
	// Loaded from ANALYZER_MODEL.
	Model string

	// MaxTokens is the maximum number of tokens for the API response.
	MaxTokens int

	// MaxContentChars is the maximum number of article characters (Unicode
	// runes) sent to the model; longer bodies are truncated.
	// Loaded from ANALYZER_MAX_CONTENT_CHARS.
	// Valid range: 1000-100000. Default: 20000.
	MaxContentChars int

	// Timeout bounds one Analyze call including all of its retries.
	Timeout time.Duration
}

// LoadClaudeConfig loads configuration from environment variables.
// It validates the content limit against its valid range (1000-100000);
// invalid values fall back to the default (20000) with a warning log.
//
// Environment variables:
//   - ANALYZER_MODEL: Model identifier override
//   - ANALYZER_MAX_CONTENT_CHARS: Article content limit (default: 20000)
//
// Returns ClaudeConfig with validated settings.
func LoadClaudeConfig() ClaudeConfig {
	const defaultContentChars = 20000

	contentChars := defaultContentChars

	if envLimit := os.Getenv("ANALYZER_MAX_CONTENT_CHARS"); envLimit != "" {
		parsed, err := strconv.Atoi(envLimit)
		if err != nil {
			slog.Warn("Invalid ANALYZER_MAX_CONTENT_CHARS format, using default",
				slog.String("value", envLimit),
				slog.Int("default", defaultContentChars),
				slog.String("error", err.Error()))
		} else if rangeErr := ValidateMaxContentChars(parsed); rangeErr != nil {
			slog.Warn("ANALYZER_MAX_CONTENT_CHARS out of valid range, using default",
				slog.Int("value", parsed),
				slog.Int("default", defaultContentChars),
				slog.String("error", rangeErr.Error()))
		} else {
			contentChars = parsed
		}
	}

	model := string(anthropic.ModelClaudeSonnet4_5_20250929)
	if envModel := os.Getenv("ANALYZER_MODEL"); envModel != "" {
		model = envModel
	}

	return ClaudeConfig{
		Model:           model,
		MaxTokens:       2048,
		MaxContentChars: contentChars,
		Timeout:         time.Minute,
	}
}

// Claude produces article analyses using Anthropic's Claude API.
// It includes circuit breaker and retry logic for improved reliability,
// with comprehensive observability through structured logging and metrics.
type Claude struct {
	client          anthropic.Client
	circuitBreaker  *circuitbreaker.CircuitBreaker
	retryConfig     retry.Config
	config          ClaudeConfig
	metricsRecorder AnalysisMetricsRecorder
}

// NewClaude creates a new Claude analyzer with the given API key.
// It automatically configures circuit breaker, retry logic, content limit
// configuration, and metrics recording.
func NewClaude(apiKey string) *Claude {
	config := LoadClaudeConfig()

	slog.Info("Initialized Claude analyzer with configuration",
		slog.String("model", config.Model),
		slog.Int("max_content_chars", config.MaxContentChars))

	return &Claude{
		client:          anthropic.NewClient(option.WithAPIKey(apiKey)),
		circuitBreaker:  circuitbreaker.New(circuitbreaker.ClaudeAPIConfig()),
		retryConfig:     retry.AIAPIConfig(),
		config:          config,
		metricsRecorder: NewPrometheusAnalysisMetrics(),
	}
}

// Analyze grades the article text and extracts its structured analysis
// using Claude. It uses circuit breaker and retry logic for improved
// reliability; the configured timeout bounds the whole attempt chain.
func (c *Claude) Analyze(ctx context.Context, title, content string) (*entity.ArticleAnalysis, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var result *entity.ArticleAnalysis

	// Wrap with retry logic
	retryErr := retry.WithBackoff(ctx, c.retryConfig, func() error {
		// Execute through circuit breaker
		cbResult, err := c.circuitBreaker.Execute(func() (interface{}, error) {
			return c.doAnalyze(ctx, title, content)
		})

		// Handle circuit breaker open state
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				slog.Warn("claude api circuit breaker open, request rejected",
					slog.String("service", "claude-api"),
					slog.String("state", c.circuitBreaker.State().String()))
				return fmt.Errorf("claude api unavailable: circuit breaker open")
			}
			return err
		}

		result = cbResult.(*entity.ArticleAnalysis)
		return nil
	})

	if retryErr != nil {
		return nil, fmt.Errorf("claude analysis failed after retries: %w", retryErr)
	}

	return result, nil
}

// doAnalyze performs the actual API call without retry or circuit breaker.
// API failures are tagged entity.KindFetchError and malformed output
// entity.KindValidationError, so both classes stay within the retry
// budget rather than aborting on the first attempt.
func (c *Claude) doAnalyze(ctx context.Context, title, content string) (*entity.ArticleAnalysis, error) {
	// Generate unique request ID for tracing
	requestID := uuid.New().String()

	truncated, wasTruncated := truncateContent(content, c.config.MaxContentChars)
	if wasTruncated {
		slog.Warn("article content truncated for claude api",
			slog.String("request_id", requestID),
			slog.Int("original_chars", text.CountRunes(content)),
			slog.Int("max_chars", c.config.MaxContentChars))
	}

	prompt := buildAnalysisPrompt(title, truncated)
	inputLength := text.CountRunes(truncated)

	slog.InfoContext(ctx, "Starting article analysis",
		slog.String("request_id", requestID),
		slog.String("model", c.config.Model),
		slog.Int("content_chars", inputLength))

	c.metricsRecorder.RecordInputLength(inputLength)

	// Record start time for duration measurement
	start := time.Now()

	// Call Claude API at temperature zero for stable structured output
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.config.Model),
		MaxTokens:   int64(c.config.MaxTokens),
		Temperature: anthropic.Float(0),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(prompt),
			),
		},
	})

	duration := time.Since(start)

	if err != nil {
		slog.ErrorContext(ctx, "Article analysis failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, entity.NewPipelineError(entity.KindFetchError, "analyzer.claude",
			fmt.Errorf("claude api error: %w", err))
	}

	// Validate response structure
	if len(message.Content) == 0 {
		slog.ErrorContext(ctx, "Claude API returned empty response",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration))
		return nil, entity.NewPipelineError(entity.KindValidationError, "analyzer.claude",
			fmt.Errorf("claude api returned empty response"))
	}

	// Extract text from response
	textBlock, ok := message.Content[0].AsAny().(anthropic.TextBlock)
	if !ok {
		slog.ErrorContext(ctx, "Claude API returned unexpected response type",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration))
		return nil, entity.NewPipelineError(entity.KindValidationError, "analyzer.claude",
			fmt.Errorf("claude api returned unexpected response type"))
	}

	analysis, err := parseAnalysis(textBlock.Text)
	if err != nil {
		c.metricsRecorder.RecordParseFailure()
		slog.WarnContext(ctx, "Model output failed analysis schema",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, err
	}

	slog.InfoContext(ctx, "Article analysis completed",
		slog.String("request_id", requestID),
		slog.String("language", analysis.Language),
		slog.String("quality", string(analysis.ContentQuality)),
		slog.Int("summary_points", len(analysis.EventSummaryPoints)),
		slog.Duration("duration", duration))

	// Record metrics
	c.metricsRecorder.RecordDuration(duration)
	c.metricsRecorder.RecordQuality(string(analysis.ContentQuality))

	return analysis, nil
}
