package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"newsriver/internal/domain/entity"
	"newsriver/internal/resilience/circuitbreaker"
	"newsriver/internal/resilience/retry"
	"newsriver/internal/utils/text"
)

// OpenAIConfig holds configuration parameters for the OpenAI analyzer.
// Configuration is loaded from environment variables with fallback to defaults.
type OpenAIConfig struct {
	// Model is the OpenAI API model identifier to use for analysis.
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

// GetModel implements AnalyzerConfig.
func (c *OpenAIConfig) GetModel() string {
	return c.Model
}

// GetMaxContentChars implements AnalyzerConfig.
func (c *OpenAIConfig) GetMaxContentChars() int {
	return c.MaxContentChars
}

// Validate implements AnalyzerConfig.
// Validates the configuration and returns an error if invalid.
func (c *OpenAIConfig) Validate() error {
	// Validate content limit using shared helper
	if err := ValidateMaxContentChars(c.MaxContentChars); err != nil {
		return fmt.Errorf("invalid content limit: %w", err)
	}

	// Validate other fields
	if c.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if c.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", c.MaxTokens)
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}

	return nil
}

// LoadOpenAIConfig loads configuration from environment variables.
// It validates the content limit against its valid range (1000-100000).
// Returns an error if the configuration is invalid.
//
// Environment variables:
//   - ANALYZER_MODEL: Model identifier override
//   - ANALYZER_MAX_CONTENT_CHARS: Article content limit (default: 20000)
//
// Returns:
//   - OpenAIConfig with validated settings
//   - error if validation fails (fail-closed behavior)
func LoadOpenAIConfig() (*OpenAIConfig, error) {
	const defaultContentChars = 20000

	contentChars := defaultContentChars

	if envLimit := os.Getenv("ANALYZER_MAX_CONTENT_CHARS"); envLimit != "" {
		parsed, err := strconv.Atoi(envLimit)
		if err != nil {
			return nil, fmt.Errorf("invalid ANALYZER_MAX_CONTENT_CHARS format: %s: %w", envLimit, err)
		}

		// Validate content limit using shared helper
		if err := ValidateMaxContentChars(parsed); err != nil {
			return nil, fmt.Errorf("ANALYZER_MAX_CONTENT_CHARS out of valid range: %w", err)
		}

		contentChars = parsed
	}

	model := openai.GPT4oMini
	if envModel := os.Getenv("ANALYZER_MODEL"); envModel != "" {
		model = envModel
	}

	config := &OpenAIConfig{
		Model:           model,
		MaxTokens:       2048,
		MaxContentChars: contentChars,
		Timeout:         time.Minute,
	}

	// Validate the entire configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid OpenAI configuration: %w", err)
	}

	return config, nil
}

// OpenAI produces article analyses using OpenAI's chat completion API in
// JSON mode. It includes circuit breaker and retry logic for improved
// reliability, with comprehensive observability through structured
// logging and metrics.
type OpenAI struct {
	client          *openai.Client
	circuitBreaker  *circuitbreaker.CircuitBreaker
	retryConfig     retry.Config
	config          AnalyzerConfig
	metricsRecorder AnalysisMetricsRecorder
}

// NewOpenAI creates a new OpenAI analyzer with the given API key.
// It automatically configures circuit breaker, retry logic, content limit
// configuration, and metrics recording.
func NewOpenAI(apiKey string, config AnalyzerConfig) *OpenAI {
	slog.Info("Initialized OpenAI analyzer with configuration",
		slog.String("model", config.GetModel()),
		slog.Int("max_content_chars", config.GetMaxContentChars()))

	return &OpenAI{
		client:          openai.NewClient(apiKey),
		circuitBreaker:  circuitbreaker.New(circuitbreaker.OpenAIAPIConfig()),
		retryConfig:     retry.AIAPIConfig(),
		config:          config,
		metricsRecorder: NewPrometheusAnalysisMetrics(),
	}
}

// Analyze grades the article text and extracts its structured analysis
// using OpenAI. It uses circuit breaker and retry logic for improved
// reliability; a one-minute window bounds the whole attempt chain.
func (o *OpenAI) Analyze(ctx context.Context, title, content string) (*entity.ArticleAnalysis, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	var result *entity.ArticleAnalysis

	// Wrap with retry logic
	retryErr := retry.WithBackoff(ctx, o.retryConfig, func() error {
		// Execute through circuit breaker
		cbResult, err := o.circuitBreaker.Execute(func() (interface{}, error) {
			return o.doAnalyze(ctx, title, content)
		})

		// Handle circuit breaker open state
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				slog.Warn("openai api circuit breaker open, request rejected",
					slog.String("service", "openai-api"),
					slog.String("state", o.circuitBreaker.State().String()))
				return fmt.Errorf("openai api unavailable: circuit breaker open")
			}
			return err
		}

		result = cbResult.(*entity.ArticleAnalysis)
		return nil
	})

	if retryErr != nil {
		return nil, fmt.Errorf("openai analysis failed after retries: %w", retryErr)
	}

	return result, nil
}

// doAnalyze performs the actual API call without retry or circuit breaker.
// API failures are tagged entity.KindFetchError and malformed output
// entity.KindValidationError, so both classes stay within the retry
// budget rather than aborting on the first attempt.
func (o *OpenAI) doAnalyze(ctx context.Context, title, content string) (*entity.ArticleAnalysis, error) {
	truncated, wasTruncated := truncateContent(content, o.config.GetMaxContentChars())
	if wasTruncated {
		slog.Warn("article content truncated for openai api",
			slog.Int("original_chars", text.CountRunes(content)),
			slog.Int("max_chars", o.config.GetMaxContentChars()))
	}

	prompt := buildAnalysisPrompt(title, truncated)
	inputLength := text.CountRunes(truncated)

	slog.InfoContext(ctx, "Starting article analysis",
		slog.String("model", o.config.GetModel()),
		slog.Int("content_chars", inputLength))

	o.metricsRecorder.RecordInputLength(inputLength)

	// Record start time for duration measurement
	start := time.Now()

	// Call OpenAI API in JSON mode. A literal temperature of zero would be
	// dropped by the request encoder's omitempty, so the smallest nonzero
	// float stands in for it.
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.config.GetModel(),
		Temperature: math.SmallestNonzeroFloat32,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleUser,
			Content: prompt,
		}},
	})

	duration := time.Since(start)

	if err != nil {
		slog.ErrorContext(ctx, "Article analysis failed",
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, entity.NewPipelineError(entity.KindFetchError, "analyzer.openai",
			fmt.Errorf("openai api error: %w", err))
	}

	// Validate response structure (safety check to prevent panic on array access)
	if len(resp.Choices) == 0 {
		slog.ErrorContext(ctx, "OpenAI API returned empty response",
			slog.Duration("duration", duration))
		return nil, entity.NewPipelineError(entity.KindValidationError, "analyzer.openai",
			fmt.Errorf("openai api returned empty response"))
	}

	analysis, err := parseAnalysis(resp.Choices[0].Message.Content)
	if err != nil {
		o.metricsRecorder.RecordParseFailure()
		slog.WarnContext(ctx, "Model output failed analysis schema",
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, err
	}

	slog.InfoContext(ctx, "Article analysis completed",
		slog.String("language", analysis.Language),
		slog.String("quality", string(analysis.ContentQuality)),
		slog.Int("summary_points", len(analysis.EventSummaryPoints)),
		slog.Duration("duration", duration))

	// Record metrics
	o.metricsRecorder.RecordDuration(duration)
	o.metricsRecorder.RecordQuality(string(analysis.ContentQuality))

	return analysis, nil
}
