package notifier

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// SlackConfig configures the Slack alert channel.
type SlackConfig struct {
	// Enabled indicates whether the Slack channel is enabled
	Enabled bool

	// WebhookURL is the Slack Incoming Webhook URL (includes authentication token)
	WebhookURL string

	// Timeout is the HTTP request timeout for Slack API calls
	Timeout time.Duration
}

// SlackNotifier delivers pipeline alerts to Slack via Incoming Webhook.
// Alerts are rendered with Block Kit: a section block for the headline and
// detail, a context block for the component and observation time.
type SlackNotifier struct {
	config      SlackConfig
	httpClient  *http.Client
	rateLimiter *RateLimiter
}

// NewSlackNotifier builds a notifier for the given webhook. The rate limiter
// is sized to the Incoming Webhook budget of one message per second.
func NewSlackNotifier(config SlackConfig) *SlackNotifier {
	return &SlackNotifier{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimiter: NewRateLimiter(1.0, 1),
	}
}

// SlackWebhookPayload is the JSON body posted to the Slack webhook,
// using Block Kit.
type SlackWebhookPayload struct {
	Text   string       `json:"text"`   // Fallback text (required)
	Blocks []SlackBlock `json:"blocks"` // Rich formatting blocks
}

// SlackBlock is a Slack Block Kit block.
type SlackBlock struct {
	Type     string            `json:"type"`               // "section", "context", "divider"
	Text     *SlackTextObject  `json:"text,omitempty"`     // Text content (for section)
	Elements []SlackTextObject `json:"elements,omitempty"` // Elements (for context)
}

// SlackTextObject is a text object in Slack Block Kit.
type SlackTextObject struct {
	Type string `json:"type"` // "mrkdwn" or "plain_text"
	Text string `json:"text"` // Actual text content
}

const (
	// Slack Block Kit limits, in characters
	maxSectionTextLength = 3000
	maxContextTextLength = 2000
	maxFallbackLength    = 150

	slackTruncationSuffix = "..."
)

// severityEmoji maps an alert severity to a Slack emoji prefix.
func severityEmoji(severity Severity) string {
	switch severity {
	case SeverityCritical:
		return ":rotating_light:"
	case SeverityWarning:
		return ":warning:"
	default:
		return ":information_source:"
	}
}

// buildBlockKitPayload renders an alert as Block Kit. The fallback text is
// what notification popups show, the section block carries severity emoji,
// bold headline and the alert detail, and the context block names the
// component and observation time. Texts are truncated to the Block Kit
// limits.
func (s *SlackNotifier) buildBlockKitPayload(alert *Alert) SlackWebhookPayload {
	fallbackText := fmt.Sprintf("[%s] %s", alert.Severity, alert.Title)
	fallbackText = truncateText(fallbackText, maxFallbackLength, slackTruncationSuffix)

	// Section layout: ":emoji: *headline*", blank line, detail.
	headline := fmt.Sprintf("%s *%s*", severityEmoji(alert.Severity), alert.Title)
	sectionText := fmt.Sprintf("%s\n\n%s", headline, alert.Message)
	sectionText = truncateText(sectionText, maxSectionTextLength, slackTruncationSuffix)

	contextText := fmt.Sprintf("%s • %s", alert.Component, alert.At.Format(time.RFC3339))
	contextText = truncateText(contextText, maxContextTextLength, slackTruncationSuffix)

	sectionBlock := SlackBlock{
		Type: "section",
		Text: &SlackTextObject{
			Type: "mrkdwn",
			Text: sectionText,
		},
	}

	contextBlock := SlackBlock{
		Type: "context",
		Elements: []SlackTextObject{
			{
				Type: "mrkdwn",
				Text: contextText,
			},
		},
	}

	return SlackWebhookPayload{
		Text:   fallbackText,
		Blocks: []SlackBlock{sectionBlock, contextBlock},
	}
}

// sendWebhookRequest posts a single Block Kit message to the webhook.
// Responses are classified into RateLimitError, ClientError and ServerError
// for the retry loop; Slack reports rate limits through the Retry-After
// header, which postWebhook picks up.
func (s *SlackNotifier) sendWebhookRequest(ctx context.Context, alert *Alert) error {
	return postWebhook(ctx, s.httpClient, s.config.WebhookURL, "slack", s.buildBlockKitPayload(alert))
}

// NotifyAlert delivers a pipeline alert to Slack. It waits for a rate
// limiter slot, then posts the message with a bounded retry. Delivery logs
// go through the context logger, so they carry the dispatching caller's
// correlation fields.
func (s *SlackNotifier) NotifyAlert(ctx context.Context, alert *Alert) error {
	if err := s.rateLimiter.Wait(ctx); err != nil {
		return err
	}
	return deliverWithRetry(ctx, "slack", alert, defaultRetryDelay, s.sendWebhookRequest)
}
