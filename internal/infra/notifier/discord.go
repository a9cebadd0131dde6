package notifier

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DiscordConfig configures the Discord alert channel.
type DiscordConfig struct {
	// Enabled indicates whether the Discord channel is enabled
	Enabled bool

	// WebhookURL is the Discord webhook URL (includes authentication token)
	WebhookURL string

	// Timeout is the HTTP request timeout for Discord API calls
	Timeout time.Duration
}

// DiscordNotifier delivers pipeline alerts to Discord via webhook.
// Alerts are rendered as a single embed whose color tracks the severity.
type DiscordNotifier struct {
	config      DiscordConfig
	httpClient  *http.Client
	rateLimiter *RateLimiter
}

// NewDiscordNotifier builds a notifier for the given webhook. The rate
// limiter is sized to the Discord webhook budget of 30 requests per minute,
// with a small burst so one incident's worth of alerts goes out promptly.
func NewDiscordNotifier(config DiscordConfig) *DiscordNotifier {
	return &DiscordNotifier{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimiter: NewRateLimiter(0.5, 3),
	}
}

// DiscordWebhookPayload is the JSON body posted to the Discord webhook.
type DiscordWebhookPayload struct {
	Embeds []DiscordEmbed `json:"embeds"`
}

// DiscordEmbed is a single Discord embed message.
type DiscordEmbed struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Color       int                `json:"color"`
	Footer      DiscordEmbedFooter `json:"footer"`
	Timestamp   string             `json:"timestamp"`
}

// DiscordEmbedFooter is the footer of a Discord embed.
type DiscordEmbedFooter struct {
	Text string `json:"text"`
}

const (
	// Discord embed limits, in characters
	maxTitleLength       = 256
	maxDescriptionLength = 4096
	truncationSuffix     = "..."

	// Discord brand colors by severity
	discordBlueColor   = 5793266  // #5865F2, info
	discordYellowColor = 16705372 // #FEE75C, warning
	discordRedColor    = 15548997 // #ED4245, critical
)

// severityColor maps an alert severity to a Discord embed color.
func severityColor(severity Severity) int {
	switch severity {
	case SeverityCritical:
		return discordRedColor
	case SeverityWarning:
		return discordYellowColor
	default:
		return discordBlueColor
	}
}

// buildEmbedPayload renders an alert as a Discord embed. The title carries
// the severity in its "[CRITICAL] headline" form, the description the alert
// detail, the footer the component that raised it, and the timestamp the
// observation time. Title and description are truncated to the embed limits.
func (d *DiscordNotifier) buildEmbedPayload(alert *Alert) DiscordWebhookPayload {
	title := fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), alert.Title)
	title = truncateText(title, maxTitleLength, truncationSuffix)

	embed := DiscordEmbed{
		Title:       title,
		Description: truncateText(alert.Message, maxDescriptionLength, truncationSuffix),
		Color:       severityColor(alert.Severity),
		Footer: DiscordEmbedFooter{
			Text: alert.Component,
		},
		Timestamp: alert.At.Format(time.RFC3339),
	}

	return DiscordWebhookPayload{
		Embeds: []DiscordEmbed{embed},
	}
}

// sendWebhookRequest posts a single embed to the webhook. Responses are
// classified into RateLimitError, ClientError and ServerError for the retry
// loop; Discord's 429 bodies carry a sub-second retry_after, which
// postWebhook picks up.
func (d *DiscordNotifier) sendWebhookRequest(ctx context.Context, alert *Alert) error {
	return postWebhook(ctx, d.httpClient, d.config.WebhookURL, "discord", d.buildEmbedPayload(alert))
}

// NotifyAlert delivers a pipeline alert to Discord. It waits for a rate
// limiter slot, then posts the embed with a bounded retry. Delivery logs go
// through the context logger, so they carry the dispatching caller's
// correlation fields.
func (d *DiscordNotifier) NotifyAlert(ctx context.Context, alert *Alert) error {
	if err := d.rateLimiter.Wait(ctx); err != nil {
		return err
	}
	return deliverWithRetry(ctx, "discord", alert, defaultRetryDelay, d.sendWebhookRequest)
}
