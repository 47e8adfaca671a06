// Package slack delivers tracking alerts to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/linnemanlabs/vendorwatch/internal/notify"
)

const (
	maxBodyLen  = 3000
	httpTimeout = 10 * time.Second
)

// Channel posts alerts to a Slack webhook.
type Channel struct {
	webhookURL string
	client     *http.Client
}

// New creates a Slack channel. If webhookURL is empty, Send is a no-op.
func New(webhookURL string) *Channel {
	return &Channel{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// Name implements notify.Channel.
func (c *Channel) Name() string { return "slack" }

// Send posts the alert to the configured webhook.
// If no webhook URL is configured, it returns nil immediately.
func (c *Channel) Send(ctx context.Context, a *notify.Alert) error {
	if c.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(buildMessage(a))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildMessage(a *notify.Alert) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(a),
			{"type": "divider"},
			fieldsBlock(a),
			bodyBlock(a),
			{"type": "divider"},
			contextBlock(a),
		},
	}
}

func headerBlock(a *notify.Alert) map[string]any {
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": fmt.Sprintf("%s %s", severityEmoji(a.Severity), a.Subject),
		},
	}
}

func fieldsBlock(a *notify.Alert) map[string]any {
	return map[string]any{
		"type": "section",
		"fields": []map[string]any{
			{"type": "mrkdwn", "text": fmt.Sprintf("*Vendor:* %s", a.VendorName)},
			{"type": "mrkdwn", "text": fmt.Sprintf("*Severity:* %s", a.Severity)},
		},
	}
}

func bodyBlock(a *notify.Alert) map[string]any {
	text := truncate(a.Body, maxBodyLen)
	if text == "" {
		text = "_No details available._"
	}
	return map[string]any{
		"type": "section",
		"text": map[string]any{"type": "mrkdwn", "text": text},
	}
}

func contextBlock(a *notify.Alert) map[string]any {
	return map[string]any{
		"type": "context",
		"elements": []map[string]any{
			{
				"type": "mrkdwn",
				"text": fmt.Sprintf("vendorwatch • tracking %s • %s", a.TrackingID, a.CreatedAt.UTC().Format("2006-01-02 15:04 UTC")),
			},
		},
	}
}

func severityEmoji(severity string) string {
	switch strings.ToLower(severity) {
	case "critical":
		return "\U0001f534" // red circle
	case "high":
		return "\U0001f7e0" // orange circle
	case "medium":
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
