// Package teams delivers tracking alerts to Microsoft Teams via incoming
// webhooks (MessageCard payloads).
package teams

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

const httpTimeout = 10 * time.Second

// Channel posts alerts to a Teams webhook.
type Channel struct {
	webhookURL string
	client     *http.Client
}

// New creates a Teams channel. If webhookURL is empty, Send is a no-op.
func New(webhookURL string) *Channel {
	return &Channel{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// Name implements notify.Channel.
func (c *Channel) Name() string { return "teams" }

// Send posts the alert as a MessageCard.
func (c *Channel) Send(ctx context.Context, a *notify.Alert) error {
	if c.webhookURL == "" {
		return nil
	}

	card := map[string]any{
		"@type":      "MessageCard",
		"@context":   "https://schema.org/extensions",
		"summary":    a.Subject,
		"themeColor": themeColor(a.Severity),
		"title":      a.Subject,
		"sections": []map[string]any{
			{
				"facts": []map[string]string{
					{"name": "Vendor", "value": a.VendorName},
					{"name": "Severity", "value": a.Severity},
					{"name": "Tracking", "value": a.TrackingID},
				},
				"text": a.Body,
			},
		},
	}

	body, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("teams: marshal card: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("teams: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("teams: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("teams: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func themeColor(severity string) string {
	switch strings.ToLower(severity) {
	case "critical":
		return "d13438"
	case "high":
		return "ff8c00"
	case "medium":
		return "ffd700"
	default:
		return "107c10"
	}
}
