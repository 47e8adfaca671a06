// Package httpapi implements the automation side-effect ports against the
// collaborator HTTP APIs. Every client runs behind its own circuit breaker:
// a flapping downstream trips only its own action, and the dispatcher
// reports the tripped action as failed without waiting out the timeout.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

const httpTimeout = 10 * time.Second

// client is the shared JSON-over-HTTP plumbing for one collaborator API.
type client struct {
	baseURL string
	token   string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

func newClient(name, baseURL, token string) *client {
	return &client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: httpTimeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// postJSON sends a POST through the breaker and decodes the response into
// out.
func (c *client) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	_, err = c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("post %s: %w", path, err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, string(respBody))
		}
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return nil, fmt.Errorf("decode response: %w", err)
			}
		}
		return nil, nil
	})
	return err
}

// getJSON sends a GET through the breaker and decodes the response into out.
func (c *client) getJSON(ctx context.Context, path string, out any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", path, err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, string(respBody))
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return nil, nil
	})
	return err
}
