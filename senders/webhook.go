package senders

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPWebhookPoster delivers WEBHOOK actions with a single HTTP request.
// Retry and backoff policy is left to the receiving infrastructure; the
// poster only bounds each request so one slow endpoint cannot stall an
// evaluation indefinitely.
type HTTPWebhookPoster struct {
	client *http.Client
}

// NewHTTPWebhookPoster creates a poster with the given per-request timeout.
// A non-positive timeout defaults to 10 seconds.
func NewHTTPWebhookPoster(timeout time.Duration) *HTTPWebhookPoster {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPWebhookPoster{client: &http.Client{Timeout: timeout}}
}

// PostWebhook sends the body to the URL. Non-2xx responses are errors so
// the action executor records them as failed results.
func (p *HTTPWebhookPoster) PostWebhook(ctx context.Context, url, method string, headers map[string]string, body string) error {
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, url, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
