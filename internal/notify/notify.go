// Package notify delivers break-glass alerts. Delivery is fire-and-forget
// from the caller's point of view; only tiers flagged NotifyOnUse produce
// notifications at all.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Alert types emitted by the lifecycle.
const (
	AlertBreakGlassAccess  = "break_glass_access"
	AlertBreakGlassRevoked = "break_glass_revoked"
)

// Event is the alert payload.
type Event struct {
	AlertType string    `json:"alert_type"`
	ProjectID string    `json:"project_id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Tier      string    `json:"tier"`
	Reason    string    `json:"reason,omitempty"`
	Time      time.Time `json:"time"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Notifier delivers one alert. Implementations must not block indefinitely.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Noop stands in when no alert destination is configured.
type Noop struct{}

func (Noop) Notify(context.Context, Event) error { return nil }

const (
	requestTimeout = 5 * time.Second
	maxAttempts    = 3
)

// Webhook posts alerts as JSON to a configured URL. Network errors and 5xx
// responses are retried with a linear sleep; 4xx responses are not.
type Webhook struct {
	URL        string
	HTTPClient *http.Client
}

// NewWebhook returns a webhook notifier for url.
func NewWebhook(url string) *Webhook {
	return &Webhook{URL: url, HTTPClient: &http.Client{Timeout: requestTimeout}}
}

// Notify posts the event, retrying up to maxAttempts.
func (w *Webhook) Notify(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("notify: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.HTTPClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return fmt.Errorf("notify: webhook rejected: HTTP %d", resp.StatusCode)
		}
		lastErr = fmt.Errorf("webhook server error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("notify: failed after %d attempts: %w", maxAttempts, lastErr)
}
