// Package notify delivers reminder notifications to the chat integration
// through an outbound webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultTimeout = 10 * time.Second

// ErrMissingWebhookURL indicates the webhook endpoint was not configured.
var ErrMissingWebhookURL = errors.New("notify: webhook URL required")

// WebhookConfig configures the outbound webhook notifier.
type WebhookConfig struct {
	URL        string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Webhook posts reminder payloads to the chat integration endpoint. Each
// delivery carries a fresh delivery id so the receiving side can deduplicate
// the occasional at-least-once repeat.
type Webhook struct {
	url  string
	http *http.Client
}

// NewWebhook validates the configuration and returns a Webhook notifier.
func NewWebhook(cfg WebhookConfig) (*Webhook, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, ErrMissingWebhookURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := &http.Client{Timeout: timeout}
	if cfg.HTTPClient != nil {
		// Copy so an injected shared client keeps its own timeout.
		clientCopy := *cfg.HTTPClient
		clientCopy.Timeout = timeout
		httpClient = &clientCopy
	}
	return &Webhook{url: cfg.URL, http: httpClient}, nil
}

type deliveryPayload struct {
	DeliveryID  string `json:"delivery_id"`
	ChannelID   int64  `json:"channel_id"`
	RequesterID int64  `json:"requester_id"`
	Content     string `json:"content"`
}

// Notify posts the reminder text to the webhook. Any non-2xx response is a
// delivery failure; the scheduler retries on its next tick.
func (w *Webhook) Notify(ctx context.Context, channelID, requesterID int64, message string) error {
	payload := deliveryPayload{
		DeliveryID:  uuid.NewString(),
		ChannelID:   channelID,
		RequesterID: requesterID,
		Content:     message,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshal payload: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := w.http.Do(request)
	if err != nil {
		return fmt.Errorf("notify: post failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("notify: webhook returned %s", response.Status)
	}
	return nil
}
