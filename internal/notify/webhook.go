package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/webhunter-dev/webhunter/internal/config"
)

// WebhookSender implements Sender via a generic JSON POST, for channels
// that accept a webhook instead of a dedicated push API.
type WebhookSender struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// NewWebhookSender creates a WebhookSender from config.
func NewWebhookSender(cfg config.WebhookConfig, opts ...WebhookOption) *WebhookSender {
	w := &WebhookSender{
		url:     cfg.URL,
		headers: cfg.Headers,
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WebhookOption configures a WebhookSender.
type WebhookOption func(*WebhookSender)

// WithWebhookHTTPClient sets a custom HTTP client.
func WithWebhookHTTPClient(c *http.Client) WebhookOption {
	return func(w *WebhookSender) {
		w.client = c
	}
}

// Name implements Sender.
func (*WebhookSender) Name() string {
	return "webhook"
}

// webhookPayload is the JSON body posted to the webhook.
type webhookPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
}

// Send implements Sender.
func (w *WebhookSender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(webhookPayload{Title: msg.Title, Body: msg.Body, URL: msg.URL})
	if err != nil {
		return rejectedErr(w.Name(), fmt.Errorf("marshaling payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return rejectedErr(w.Name(), fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return transientErr(w.Name(), err)
	}
	defer resp.Body.Close()

	return classifyResponse(w.Name(), resp)
}
