package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/webhunter-dev/webhunter/internal/config"
)

// PushoverSender implements Sender against the Pushover message API:
// a form POST carrying the application token, the recipient user key, and
// the message body. 2xx is accepted, 4xx means the request itself is bad,
// 5xx and timeouts are transient.
type PushoverSender struct {
	token    string
	user     string
	device   string
	endpoint string
	client   *http.Client
}

// NewPushoverSender creates a PushoverSender from config.
func NewPushoverSender(cfg config.PushoverConfig, opts ...PushoverOption) *PushoverSender {
	p := &PushoverSender{
		token:    cfg.Token,
		user:     cfg.User,
		device:   cfg.Device,
		endpoint: cfg.Endpoint,
		client:   http.DefaultClient,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PushoverOption configures a PushoverSender.
type PushoverOption func(*PushoverSender)

// WithPushoverHTTPClient sets a custom HTTP client.
func WithPushoverHTTPClient(c *http.Client) PushoverOption {
	return func(p *PushoverSender) {
		p.client = c
	}
}

// Name implements Sender.
func (*PushoverSender) Name() string {
	return "pushover"
}

// Send implements Sender.
func (p *PushoverSender) Send(ctx context.Context, msg Message) error {
	form := url.Values{}
	form.Set("token", p.token)
	form.Set("user", p.user)
	form.Set("title", msg.Title)
	form.Set("message", msg.Body)
	if msg.URL != "" {
		form.Set("url", msg.URL)
	}
	if p.device != "" {
		form.Set("device", p.device)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, p.endpoint, strings.NewReader(form.Encode()),
	)
	if err != nil {
		return rejectedErr(p.Name(), fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return transientErr(p.Name(), err)
	}
	defer resp.Body.Close()

	return classifyResponse(p.Name(), resp)
}

// classifyResponse maps the push channel's status contract onto the
// delivery error taxonomy.
func classifyResponse(provider string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 512))
	detail := strings.TrimSpace(string(body))
	if readErr != nil || detail == "" {
		detail = resp.Status
	}
	err := fmt.Errorf("status %d: %s", resp.StatusCode, detail)

	// 429 is throttling, not rejection; every other 4xx means the request
	// is inherently invalid and retrying cannot help.
	if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
		resp.StatusCode != http.StatusTooManyRequests {
		return rejectedErr(provider, err)
	}
	return transientErr(provider, err)
}
