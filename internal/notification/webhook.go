package notification

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/k3a/html2text"
	"golang.org/x/time/rate"
)

// webhookPayload is the JSON body posted to webhook receivers.
type webhookPayload struct {
	ID       string   `json:"id"`
	Severity Severity `json:"severity"`
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	// Text is Body with any HTML markup from custom templates stripped,
	// for receivers that only render plain text.
	Text      string    `json:"text"`
	Icon      string    `json:"icon,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RuleID    uint      `json:"rule_id,omitempty"`
}

// WebhookProvider posts notifications as JSON. Requests are rate limited so
// a burst of detections cannot flood the receiver.
type WebhookProvider struct {
	url     string
	client  *resty.Client
	limiter *rate.Limiter
}

// WebhookOption configures a WebhookProvider.
type WebhookOption func(*webhookOptions)

type webhookOptions struct {
	httpClient *http.Client
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(o *webhookOptions) { o.httpClient = c }
}

// NewWebhookProvider creates a provider for targetURL. A non-positive
// ratePerSecond disables rate limiting.
func NewWebhookProvider(targetURL string, timeout time.Duration, ratePerSecond float64, burst int, opts ...WebhookOption) *WebhookProvider {
	var o webhookOptions
	for _, opt := range opts {
		opt(&o)
	}

	client := resty.New()
	if o.httpClient != nil {
		client = resty.NewWithClient(o.httpClient)
	}
	client.
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "watchpost")

	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	if burst <= 0 {
		burst = 1
	}

	return &WebhookProvider{
		url:     targetURL,
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (w *WebhookProvider) Name() string {
	return "webhook"
}

func (w *WebhookProvider) Enabled() bool {
	return w.url != ""
}

// ValidateConfig requires an absolute http(s) URL.
func (w *WebhookProvider) ValidateConfig() error {
	u, err := url.Parse(w.url)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("webhook url scheme %q must be http or https", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("webhook url has no host")
	}
	return nil
}

// Send posts n, waiting for the rate limiter first.
func (w *WebhookProvider) Send(ctx context.Context, n *Notification) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("webhook rate limit wait: %w", err)
	}

	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(webhookPayload{
			ID:        n.ID,
			Severity:  n.Severity,
			Title:     n.Title,
			Body:      n.Body,
			Text:      plainText(n.Body),
			Icon:      n.Icon,
			Timestamp: n.Timestamp,
			RuleID:    n.RuleID,
		}).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	return nil
}

func plainText(body string) string {
	return html2text.HTML2TextWithOptions(body, html2text.WithUnixLineBreaks())
}
