package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	sharedErrors "github.com/jswatch/jswatch/internal/shared/errors"
)

// defaultDeliveryTimeout bounds one delivery attempt so a stalled endpoint
// never blocks subsequent detection work.
const defaultDeliveryTimeout = 15 * time.Second

// defaultRetryAfter applies when a 429 response carries no usable hint.
const defaultRetryAfter = time.Minute

// RateLimitError signals a 429-equivalent response; RetryAfter carries the
// server's retry hint.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// WebhookTransport delivers batch summaries as JSON POSTs to a webhook URL.
type WebhookTransport struct {
	url    string
	client *http.Client
}

// NewWebhookTransport builds a transport for url. timeout <= 0 selects the
// default delivery timeout.
func NewWebhookTransport(url string, timeout time.Duration) *WebhookTransport {
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}
	return &WebhookTransport{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Deliver posts the batch. A 429 response becomes a RateLimitError carrying
// the Retry-After hint; other non-2xx statuses fail the delivery.
func (t *WebhookTransport) Deliver(ctx context.Context, batch *Batch) error {
	if t.url == "" {
		return sharedErrors.ErrNoTransport
	}

	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encoding batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", sharedErrors.ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: unexpected status %d", sharedErrors.ErrDeliveryFailed, resp.StatusCode)
	}
	return nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return defaultRetryAfter
}
