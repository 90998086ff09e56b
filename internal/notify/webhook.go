package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	HeaderEvent     = "X-SessionVault-Event"
	HeaderTimestamp = "X-SessionVault-Timestamp"
	HeaderSignature = "X-SessionVault-Signature"
)

// WebhookSink POSTs each event as JSON to one URL. Payloads are signed with
// HMAC-SHA256 when a secret is set. 5xx responses and transport errors are
// retried with exponential backoff; 4xx responses are not.
type WebhookSink struct {
	url        string
	secret     string
	client     *http.Client
	newBackOff func() backoff.BackOff
}

// NewWebhookSink creates a webhook sink.
func NewWebhookSink(url, secret string) *WebhookSink {
	return &WebhookSink{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			b.MaxElapsedTime = time.Minute
			return b
		},
	}
}

// WithBackOff replaces the retry policy.
func (w *WebhookSink) WithBackOff(fn func() backoff.BackOff) *WebhookSink {
	w.newBackOff = fn
	return w
}

func (w *WebhookSink) Name() string { return "webhook" }

func (w *WebhookSink) Deliver(ctx context.Context, ev *Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(HeaderEvent, string(ev.Type))
		req.Header.Set(HeaderTimestamp, strconv.FormatInt(ev.Timestamp.Unix(), 10))
		if w.secret != "" {
			req.Header.Set(HeaderSignature, Sign(payload, w.secret))
		}

		resp, err := w.client.Do(req)
		if err != nil {
			return err
		}
		_ = resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("webhook returned status %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("webhook returned status %d", resp.StatusCode))
		}
	}

	return backoff.Retry(op, backoff.WithContext(w.newBackOff(), ctx))
}

// Sign returns the hex HMAC-SHA256 of payload under secret.
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
