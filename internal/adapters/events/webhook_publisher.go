package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/atvirokodosprendimai/strcalc/internal/core/domain"
)

const (
	defaultWebhookTimeout = 10 * time.Second
	userAgent             = "strcalc-webhook/1"

	headerTopic     = "X-Strcalc-Topic"
	headerEventType = "X-Strcalc-Event-Type"
	headerTenant    = "X-Strcalc-Tenant"
	headerEventID   = "X-Strcalc-Event-Id"
	headerSignature = "X-Hub-Signature-256"
)

// WebhookPublisher POSTs calculation events to a configured URL, signed with
// HMAC-SHA256. Non-2xx responses are errors so the outbox dispatcher retries.
type WebhookPublisher struct {
	url    string
	secret []byte
	client *http.Client
}

// NewWebhookPublisher returns a publisher for url. A non-positive timeout
// falls back to defaultWebhookTimeout.
func NewWebhookPublisher(url, secret string, timeout time.Duration) *WebhookPublisher {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &WebhookPublisher{
		url:    url,
		secret: []byte(secret),
		client: &http.Client{Timeout: timeout},
	}
}

// Publish sends event as JSON with these headers:
//
//	X-Strcalc-Topic:        <topic>
//	X-Strcalc-Event-Type:   <event.EventType>
//	X-Strcalc-Tenant:       <event.TenantID>
//	X-Strcalc-Event-Id:     <event.EventID>
//	X-Hub-Signature-256:    sha256=<hex HMAC-SHA256 of the body>
func (p *WebhookPublisher) Publish(ctx context.Context, topic string, event domain.EventEnvelope) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	sig := p.sign(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(headerTopic, topic)
	req.Header.Set(headerEventType, event.EventType)
	req.Header.Set(headerTenant, event.TenantID)
	req.Header.Set(headerEventID, event.EventID)
	req.Header.Set(headerSignature, "sha256="+sig)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (p *WebhookPublisher) sign(payload []byte) string {
	return Sign(p.secret, payload)
}

// Sign returns the lowercase hex HMAC-SHA256 of payload. Receivers use it to
// check the X-Hub-Signature-256 header.
func Sign(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether header carries the signature of payload under secret.
func Verify(secret, payload []byte, header string) bool {
	want := "sha256=" + Sign(secret, payload)
	return hmac.Equal([]byte(want), []byte(header))
}
