package publish

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"
)

// Webhook posts capture telemetry as JSON, signed with HMAC-SHA256.
// Headers: X-Snapgate-Capture-ID, X-Snapgate-Signature
type Webhook struct {
	client       *http.Client
	url          string
	secret       string
	includeImage bool
}

// NewWebhook creates a webhook publisher. timeout <= 0 defaults to 30s.
func NewWebhook(url, secret string, timeout time.Duration, includeImage bool) *Webhook {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Webhook{
		client:       &http.Client{Timeout: timeout},
		url:          url,
		secret:       secret,
		includeImage: includeImage,
	}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Publish(ctx context.Context, rec Record) (string, error) {
	body, err := marshalTelemetry(rec, w.includeImage)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Snapgate-Capture-ID", rec.ID)
	req.Header.Set("X-Snapgate-Signature", computeSignature(w.secret, body))

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return w.url, nil
}

func computeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature is for receivers to verify incoming webhooks.
func VerifySignature(secret string, body []byte, signature string) bool {
	expected := computeSignature(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
