package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookNotifier POSTs the structured Payload as JSON to destination.
// Grounded directly on the teacher's pkg/shared/httputil.go PostJSON:
// same timeout-bounded http.Client and status-code-range error
// convention, adapted to carry a fixed violation/trial payload instead
// of an arbitrary caller-supplied body; the only header set is
// Content-Type.
type WebhookNotifier struct {
	client *http.Client
}

// NewWebhookNotifier returns a WebhookNotifier whose HTTP client times
// out after timeout.
func NewWebhookNotifier(timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{client: &http.Client{Timeout: timeout}}
}

// Deliver ignores subject/body (webhooks carry the structured payload
// only, per spec.md §6) and POSTs payload as JSON to destination.
func (w *WebhookNotifier) Deliver(ctx context.Context, destination, _, _ string, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, destination, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: do request: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: http %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
