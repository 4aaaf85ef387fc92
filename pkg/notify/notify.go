// Package notify implements the NotifierPort of spec.md §4.G: a single
// Notifier interface with one SMTP, one webhook, and one dev-mode
// (stderr) implementation. Every Deliver call runs under a deadline of
// check_every_s/2 (spec.md §5), set via context.WithTimeout at the call
// site in pkg/reconcile, not inside Notifier itself, so the deadline
// tracks the actual configured tick period; each implementation honors
// the context's deadline.
package notify

import "context"

// Payload is the structured body handed to webhook/dev notifiers
// alongside the human-readable subject/body. Its fields mirror the
// webhook JSON contract in spec.md §6.
type Payload struct {
	ExpectationID string         `json:"expectation_id"`
	Name          string         `json:"name"`
	Type          string         `json:"type"`
	Code          string         `json:"code"`
	Message       string         `json:"message"`
	Evidence      map[string]any `json:"evidence"`
	DetectedAt    int64          `json:"detected_at"`
}

// Notifier is the uniform sink spec.md §4.G describes. A failed Deliver
// must not be fatal to the caller: pkg/reconcile logs it and leaves
// last_notified_at untouched so the next renotify interval retries
// (spec.md §4.G, §7 NotifierError).
type Notifier interface {
	Deliver(ctx context.Context, destination, subject, body string, payload Payload) error
}
