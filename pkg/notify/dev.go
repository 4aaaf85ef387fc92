package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// DevNotifier logs violation/trial messages to stderr instead of
// delivering them, selected when neither an SMTP host nor a webhook
// timeout is configured (spec.md §6). Grounded on the teacher's pervasive
// component-scoped zerolog.Logger field idiom.
type DevNotifier struct {
	log zerolog.Logger
}

// NewDevNotifier returns a DevNotifier that logs through log.
func NewDevNotifier(log zerolog.Logger) *DevNotifier {
	return &DevNotifier{log: log.With().Str("component", "notify.dev").Logger()}
}

// Deliver logs the notification and never fails.
func (d *DevNotifier) Deliver(_ context.Context, destination, subject, body string, payload Payload) error {
	d.log.Info().
		Str("destination", destination).
		Str("subject", subject).
		Str("body", body).
		Interface("payload", payload).
		Msg("dev notifier: would deliver")
	return nil
}
