// Package trial implements the TrialManager of spec.md §4.D: the
// lifecycle of synthetic alert trials used to prove an alert_path
// delivery channel actually works.
package trial

import (
	"context"
	"fmt"

	"github.com/rewire/rewire/pkg/clock"
	"github.com/rewire/rewire/pkg/ids"
	"github.com/rewire/rewire/pkg/rewiretypes"
	"github.com/rewire/rewire/pkg/store"
)

// Manager issues, acks, and expires AlertTrials.
type Manager struct {
	store store.Store
	clock clock.Clock
}

// New returns a Manager backed by s and clk.
func New(s store.Store, clk clock.Clock) *Manager {
	return &Manager{store: s, clock: clk}
}

// Issue generates an unguessable trial id, inserts a pending row, and
// appends a ping observation carrying the ack URL in its meta — the
// trial is itself observable history, so the alert-path evaluator's
// "last observation of any kind" rule sees it too.
func (m *Manager) Issue(ctx context.Context, expectationID, ackURLPrefix string) (rewiretypes.AlertTrial, error) {
	token, err := ids.NewTrialToken()
	if err != nil {
		return rewiretypes.AlertTrial{}, fmt.Errorf("trial: issue: %w", err)
	}
	now := m.clock.Now()
	t := rewiretypes.AlertTrial{
		ID:            token,
		ExpectationID: expectationID,
		SentAt:        now,
		Status:        rewiretypes.TrialPending,
	}
	if err := m.store.CreateTrial(ctx, t); err != nil {
		return rewiretypes.AlertTrial{}, err
	}
	ackURL := ackURLPrefix + token
	if _, err := m.store.AppendObservation(ctx, expectationID, rewiretypes.KindPing, []byte(ackURL)); err != nil {
		return rewiretypes.AlertTrial{}, err
	}
	return t, nil
}

// Ack transitions trialID pending->acked. Returns false (no error) for
// an already-acked/expired/unknown trial — re-ack is a no-op per
// spec.md §4.D.
func (m *Manager) Ack(ctx context.Context, trialID string) (bool, error) {
	return m.store.AckTrial(ctx, trialID)
}

// Expire transitions trialID pending->expired.
func (m *Manager) Expire(ctx context.Context, trialID string) error {
	return m.store.ExpireTrial(ctx, trialID)
}

// Pending returns the currently-pending trials for expectationID.
func (m *Manager) Pending(ctx context.Context, expectationID string) ([]rewiretypes.AlertTrial, error) {
	return m.store.PendingTrials(ctx, expectationID)
}
