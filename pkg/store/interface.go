package store

import (
	"context"

	"github.com/rewire/rewire/pkg/rewiretypes"
)

// Store is the transactional interface of spec.md §4.B. SQLiteStore is
// the one concrete implementation this repo ships; spec.md treats the
// backend as "a capability, not a library", so any other type
// satisfying Store (e.g. an in-memory fake for tests, or a Postgres
// implementation) is a valid substitute. Reconciler, TrialManager, and
// the HTTP surface all depend on this interface, never on *SQLiteStore
// directly.
type Store interface {
	CreateExpectation(ctx context.Context, exp rewiretypes.Expectation) error
	GetExpectation(ctx context.Context, id string) (rewiretypes.Expectation, error)
	ListEnabled(ctx context.Context) ([]rewiretypes.Expectation, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error

	AppendObservation(ctx context.Context, expectationID string, kind rewiretypes.ObservationKind, meta []byte) (int64, error)
	RecentObservations(ctx context.Context, expectationID string, limit int) ([]rewiretypes.Observation, error)
	LastObservationAt(ctx context.Context, expectationID string, kind *rewiretypes.ObservationKind) (*int64, error)

	CreateTrial(ctx context.Context, trial rewiretypes.AlertTrial) error
	AckTrial(ctx context.Context, id string) (bool, error)
	ExpireTrial(ctx context.Context, id string) error
	PendingTrials(ctx context.Context, expectationID string) ([]rewiretypes.AlertTrial, error)

	OpenViolation(ctx context.Context, expectationID string, code rewiretypes.ViolationCode) (rewiretypes.Violation, bool, error)
	CreateViolation(ctx context.Context, v rewiretypes.Violation) (int64, error)
	CloseViolations(ctx context.Context, expectationID string, codes []rewiretypes.ViolationCode) error
	MarkNotified(ctx context.Context, violationID int64) error
}

var _ Store = (*SQLiteStore)(nil)
