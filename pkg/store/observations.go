package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rewire/rewire/pkg/rewireerr"
	"github.com/rewire/rewire/pkg/rewiretypes"
)

// AppendObservation inserts a new observation, stamping ObservedAt from
// the store's own clock (never client-supplied, per spec.md §3 — this
// is what keeps Invariant O2 true regardless of client clock skew) and
// returns its assigned seq.
func (s *SQLiteStore) AppendObservation(ctx context.Context, expectationID string, kind rewiretypes.ObservationKind, meta []byte) (int64, error) {
	if !rewiretypes.ValidKind(kind) {
		return 0, rewireerr.Validation("kind must be start|end|ping|ack")
	}
	if len(meta) > rewiretypes.MaxMetaBytes {
		return 0, rewireerr.Validation(fmt.Sprintf("meta exceeds %d bytes", rewiretypes.MaxMetaBytes))
	}
	now := s.clock.Now()
	var seq int64
	err := s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, `
			INSERT INTO observations (expectation_id, kind, observed_at, meta) VALUES (?, ?, ?, ?)`,
			expectationID, string(kind), now, meta)
		if err != nil {
			return rewireerr.Store("append_observation", err)
		}
		seq, err = res.LastInsertId()
		if err != nil {
			return rewireerr.Store("append_observation: last insert id", err)
		}
		return nil
	})
	return seq, err
}

// RecentObservations returns up to limit observations for expectationID,
// newest-first.
func (s *SQLiteStore) RecentObservations(ctx context.Context, expectationID string, limit int) ([]rewiretypes.Observation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, expectation_id, kind, observed_at, meta
		FROM observations WHERE expectation_id = ? ORDER BY observed_at DESC, seq DESC LIMIT ?`,
		expectationID, limit)
	if err != nil {
		return nil, rewireerr.Store("recent_observations", err)
	}
	defer rows.Close()

	var out []rewiretypes.Observation
	for rows.Next() {
		var o rewiretypes.Observation
		var kind string
		if err := rows.Scan(&o.Seq, &o.ExpectationID, &kind, &o.ObservedAt, &o.Meta); err != nil {
			return nil, rewireerr.Store("recent_observations", err)
		}
		o.Kind = rewiretypes.ObservationKind(kind)
		out = append(out, o)
	}
	return out, rows.Err()
}

// LastObservationAt returns the ObservedAt of the newest observation for
// expectationID, optionally filtered to one kind. Returns nil if none
// exists.
func (s *SQLiteStore) LastObservationAt(ctx context.Context, expectationID string, kind *rewiretypes.ObservationKind) (*int64, error) {
	var row *sql.Row
	if kind != nil {
		row = s.db.QueryRowContext(ctx, `
			SELECT observed_at FROM observations
			WHERE expectation_id = ? AND kind = ?
			ORDER BY observed_at DESC, seq DESC LIMIT 1`, expectationID, string(*kind))
	} else {
		row = s.db.QueryRowContext(ctx, `
			SELECT observed_at FROM observations
			WHERE expectation_id = ?
			ORDER BY observed_at DESC, seq DESC LIMIT 1`, expectationID)
	}
	var at int64
	if err := row.Scan(&at); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, rewireerr.Store("last_observation_at", err)
	}
	return &at, nil
}
