package store

import (
	"context"
	"database/sql"

	"github.com/rewire/rewire/pkg/rewireerr"
	"github.com/rewire/rewire/pkg/rewiretypes"
)

// CreateTrial inserts a pending trial. trial.SentAt is stamped by the
// caller (TrialManager), not the Store, since issuing a trial and
// appending its ping observation must share one timestamp.
func (s *SQLiteStore) CreateTrial(ctx context.Context, trial rewiretypes.AlertTrial) error {
	return s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO alert_trials (id, expectation_id, sent_at, acked_at, status)
			VALUES (?, ?, ?, NULL, ?)`,
			trial.ID, trial.ExpectationID, trial.SentAt, string(rewiretypes.TrialPending))
		if err != nil {
			return rewireerr.Store("create_trial", err)
		}
		return nil
	})
}

// AckTrial atomically transitions a pending trial to acked, returning
// true iff this call performed the transition (Invariant T3: the DAG
// transition pending->acked happens at most once, enforced by the
// WHERE clause matching only while status is still pending).
func (s *SQLiteStore) AckTrial(ctx context.Context, id string) (bool, error) {
	var acked bool
	err := s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		now := s.clock.Now()
		res, err := conn.ExecContext(ctx, `
			UPDATE alert_trials SET status = ?, acked_at = ?
			WHERE id = ? AND status = ?`,
			string(rewiretypes.TrialAcked), now, id, string(rewiretypes.TrialPending))
		if err != nil {
			return rewireerr.Store("ack_trial", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return rewireerr.Store("ack_trial: rows affected", err)
		}
		acked = n > 0
		return nil
	})
	return acked, err
}

// ExpireTrial transitions a pending trial to expired. A no-op (but not
// an error) if the trial is already acked or expired.
func (s *SQLiteStore) ExpireTrial(ctx context.Context, id string) error {
	return s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, `
			UPDATE alert_trials SET status = ?
			WHERE id = ? AND status = ?`,
			string(rewiretypes.TrialExpired), id, string(rewiretypes.TrialPending))
		if err != nil {
			return rewireerr.Store("expire_trial", err)
		}
		return nil
	})
}

// PendingTrials returns every trial in the pending state for
// expectationID.
func (s *SQLiteStore) PendingTrials(ctx context.Context, expectationID string) ([]rewiretypes.AlertTrial, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, expectation_id, sent_at, acked_at, status
		FROM alert_trials WHERE expectation_id = ? AND status = ?`,
		expectationID, string(rewiretypes.TrialPending))
	if err != nil {
		return nil, rewireerr.Store("pending_trials", err)
	}
	defer rows.Close()

	var out []rewiretypes.AlertTrial
	for rows.Next() {
		var t rewiretypes.AlertTrial
		var status string
		var ackedAt sql.NullInt64
		if err := rows.Scan(&t.ID, &t.ExpectationID, &t.SentAt, &ackedAt, &status); err != nil {
			return nil, rewireerr.Store("pending_trials", err)
		}
		t.Status = rewiretypes.TrialStatus(status)
		if ackedAt.Valid {
			v := ackedAt.Int64
			t.AckedAt = &v
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
