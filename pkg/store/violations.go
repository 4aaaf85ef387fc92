package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rewire/rewire/pkg/rewireerr"
	"github.com/rewire/rewire/pkg/rewiretypes"
)

// OpenViolation returns the currently-open violation for
// (expectationID, code), or (zero, false, nil) if none is open.
// Invariant V1 guarantees at most one row matches.
func (s *SQLiteStore) OpenViolation(ctx context.Context, expectationID string, code rewiretypes.ViolationCode) (rewiretypes.Violation, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, expectation_id, code, detected_at, message, evidence_json, is_open, last_notified_at
		FROM violations WHERE expectation_id = ? AND code = ? AND is_open = 1`,
		expectationID, string(code))
	v, ok, err := scanViolation(row)
	return v, ok, err
}

func scanViolation(row *sql.Row) (rewiretypes.Violation, bool, error) {
	var v rewiretypes.Violation
	var code string
	var isOpen int
	var evidenceJSON string
	var lastNotified sql.NullInt64
	if err := row.Scan(&v.ID, &v.ExpectationID, &code, &v.DetectedAt, &v.Message, &evidenceJSON, &isOpen, &lastNotified); err != nil {
		if err == sql.ErrNoRows {
			return rewiretypes.Violation{}, false, nil
		}
		return rewiretypes.Violation{}, false, rewireerr.Store("open_violation", err)
	}
	v.Code = rewiretypes.ViolationCode(code)
	v.IsOpen = isOpen != 0
	if lastNotified.Valid {
		n := lastNotified.Int64
		v.LastNotifiedAt = &n
	}
	if err := json.Unmarshal([]byte(evidenceJSON), &v.Evidence); err != nil {
		return v, true, rewireerr.Store("open_violation: decode evidence", err)
	}
	return v, true, nil
}

// CreateViolation inserts a new open violation row and returns its
// assigned id. Invariant V2 (non-empty evidence) is the caller's
// responsibility (Reconciler never calls this with empty evidence).
func (s *SQLiteStore) CreateViolation(ctx context.Context, v rewiretypes.Violation) (int64, error) {
	evidence, err := json.Marshal(v.Evidence)
	if err != nil {
		return 0, rewireerr.Store("create_violation: encode evidence", err)
	}
	var id int64
	err = s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, `
			INSERT INTO violations (expectation_id, code, detected_at, message, evidence_json, is_open, last_notified_at)
			VALUES (?, ?, ?, ?, ?, 1, NULL)`,
			v.ExpectationID, string(v.Code), v.DetectedAt, v.Message, string(evidence))
		if err != nil {
			return rewireerr.Store("create_violation", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return rewireerr.Store("create_violation: last insert id", err)
		}
		return nil
	})
	return id, err
}

// CloseViolations closes every currently-open row for expectationID
// matching any of codes. Idempotent: closing an already-closed or
// nonexistent code is a no-op (spec.md §8 round-trip law).
func (s *SQLiteStore) CloseViolations(ctx context.Context, expectationID string, codes []rewiretypes.ViolationCode) error {
	if len(codes) == 0 {
		return nil
	}
	return s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		for _, code := range codes {
			if _, err := conn.ExecContext(ctx, `
				UPDATE violations SET is_open = 0
				WHERE expectation_id = ? AND code = ? AND is_open = 1`,
				expectationID, string(code)); err != nil {
				return rewireerr.Store("close_violations", err)
			}
		}
		return nil
	})
}

// MarkNotified stamps last_notified_at on violationID with the store's
// current clock value.
func (s *SQLiteStore) MarkNotified(ctx context.Context, violationID int64) error {
	now := s.clock.Now()
	return s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, `UPDATE violations SET last_notified_at = ? WHERE id = ?`, now, violationID)
		if err != nil {
			return rewireerr.Store("mark_notified", err)
		}
		return nil
	})
}
