package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rewire/rewire/pkg/rewireerr"
	"github.com/rewire/rewire/pkg/rewiretypes"
)

// CreateExpectation inserts exp, stamping CreatedAt/UpdatedAt from the
// store's clock.
func (s *SQLiteStore) CreateExpectation(ctx context.Context, exp rewiretypes.Expectation) error {
	params, err := paramsJSON(exp)
	if err != nil {
		return rewireerr.Validation(err.Error())
	}
	now := s.clock.Now()
	exp.CreatedAt, exp.UpdatedAt = now, now
	return s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO expectations
				(id, type, name, owner_contact, expected_interval_s, tolerance_s, params_json, enabled, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			exp.ID, string(exp.Type), exp.Name, exp.OwnerContact, exp.ExpectedIntervalS, exp.ToleranceS,
			params, boolToInt(exp.Enabled), exp.CreatedAt, exp.UpdatedAt)
		if err != nil {
			return rewireerr.Store("create_expectation", err)
		}
		return nil
	})
}

// GetExpectation returns the expectation with id, or a NotFound error.
func (s *SQLiteStore) GetExpectation(ctx context.Context, id string) (rewiretypes.Expectation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, name, owner_contact, expected_interval_s, tolerance_s, params_json, enabled, created_at, updated_at
		FROM expectations WHERE id = ?`, id)
	exp, err := scanExpectation(row)
	if errors.Is(err, rewireerr.ErrNotFound) {
		return exp, rewireerr.NotFound("expectation", id)
	}
	return exp, err
}

func scanExpectation(row *sql.Row) (rewiretypes.Expectation, error) {
	var exp rewiretypes.Expectation
	var typ string
	var enabled int
	var params string
	if err := row.Scan(&exp.ID, &typ, &exp.Name, &exp.OwnerContact, &exp.ExpectedIntervalS,
		&exp.ToleranceS, &params, &enabled, &exp.CreatedAt, &exp.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rewiretypes.Expectation{}, rewireerr.NotFound("expectation", "")
		}
		return rewiretypes.Expectation{}, rewireerr.Store("get_expectation", err)
	}
	exp.Type = rewiretypes.ExpectationType(typ)
	exp.Enabled = enabled != 0
	if err := parseParams(&exp, params); err != nil {
		return exp, err
	}
	return exp, nil
}

// ListEnabled returns every expectation with Enabled=true, in id order.
func (s *SQLiteStore) ListEnabled(ctx context.Context) ([]rewiretypes.Expectation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, name, owner_contact, expected_interval_s, tolerance_s, params_json, enabled, created_at, updated_at
		FROM expectations WHERE enabled = 1 ORDER BY id`)
	if err != nil {
		return nil, rewireerr.Store("list_enabled", err)
	}
	defer rows.Close()

	var out []rewiretypes.Expectation
	for rows.Next() {
		var exp rewiretypes.Expectation
		var typ string
		var enabled int
		var params string
		if err := rows.Scan(&exp.ID, &typ, &exp.Name, &exp.OwnerContact, &exp.ExpectedIntervalS,
			&exp.ToleranceS, &params, &enabled, &exp.CreatedAt, &exp.UpdatedAt); err != nil {
			return nil, rewireerr.Store("list_enabled", err)
		}
		exp.Type = rewiretypes.ExpectationType(typ)
		exp.Enabled = enabled != 0
		if err := parseParams(&exp, params); err != nil {
			// Not returned here: the row is listed with zeroed params,
			// and CheckerLoop's own GetExpectation call for it surfaces
			// the ParamParseError, raises a config_error violation and
			// skips this one expectation. ListEnabled itself must not
			// fail the whole tick.
			exp.ScheduleParams = rewiretypes.ScheduleParams{}
			exp.AlertPathParams = rewiretypes.AlertPathParams{}
		}
		out = append(out, exp)
	}
	return out, rows.Err()
}

// SetEnabled flips the Enabled flag and bumps UpdatedAt.
func (s *SQLiteStore) SetEnabled(ctx context.Context, id string, enabled bool) error {
	now := s.clock.Now()
	return s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, `UPDATE expectations SET enabled = ?, updated_at = ? WHERE id = ?`,
			boolToInt(enabled), now, id)
		if err != nil {
			return rewireerr.Store("set_enabled", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return rewireerr.NotFound("expectation", id)
		}
		return nil
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
