// Package store implements the transactional Store of spec.md §4.B
// over SQLite (github.com/mattn/go-sqlite3), the one persistence
// capability this repo concretely implements; spec.md treats the Store
// as "a capability, not a library", so any type satisfying the Store
// interface below is a valid swap-in.
//
// Grounded on the open/pragma/initSchema idiom in
// _examples/other_examples/...hazyhaar-GoClode__internal-core-db.go.go.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/rewire/rewire/pkg/clock"
	"github.com/rewire/rewire/pkg/rewireerr"
	"github.com/rewire/rewire/pkg/rewiretypes"
)

// SQLiteStore is the concrete Store, backed by a single *sql.DB in WAL
// mode. append_observation and Reconciler writes each run inside their
// own BEGIN IMMEDIATE transaction, so two expectations' writers never
// contend for the same row while operations on one expectation
// serialize through SQLite's own locking (spec.md §5).
type SQLiteStore struct {
	db    *sql.DB
	clock clock.Clock
	log   zerolog.Logger
}

// Open opens (creating if absent) the SQLite file at path, enables WAL
// and a busy timeout so readers never block behind the checker's
// writes, and applies the schema.
func Open(path string, clk clock.Clock, log zerolog.Logger) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=ON&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db, clock: clk, log: log.With().Str("component", "store").Logger()}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// withImmediateTx runs fn inside a BEGIN IMMEDIATE transaction on a
// single reserved connection, committing on success and rolling back on
// error or panic. BEGIN IMMEDIATE (rather than the deferred BEGIN that
// database/sql's own BeginTx issues) takes SQLite's write lock up
// front, so two concurrent writers fail fast with SQLITE_BUSY instead
// of deadlocking partway through.
func (s *SQLiteStore) withImmediateTx(ctx context.Context, fn func(*sql.Conn) error) (err error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return rewireerr.Store("acquire conn", err)
	}
	defer conn.Close()

	if _, err = conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return rewireerr.Store("begin immediate", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_, _ = conn.ExecContext(ctx, "ROLLBACK")
			panic(p)
		}
	}()
	if txErr := fn(conn); txErr != nil {
		_, _ = conn.ExecContext(ctx, "ROLLBACK")
		return txErr
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return rewireerr.Store("commit", err)
	}
	return nil
}

func scheduleParamsJSON(p rewiretypes.ScheduleParams) (string, error) {
	b, err := json.Marshal(p)
	return string(b), err
}

func alertPathParamsJSON(p rewiretypes.AlertPathParams) (string, error) {
	b, err := json.Marshal(p)
	return string(b), err
}

// paramsJSON marshals whichever params field applies to exp.Type.
func paramsJSON(exp rewiretypes.Expectation) (string, error) {
	switch exp.Type {
	case rewiretypes.TypeSchedule:
		return scheduleParamsJSON(exp.ScheduleParams)
	case rewiretypes.TypeAlertPath:
		return alertPathParamsJSON(exp.AlertPathParams)
	default:
		return "", fmt.Errorf("unknown expectation type %q", exp.Type)
	}
}

// parseParams unmarshals paramsJSON into exp's type-specific field,
// returning a ParamParseError (wrapped) on malformed JSON so the caller
// can raise a config_error violation instead of crashing the tick.
func parseParams(exp *rewiretypes.Expectation, raw string) error {
	switch exp.Type {
	case rewiretypes.TypeSchedule:
		var p rewiretypes.ScheduleParams
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return rewireerr.ParamParse(exp.ID, err)
		}
		exp.ScheduleParams = p
	case rewiretypes.TypeAlertPath:
		var p rewiretypes.AlertPathParams
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return rewireerr.ParamParse(exp.ID, err)
		}
		exp.AlertPathParams = p
	default:
		return fmt.Errorf("unknown expectation type %q", exp.Type)
	}
	return nil
}
