package store

// schema is applied with CREATE ... IF NOT EXISTS at Open time, so
// opening an existing database file is idempotent. Grounded on the
// initSchema-on-open idiom in
// _examples/other_examples/...hazyhaar-GoClode__internal-core-db.go.go.
const schema = `
CREATE TABLE IF NOT EXISTS expectations (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	name TEXT NOT NULL,
	owner_contact TEXT NOT NULL,
	expected_interval_s INTEGER NOT NULL,
	tolerance_s INTEGER NOT NULL,
	params_json TEXT NOT NULL,
	enabled INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS observations (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	expectation_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	observed_at INTEGER NOT NULL,
	meta BLOB
);
CREATE INDEX IF NOT EXISTS idx_observations_exp_time ON observations(expectation_id, observed_at DESC);

CREATE TABLE IF NOT EXISTS alert_trials (
	id TEXT PRIMARY KEY,
	expectation_id TEXT NOT NULL,
	sent_at INTEGER NOT NULL,
	acked_at INTEGER,
	status TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trials_exp_status ON alert_trials(expectation_id, status);

CREATE TABLE IF NOT EXISTS violations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	expectation_id TEXT NOT NULL,
	code TEXT NOT NULL,
	detected_at INTEGER NOT NULL,
	message TEXT NOT NULL,
	evidence_json TEXT NOT NULL,
	is_open INTEGER NOT NULL,
	last_notified_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_violations_exp_code_open ON violations(expectation_id, code, is_open);
`
