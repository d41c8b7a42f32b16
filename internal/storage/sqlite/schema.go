package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	title           TEXT NOT NULL,
	description     TEXT,
	source          TEXT NOT NULL,
	source_ref      TEXT,
	requested_model TEXT,
	priority        INTEGER NOT NULL DEFAULT 0,
	status          TEXT NOT NULL,
	work_dir        TEXT,
	branch_name     TEXT,
	created_at      DATETIME NOT NULL,
	started_at      DATETIME,
	finished_at     DATETIME,
	actual_cost_usd REAL NOT NULL DEFAULT 0,
	actual_tokens   INTEGER NOT NULL DEFAULT 0,
	result_summary  TEXT,
	retry_count     INTEGER NOT NULL DEFAULT 0,
	model_used      TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_dedup
	ON tasks(source, source_ref)
	WHERE source_ref IS NOT NULL AND source != 'manual';

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_status_priority ON tasks(status, priority DESC, created_at ASC);

CREATE TABLE IF NOT EXISTS usage_samples (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME NOT NULL,
	active    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_usage_samples_timestamp ON usage_samples(timestamp);

CREATE TABLE IF NOT EXISTS quota_window (
	id                 INTEGER PRIMARY KEY CHECK (id = 1),
	window_started_at  DATETIME NOT NULL,
	consumed           TEXT NOT NULL,
	last_correction_at DATETIME
);

CREATE TABLE IF NOT EXISTS quota_snapshots (
	id                TEXT PRIMARY KEY,
	timestamp         DATETIME NOT NULL,
	window_started_at DATETIME NOT NULL,
	consumed          TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_quota_snapshots_timestamp ON quota_snapshots(timestamp);

CREATE TABLE IF NOT EXISTS budget_state (
	day             TEXT PRIMARY KEY,
	daily_spent_usd REAL NOT NULL DEFAULT 0,
	task_spent_usd  TEXT NOT NULL DEFAULT '{}',
	last_updated    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS auto_template_runs (
	task_type         TEXT PRIMARY KEY,
	last_completed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS daemon_meta (
	id           INTEGER PRIMARY KEY CHECK (id = 1),
	pid          INTEGER NOT NULL,
	hostname     TEXT NOT NULL,
	started_at   DATETIME NOT NULL,
	last_tick_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	id        TEXT PRIMARY KEY,
	type      TEXT NOT NULL,
	timestamp DATETIME NOT NULL,
	task_id   INTEGER,
	severity  TEXT NOT NULL,
	message   TEXT NOT NULL,
	data      TEXT
);

CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
CREATE INDEX IF NOT EXISTS idx_events_task_id ON events(task_id);
`
