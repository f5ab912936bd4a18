package storage

// schema is applied on every open; all statements are idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
    key         TEXT PRIMARY KEY,
    fingerprint TEXT NOT NULL,
    payload     BLOB NOT NULL,
    created_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS metric_samples (
    id          TEXT PRIMARY KEY,
    metric      TEXT NOT NULL,
    session_id  TEXT NOT NULL,
    value       REAL NOT NULL,
    recorded_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_samples_metric_time
    ON metric_samples(metric, recorded_at);

CREATE TABLE IF NOT EXISTS session_snapshots (
    session_id TEXT PRIMARY KEY,
    tier       INTEGER NOT NULL,
    loop_index INTEGER NOT NULL,
    max_loops  INTEGER NOT NULL,
    mode       INTEGER NOT NULL,
    status     INTEGER NOT NULL,
    violations TEXT NOT NULL,
    taken_at   TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS session_log (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    phase      TEXT NOT NULL,
    message    TEXT NOT NULL,
    at         TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_log_session
    ON session_log(session_id, id);
`
