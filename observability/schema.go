// Package observability records ingestion events and audit entries in a
// dedicated SQLite database. It is strictly best-effort: a failing
// observability store never fails or blocks an ingestion request.
package observability

import "database/sql"

const schema = `
CREATE TABLE IF NOT EXISTS ingest_events (
    event_id    TEXT PRIMARY KEY,
    event_type  TEXT NOT NULL,
    entity_id   TEXT,
    request_id  TEXT,
    action      TEXT NOT NULL,
    details     TEXT,
    success     INTEGER NOT NULL DEFAULT 1,
    created_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_events_type_time
    ON ingest_events(event_type, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_request
    ON ingest_events(request_id);

CREATE TABLE IF NOT EXISTS audit_log (
    entry_id        TEXT PRIMARY KEY,
    timestamp       INTEGER NOT NULL,
    operation_type  TEXT NOT NULL,
    request_id      TEXT,
    parameters      TEXT NOT NULL DEFAULT '{}',
    result          TEXT,
    error_message   TEXT,
    duration_ms     INTEGER,
    status          TEXT NOT NULL,
    created_at      INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_audit_op_time
    ON audit_log(operation_type, timestamp DESC);
`

// Init creates the observability tables if they do not exist.
func Init(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
