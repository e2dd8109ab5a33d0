package observability

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/hazyhaar/dsingest/idgen"
)

// IngestEvent is a domain-level event recorded against the event log.
type IngestEvent struct {
	EventType string // "dataset", "file"
	EntityID  string // dataset ID or output filename
	RequestID string
	Action    string // "created", "processed", "dedup_skipped", "raw_stored", "decode_failed"
	Details   string // optional JSON
	Success   bool
}

// EventLogger writes ingest events.
type EventLogger struct {
	db    *sql.DB
	newID idgen.Generator
}

// EventLoggerOption configures an EventLogger.
type EventLoggerOption func(*EventLogger)

// WithEventIDGenerator sets a custom ID generator for event IDs.
func WithEventIDGenerator(gen idgen.Generator) EventLoggerOption {
	return func(l *EventLogger) { l.newID = gen }
}

// NewEventLogger creates a logger backed by the given observability database.
func NewEventLogger(db *sql.DB, opts ...EventLoggerOption) *EventLogger {
	l := &EventLogger{
		db:    db,
		newID: idgen.Prefixed("evt_", idgen.Default),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// LogEvent records an ingest event. Errors are logged via slog but never
// propagate, so a failing observability store never blocks ingestion.
func (l *EventLogger) LogEvent(ctx context.Context, event IngestEvent) {
	success := 0
	if event.Success {
		success = 1
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO ingest_events (event_id, event_type, entity_id, request_id, action, details, success)
		VALUES (?,?,?,?,?,?,?)`,
		l.newID(), event.EventType, event.EntityID, event.RequestID,
		event.Action, event.Details, success,
	)
	if err != nil {
		slog.Error("observability: log event failed", "action", event.Action, "error", err)
	}
}

// CountByAction returns how many events carry the given action. Used by the
// health endpoint counters.
func (l *EventLogger) CountByAction(ctx context.Context, action string) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ingest_events WHERE action = ?`, action).Scan(&n)
	return n, err
}
