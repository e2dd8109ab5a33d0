package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/dsingest/idgen"
)

// AuditEntry is a single operation record in the audit trail.
type AuditEntry struct {
	EntryID       string
	Timestamp     time.Time
	OperationType string // e.g. "dataset.create", "dataset.list"
	RequestID     string
	Parameters    string // JSON
	Result        string // JSON
	ErrorMessage  string
	DurationMs    int64
	Status        string // "success" or "error"
}

// AuditLogger persists operation-level audit entries asynchronously.
type AuditLogger struct {
	db        *sql.DB
	newID     idgen.Generator
	ch        chan *AuditEntry
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// AuditOption configures an AuditLogger.
type AuditOption func(*AuditLogger)

// WithAuditIDGenerator sets a custom ID generator for audit entry IDs.
func WithAuditIDGenerator(gen idgen.Generator) AuditOption {
	return func(a *AuditLogger) { a.newID = gen }
}

// NewAuditLogger creates an async audit logger. Recommended bufferSize: 1000.
func NewAuditLogger(db *sql.DB, bufferSize int, opts ...AuditOption) *AuditLogger {
	a := &AuditLogger{
		db:    db,
		newID: idgen.Prefixed("aud_", idgen.Default),
		ch:    make(chan *AuditEntry, bufferSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	go a.flushLoop()
	return a
}

// NewAuditEntry builds an AuditEntry from operation parameters, result and
// error. Params and result are marshalled to JSON.
func (a *AuditLogger) NewAuditEntry(operation string, params, result any, err error, duration time.Duration) *AuditEntry {
	entry := &AuditEntry{
		EntryID:       a.newID(),
		Timestamp:     time.Now(),
		OperationType: operation,
		DurationMs:    duration.Milliseconds(),
		Status:        "success",
	}
	if params != nil {
		if b, e := json.Marshal(params); e == nil {
			entry.Parameters = string(b)
		}
	}
	if result != nil {
		if b, e := json.Marshal(result); e == nil {
			entry.Result = string(b)
		}
	}
	if err != nil {
		entry.Status = "error"
		entry.ErrorMessage = err.Error()
	}
	return entry
}

// Log inserts an audit entry synchronously.
func (a *AuditLogger) Log(ctx context.Context, entry *AuditEntry) error {
	return a.insert(ctx, entry)
}

// LogAsync queues an entry for async persistence. Falls back to a
// synchronous insert if the buffer is full.
func (a *AuditLogger) LogAsync(entry *AuditEntry) {
	select {
	case a.ch <- entry:
	default:
		slog.Warn("observability: audit buffer full, sync fallback", "operation", entry.OperationType)
		if err := a.insert(context.Background(), entry); err != nil {
			slog.Error("observability: audit sync fallback failed", "error", err)
		}
	}
}

// Close drains the buffer and stops the flush loop. Idempotent: the
// logger is both owned by the ingester and deferred in main, so Close
// runs twice on a normal shutdown.
func (a *AuditLogger) Close() {
	a.closeOnce.Do(func() {
		close(a.stop)
		<-a.done
	})
}

func (a *AuditLogger) flushLoop() {
	defer close(a.done)
	for {
		select {
		case entry := <-a.ch:
			if err := a.insert(context.Background(), entry); err != nil {
				slog.Error("observability: audit insert failed", "error", err)
			}
		case <-a.stop:
			for {
				select {
				case entry := <-a.ch:
					if err := a.insert(context.Background(), entry); err != nil {
						slog.Error("observability: audit drain failed", "error", err)
					}
				default:
					return
				}
			}
		}
	}
}

func (a *AuditLogger) insert(ctx context.Context, entry *AuditEntry) error {
	params := entry.Parameters
	if params == "" {
		params = "{}"
	}
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO audit_log (entry_id, timestamp, operation_type, request_id, parameters, result, error_message, duration_ms, status)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		entry.EntryID, entry.Timestamp.Unix(), entry.OperationType, entry.RequestID,
		params, entry.Result, entry.ErrorMessage, entry.DurationMs, entry.Status,
	)
	return err
}
