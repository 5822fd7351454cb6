// Package audit records booking and guardrail events for staff review.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/wolfman30/lab-scheduling-assistant/pkg/logging"
)

// EventType names what happened.
type EventType string

const (
	// EventBookingCreated is logged after an appointment is inserted.
	EventBookingCreated EventType = "booking.created"
	// EventBookingConflict is logged when a slot was already taken.
	EventBookingConflict EventType = "booking.conflict"
	// EventGuardrailRewrite is logged when an outgoing reply was rewritten.
	EventGuardrailRewrite EventType = "guardrail.rewrite"
	// EventInputBlocked is logged when a user message never reached the model.
	EventInputBlocked EventType = "input.blocked"
)

// Event is an immutable audit record.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"event_type"`
	Cedula    string          `json:"cedula,omitempty"`
	Studies   []string        `json:"studies,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Logger writes events to the audit_events table.
type Logger struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewLogger creates an audit logger. A nil db yields a logger that only
// writes to the application log.
func NewLogger(db *sql.DB, logger *logging.Logger) *Logger {
	if logger == nil {
		logger = logging.Default()
	}
	return &Logger{db: db, logger: logger}
}

// LogEvent inserts one event.
func (l *Logger) LogEvent(ctx context.Context, event Event) error {
	if l.db == nil {
		return fmt.Errorf("audit: database not configured")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if len(event.Details) == 0 {
		event.Details = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO audit_events (id, event_type, cedula, studies, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := l.db.ExecContext(ctx, query,
		event.ID,
		string(event.Type),
		nullString(event.Cedula),
		pq.Array(event.Studies),
		[]byte(event.Details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to log event: %w", err)
	}
	return nil
}

// Record is the best-effort form used on the request path; failures are
// logged and dropped.
func (l *Logger) Record(ctx context.Context, event Event) {
	if l == nil {
		return
	}
	if l.db == nil {
		l.logger.Debug("audit event", "event_type", event.Type, "cedula", logging.MaskDigits(event.Cedula))
		return
	}
	if err := l.LogEvent(ctx, event); err != nil {
		l.logger.Warn("audit event dropped", "event_type", event.Type, "error", err)
	}
}

// Filter narrows QueryEvents.
type Filter struct {
	Type      EventType
	Cedula    string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

// QueryEvents lists events newest first.
func (l *Logger) QueryEvents(ctx context.Context, filter Filter) ([]Event, error) {
	if l.db == nil {
		return nil, fmt.Errorf("audit: database not configured")
	}
	query := `
		SELECT id, event_type, cedula, studies, details, created_at
		FROM audit_events
		WHERE 1=1
	`
	var args []interface{}
	argIdx := 1
	if filter.Type != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, string(filter.Type))
		argIdx++
	}
	if filter.Cedula != "" {
		query += fmt.Sprintf(" AND cedula = $%d", argIdx)
		args = append(args, filter.Cedula)
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e       Event
			typ     string
			cedula  sql.NullString
			details []byte
		)
		if err := rows.Scan(&e.ID, &typ, &cedula, pq.Array(&e.Studies), &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: failed to scan event: %w", err)
		}
		e.Type = EventType(typ)
		e.Cedula = cedula.String
		e.Details = json.RawMessage(details)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: failed to iterate events: %w", err)
	}
	return events, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
