//go:build sqlite

package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // CGO-less SQLite driver
)

// SQLiteLogger is a SQLite-backed implementation of Logger.
type SQLiteLogger struct {
	db *sql.DB
}

// NewSQLiteLogger creates a new SQLite-backed audit logger.
func NewSQLiteLogger(dsn string) (*SQLiteLogger, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &SQLiteLogger{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteLoggerFromDB creates a SQLite-backed audit logger on an
// existing connection, sharing the session store's database.
func NewSQLiteLoggerFromDB(db *sql.DB) (*SQLiteLogger, error) {
	s := &SQLiteLogger{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteLogger) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_events (
			id TEXT PRIMARY KEY,
			timestamp TEXT NOT NULL,
			actor TEXT NOT NULL,
			actor_type TEXT NOT NULL,
			action TEXT NOT NULL,
			target TEXT,
			detail TEXT,
			request_id TEXT,
			ip_address TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_audit_events_actor ON audit_events(actor);
		CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp);
	`)
	return err
}

// Close closes the database connection.
func (s *SQLiteLogger) Close() error {
	return s.db.Close()
}

// Log records an audit event to the database.
func (s *SQLiteLogger) Log(ctx context.Context, event *Event) error {
	if event == nil {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	var detailJSON sql.NullString
	if event.Detail != nil {
		if data, err := json.Marshal(event.Detail); err == nil {
			detailJSON = sql.NullString{String: string(data), Valid: true}
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, timestamp, actor, actor_type, action, target, detail, request_id, ip_address)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.ID,
		event.Timestamp.Format(time.RFC3339Nano),
		event.Actor,
		event.ActorType,
		event.Action,
		sql.NullString{String: event.Target, Valid: event.Target != ""},
		detailJSON,
		sql.NullString{String: event.RequestID, Valid: event.RequestID != ""},
		sql.NullString{String: event.IPAddress, Valid: event.IPAddress != ""},
	)
	return err
}

// List retrieves audit events with optional filtering.
func (s *SQLiteLogger) List(ctx context.Context, opts ListOptions) ([]*Event, int, error) {
	where := "1=1"
	args := []any{}

	if opts.Actor != "" {
		where += " AND actor = ?"
		args = append(args, opts.Actor)
	}
	if opts.Action != "" {
		where += " AND action = ?"
		args = append(args, opts.Action)
	}
	if opts.Since != nil {
		where += " AND timestamp >= ?"
		args = append(args, opts.Since.Format(time.RFC3339Nano))
	}
	if opts.Until != nil {
		where += " AND timestamp <= ?"
		args = append(args, opts.Until.Format(time.RFC3339Nano))
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM audit_events WHERE " + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.Limit > 1000 {
		opts.Limit = 1000
	}

	query := "SELECT id, timestamp, actor, actor_type, action, target, detail, request_id, ip_address FROM audit_events WHERE " + where + " ORDER BY timestamp DESC LIMIT ? OFFSET ?"
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, e)
	}

	return events, total, rows.Err()
}

// GetByActor retrieves events for one principal.
func (s *SQLiteLogger) GetByActor(ctx context.Context, actor string) ([]*Event, error) {
	events, _, err := s.List(ctx, ListOptions{Actor: actor, Limit: 1000})
	return events, err
}

func scanEvent(rows *sql.Rows) (*Event, error) {
	var e Event
	var timestamp string
	var target, detailJSON, requestID, ipAddress sql.NullString

	if err := rows.Scan(&e.ID, &timestamp, &e.Actor, &e.ActorType, &e.Action, &target, &detailJSON, &requestID, &ipAddress); err != nil {
		return nil, err
	}

	e.Timestamp, _ = time.Parse(time.RFC3339Nano, timestamp)
	e.Target = target.String
	e.RequestID = requestID.String
	e.IPAddress = ipAddress.String

	if detailJSON.Valid && detailJSON.String != "" {
		var detail map[string]any
		if err := json.Unmarshal([]byte(detailJSON.String), &detail); err == nil {
			e.Detail = detail
		}
	}
	return &e, nil
}
