//go:build postgres

package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLogger is a PostgreSQL-backed implementation of Logger.
type PostgresLogger struct {
	pool    *pgxpool.Pool
	ownPool bool
}

// NewPostgresLogger creates a new PostgreSQL-backed audit logger.
func NewPostgresLogger(ctx context.Context, databaseURL string) (*PostgresLogger, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	p := &PostgresLogger{pool: pool, ownPool: true}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// NewPostgresLoggerFromPool creates an audit logger sharing an existing pool.
func NewPostgresLoggerFromPool(ctx context.Context, pool *pgxpool.Pool) (*PostgresLogger, error) {
	p := &PostgresLogger{pool: pool}
	if err := p.migrate(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PostgresLogger) migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS audit_events (
			id UUID PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			actor TEXT NOT NULL,
			actor_type TEXT NOT NULL,
			action TEXT NOT NULL,
			target TEXT,
			detail JSONB,
			request_id TEXT,
			ip_address TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_audit_events_actor ON audit_events(actor);
		CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp);
	`)
	if err != nil {
		return fmt.Errorf("migrate audit schema: %w", err)
	}
	return nil
}

// Close releases the pool if this logger created it.
func (p *PostgresLogger) Close() error {
	if p.ownPool {
		p.pool.Close()
	}
	return nil
}

// Log records an audit event.
func (p *PostgresLogger) Log(ctx context.Context, event *Event) error {
	if event == nil {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	var detailJSON []byte
	if event.Detail != nil {
		detailJSON, _ = json.Marshal(event.Detail)
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO audit_events (id, timestamp, actor, actor_type, action, target, detail, request_id, ip_address)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NULLIF($8, ''), NULLIF($9, ''))
	`,
		event.ID, event.Timestamp, event.Actor, event.ActorType, event.Action,
		event.Target, detailJSON, event.RequestID, event.IPAddress,
	)
	return err
}

// List retrieves audit events with optional filtering.
func (p *PostgresLogger) List(ctx context.Context, opts ListOptions) ([]*Event, int, error) {
	where := "1=1"
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if opts.Actor != "" {
		where += " AND actor = " + arg(opts.Actor)
	}
	if opts.Action != "" {
		where += " AND action = " + arg(opts.Action)
	}
	if opts.Since != nil {
		where += " AND timestamp >= " + arg(*opts.Since)
	}
	if opts.Until != nil {
		where += " AND timestamp <= " + arg(*opts.Until)
	}

	var total int
	if err := p.pool.QueryRow(ctx, "SELECT COUNT(*) FROM audit_events WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.Limit > 1000 {
		opts.Limit = 1000
	}

	query := "SELECT id, timestamp, actor, actor_type, action, COALESCE(target, ''), detail, COALESCE(request_id, ''), COALESCE(ip_address, '') FROM audit_events WHERE " +
		where + " ORDER BY timestamp DESC LIMIT " + arg(opts.Limit) + " OFFSET " + arg(opts.Offset)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		var detailJSON []byte
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Actor, &e.ActorType, &e.Action, &e.Target, &detailJSON, &e.RequestID, &e.IPAddress); err != nil {
			return nil, 0, err
		}
		if len(detailJSON) > 0 {
			var detail map[string]any
			if err := json.Unmarshal(detailJSON, &detail); err == nil {
				e.Detail = detail
			}
		}
		events = append(events, &e)
	}

	return events, total, rows.Err()
}

// GetByActor retrieves events for one principal.
func (p *PostgresLogger) GetByActor(ctx context.Context, actor string) ([]*Event, error) {
	events, _, err := p.List(ctx, ListOptions{Actor: actor, Limit: 1000})
	return events, err
}
