//go:build postgres

package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSessionStore is a PostgreSQL-backed implementation of SessionStore.
type PostgresSessionStore struct {
	pool    *pgxpool.Pool
	ownPool bool
}

// NewPostgresSessionStore creates a new PostgreSQL-backed session store.
func NewPostgresSessionStore(connStr string) (*PostgresSessionStore, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, err
	}
	store := &PostgresSessionStore{pool: pool, ownPool: true}
	if err := store.migrate(context.Background()); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresSessionStoreFromPool creates a session store using an existing pool.
func NewPostgresSessionStoreFromPool(pool *pgxpool.Pool) (*PostgresSessionStore, error) {
	store := &PostgresSessionStore{pool: pool, ownPool: false}
	if err := store.migrate(context.Background()); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *PostgresSessionStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			id           TEXT PRIMARY KEY,
			subject      TEXT NOT NULL,
			name         TEXT NOT NULL DEFAULT '',
			email        TEXT NOT NULL DEFAULT '',
			access_token TEXT NOT NULL DEFAULT '',
			created_at   TIMESTAMPTZ NOT NULL,
			expires_at   TIMESTAMPTZ NOT NULL,
			metadata     JSONB NOT NULL DEFAULT '{}'::jsonb
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_subject ON sessions(subject);
		CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);`)
	if err != nil {
		return fmt.Errorf("migrate sessions: %w", err)
	}
	return nil
}

func (s *PostgresSessionStore) Close() error {
	if s.ownPool {
		s.pool.Close()
	}
	return nil
}

func (s *PostgresSessionStore) Create(ctx context.Context, session *Session) error {
	if session == nil || session.ID == "" || !session.Principal.Valid() {
		return ErrInvalidSession
	}

	metadataJSON := []byte("{}")
	if session.Metadata != nil {
		b, err := json.Marshal(session.Metadata)
		if err == nil {
			metadataJSON = b
		}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (id, subject, name, email, access_token, created_at, expires_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)`,
		session.ID, session.Principal.Subject, session.Principal.Name, session.Principal.Email,
		session.AccessToken, session.CreatedAt, session.ExpiresAt, string(metadataJSON),
	)
	return err
}

func (s *PostgresSessionStore) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, nil
	}

	var session Session
	var metadataJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, subject, name, email, access_token, created_at, expires_at, metadata
		FROM sessions WHERE id = $1`, id,
	).Scan(&session.ID, &session.Principal.Subject, &session.Principal.Name,
		&session.Principal.Email, &session.AccessToken,
		&session.CreatedAt, &session.ExpiresAt, &metadataJSON)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &session.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &session, nil
}

func (s *PostgresSessionStore) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

func (s *PostgresSessionStore) DeleteBySubject(ctx context.Context, subject string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE subject = $1`, subject)
	return err
}

func (s *PostgresSessionStore) Cleanup(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
