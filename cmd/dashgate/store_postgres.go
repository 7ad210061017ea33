//go:build postgres && !sqlite

package main

import (
	"context"

	"dashgate/internal/audit"
	"dashgate/internal/auth"
	"dashgate/internal/config"
	"dashgate/internal/observability"
)

// selectSessionStore returns a PostgreSQL-backed store when built with
// the 'postgres' tag. Configure with DATABASE_URL.
func selectSessionStore(logger observability.Logger, cfg *config.Config) auth.SessionStore {
	store, err := auth.NewPostgresSessionStore(cfg.DatabaseURL)
	if err != nil {
		logger.Error("postgres session store init failed; falling back to memory", "error", err)
		return auth.NewMemorySessionStore()
	}
	logger.Info("using postgres session store")
	return store
}

func selectAuditLogger(logger observability.Logger, cfg *config.Config) audit.Logger {
	al, err := audit.NewPostgresLogger(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Error("postgres audit logger init failed; falling back to memory", "error", err)
		return audit.NewMemoryLogger()
	}
	logger.Info("using postgres audit logger")
	return al
}
