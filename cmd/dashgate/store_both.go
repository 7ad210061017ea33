//go:build sqlite && postgres

package main

import (
	"context"

	"dashgate/internal/audit"
	"dashgate/internal/auth"
	"dashgate/internal/config"
	"dashgate/internal/observability"
)

// selectSessionStore picks PostgreSQL if DATABASE_URL is set, otherwise
// SQLite at DASHGATE_SQLITE_PATH.
func selectSessionStore(logger observability.Logger, cfg *config.Config) auth.SessionStore {
	if cfg.DatabaseURL != "" {
		store, err := auth.NewPostgresSessionStore(cfg.DatabaseURL)
		if err != nil {
			logger.Error("postgres session store init failed; falling back to sqlite", "error", err)
		} else {
			logger.Info("using postgres session store")
			return store
		}
	}
	store, err := auth.NewSQLiteSessionStore(cfg.SQLitePath)
	if err != nil {
		logger.Error("sqlite session store init failed; falling back to memory", "error", err)
		return auth.NewMemorySessionStore()
	}
	logger.Info("using sqlite session store", "path", cfg.SQLitePath)
	return store
}

func selectAuditLogger(logger observability.Logger, cfg *config.Config) audit.Logger {
	if cfg.DatabaseURL != "" {
		al, err := audit.NewPostgresLogger(context.Background(), cfg.DatabaseURL)
		if err != nil {
			logger.Error("postgres audit logger init failed; falling back to sqlite", "error", err)
		} else {
			logger.Info("using postgres audit logger")
			return al
		}
	}
	al, err := audit.NewSQLiteLogger(cfg.SQLitePath)
	if err != nil {
		logger.Error("sqlite audit logger init failed; falling back to memory", "error", err)
		return audit.NewMemoryLogger()
	}
	logger.Info("using sqlite audit logger")
	return al
}
