//go:build sqlite && !postgres

package main

import (
	"dashgate/internal/audit"
	"dashgate/internal/auth"
	"dashgate/internal/config"
	"dashgate/internal/observability"
)

// selectSessionStore returns a SQLite-backed store when built with the
// 'sqlite' tag. Configure the path with DASHGATE_SQLITE_PATH.
func selectSessionStore(logger observability.Logger, cfg *config.Config) auth.SessionStore {
	store, err := auth.NewSQLiteSessionStore(cfg.SQLitePath)
	if err != nil {
		logger.Error("sqlite session store init failed; falling back to memory", "error", err)
		return auth.NewMemorySessionStore()
	}
	logger.Info("using sqlite session store", "path", cfg.SQLitePath)
	return store
}

func selectAuditLogger(logger observability.Logger, cfg *config.Config) audit.Logger {
	al, err := audit.NewSQLiteLogger(cfg.SQLitePath)
	if err != nil {
		logger.Error("sqlite audit logger init failed; falling back to memory", "error", err)
		return audit.NewMemoryLogger()
	}
	logger.Info("using sqlite audit logger", "path", cfg.SQLitePath)
	return al
}
