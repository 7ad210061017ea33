//go:build !sqlite && !postgres

package main

import (
	"dashgate/internal/audit"
	"dashgate/internal/auth"
	"dashgate/internal/config"
	"dashgate/internal/observability"
)

// selectSessionStore returns the in-memory store when built without a
// storage tag. Sessions do not survive a restart; rebuild with
// -tags sqlite or -tags postgres for persistence.
func selectSessionStore(logger observability.Logger, cfg *config.Config) auth.SessionStore {
	if cfg.DatabaseURL != "" {
		logger.Warn("DATABASE_URL set, but binary not built with -tags postgres; using in-memory sessions")
	}
	return auth.NewMemorySessionStore()
}

func selectAuditLogger(_ observability.Logger, _ *config.Config) audit.Logger {
	return audit.NewMemoryLogger()
}
