package api

import (
	"net/http"
	"strconv"
	"time"

	"dashgate/internal/audit"
	"dashgate/internal/auth"
)

func (s *Server) registerSystemRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /readyz", s.handleReady)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	// Ready once the route table indexed and the session store answers.
	if _, err := s.sessions.Get(r.Context(), "readiness-probe"); err != nil {
		s.writeErr(r.Context(), w, http.StatusServiceUnavailable, "session store unavailable", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleAuditList exposes the audit trail to administrators.
func (s *Server) handleAuditList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !auth.IsAuthenticated(ctx) {
		s.writeErr(ctx, w, http.StatusUnauthorized, "authentication required", "")
		return
	}
	if !auth.RoleFromContext(ctx).IsAdmin() {
		s.writeErr(ctx, w, http.StatusForbidden, "admin role required", "")
		return
	}

	q := r.URL.Query()
	opts := audit.ListOptions{
		Actor:  q.Get("actor"),
		Action: q.Get("action"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeErr(ctx, w, http.StatusBadRequest, "invalid limit", "")
			return
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeErr(ctx, w, http.StatusBadRequest, "invalid offset", "")
			return
		}
		opts.Offset = n
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeErr(ctx, w, http.StatusBadRequest, "invalid since timestamp", "")
			return
		}
		opts.Since = &t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeErr(ctx, w, http.StatusBadRequest, "invalid until timestamp", "")
			return
		}
		opts.Until = &t
	}

	events, total, err := s.auditLog.List(ctx, opts)
	if err != nil {
		s.writeErr(ctx, w, http.StatusInternalServerError, "failed to list audit events", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"total":  total,
	})
}
