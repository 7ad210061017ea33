package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"dashgate/internal/audit"
	"dashgate/internal/auth"
	"dashgate/internal/embed"
)

// handleEmbedURL brokers a signed embed URL from the analytics upstream.
// The upstream response is relayed verbatim, status code included; only a
// transport failure is replaced with an opaque 502.
func (s *Server) handleEmbedURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session := auth.SessionFromContext(ctx)
	if session == nil {
		s.writeErr(ctx, w, http.StatusUnauthorized, "authentication required", "")
		return
	}
	if s.broker == nil {
		s.writeErr(ctx, w, http.StatusServiceUnavailable, "embed upstream not configured", "")
		return
	}

	var req embed.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErr(ctx, w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		s.writeErr(ctx, w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	res, err := s.broker.Issue(ctx, req)
	if err != nil {
		if errors.Is(err, embed.ErrUpstreamUnavailable) {
			s.writeErr(ctx, w, http.StatusBadGateway, "embed upstream unavailable", "")
			return
		}
		s.writeErr(ctx, w, http.StatusInternalServerError, "embed request failed", "")
		return
	}

	s.logAudit(ctx, r, audit.ActionEmbedIssue, session.Principal.Subject, req.PageUUID, map[string]any{
		"status": res.StatusCode,
	})

	if res.ContentType != "" {
		w.Header().Set("Content-Type", res.ContentType)
	}
	w.WriteHeader(res.StatusCode)
	_, _ = w.Write(res.Body)
}
