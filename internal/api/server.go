// Package api wires the dashboard shell's HTTP surface: OIDC sign-in,
// session and navigation endpoints, the authorization gate, and the
// embed credential broker.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"golang.org/x/oauth2"

	"dashgate/internal/audit"
	"dashgate/internal/auth"
	"dashgate/internal/auth/oidc"
	"dashgate/internal/embed"
	"dashgate/internal/gate"
	"dashgate/internal/observability"
	"dashgate/internal/profile"
	"dashgate/internal/routes"
)

type apiError struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// IdentityProvider is the subset of the OIDC provider the handlers use,
// split out so tests can substitute a fake without a discovery endpoint.
type IdentityProvider interface {
	AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string
	Exchange(ctx context.Context, code string) (*oidc.Identity, error)
}

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	mux      *http.ServeMux
	logger   observability.Logger
	metrics  *observability.Metrics
	auditLog audit.Logger

	provider IdentityProvider
	sessions auth.SessionStore
	resolver *profile.Resolver
	gate     *gate.Gate
	table    routes.Table
	broker   *embed.Broker // nil when the upstream is not configured

	encryptionKey []byte
	cookieSecure  bool
	sessionTTL    time.Duration
}

// ServerConfig collects the Server's dependencies.
type ServerConfig struct {
	Provider      IdentityProvider
	Sessions      auth.SessionStore
	Resolver      *profile.Resolver
	Gate          *gate.Gate
	Table         routes.Table
	Broker        *embed.Broker
	EncryptionKey []byte
	CookieSecure  bool
	SessionTTL    time.Duration
}

// NewServer creates the HTTP server. If logger is nil a default logger is
// used; nil metrics disables collection; nil auditLogger falls back to an
// in-memory log.
func NewServer(mux *http.ServeMux, cfg ServerConfig, logger observability.Logger, metrics *observability.Metrics, auditLogger audit.Logger) *Server {
	if logger == nil {
		logger = observability.NewLogger(observability.DefaultConfig())
	}
	if auditLogger == nil {
		auditLogger = audit.NewMemoryLogger()
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = auth.DefaultSessionDuration
	}
	return &Server{
		mux:           mux,
		logger:        logger,
		metrics:       metrics,
		auditLog:      auditLogger,
		provider:      cfg.Provider,
		sessions:      cfg.Sessions,
		resolver:      cfg.Resolver,
		gate:          cfg.Gate,
		table:         cfg.Table,
		broker:        cfg.Broker,
		encryptionKey: cfg.EncryptionKey,
		cookieSecure:  cfg.CookieSecure,
		sessionTTL:    ttl,
	}
}

// RegisterRoutes attaches every handler to the mux. Session-bound routes
// go through the session middleware so handlers can read the principal
// and role from the request context.
func (s *Server) RegisterRoutes() {
	withSession := SessionMiddleware(s.sessions, s.resolver, s.logger)

	s.mux.HandleFunc("GET /auth/login", s.handleLogin)
	s.mux.HandleFunc("GET /auth/callback", s.handleCallback)
	s.mux.Handle("POST /auth/logout", withSession(http.HandlerFunc(s.handleLogout)))

	s.mux.Handle("GET /api/v1/session", withSession(http.HandlerFunc(s.handleSessionInfo)))
	s.mux.Handle("POST /api/v1/session/group", withSession(http.HandlerFunc(s.handleGroupSwitch)))
	s.mux.Handle("GET /api/v1/navigation", withSession(http.HandlerFunc(s.handleNavigation)))
	s.mux.Handle("GET /api/v1/routes/{namespace}/{slug}", withSession(http.HandlerFunc(s.handleRouteResolve)))
	s.mux.Handle("POST /embedUrl", withSession(http.HandlerFunc(s.handleEmbedURL)))

	s.mux.Handle("GET /api/v1/audit", withSession(http.HandlerFunc(s.handleAuditList)))

	s.registerSystemRoutes()
}

func (s *Server) writeErr(ctx context.Context, w http.ResponseWriter, code int, msg string, detail string) {
	fields := []any{
		"status", code,
		"error", msg,
	}
	if detail != "" {
		fields = append(fields, "detail", detail)
	}
	fields = appendRequestID(ctx, fields)
	if code >= 500 {
		s.logger.ErrorContext(ctx, "request failed", fields...)
		sentry.CaptureMessage(fmt.Sprintf("HTTP %d: %s (detail: %s)", code, msg, detail))
	} else {
		s.logger.WarnContext(ctx, "request failed", fields...)
	}
	writeJSON(w, code, apiError{Error: msg, Detail: detail})
}

// logAudit records an audit event, tagging it with the request ID and
// client address from the request context.
func (s *Server) logAudit(ctx context.Context, r *http.Request, action, actor, target string, detail map[string]any) {
	if s.auditLog == nil {
		return
	}
	actorType := audit.ActorTypePrincipal
	if actor == "" {
		actor = "anonymous"
		actorType = audit.ActorTypeAnonymous
	}
	event := &audit.Event{
		Actor:     actor,
		ActorType: actorType,
		Action:    action,
		Target:    target,
		Detail:    detail,
		RequestID: RequestIDFromContext(ctx),
		IPAddress: clientKey(r),
	}
	if err := s.auditLog.Log(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to log audit event",
			appendRequestID(ctx, []any{"action", action, "error", err})...)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) { s.status = code; s.ResponseWriter.WriteHeader(code) }
