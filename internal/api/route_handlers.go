package api

import (
	"net/http"

	"dashgate/internal/audit"
	"dashgate/internal/auth"
	"dashgate/internal/gate"
	"dashgate/internal/routes"
)

// handleNavigation returns the sidebar for the caller's role. The table
// is filtered on every request so a group switch is visible immediately.
func (s *Server) handleNavigation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !auth.IsAuthenticated(ctx) {
		s.writeErr(ctx, w, http.StatusUnauthorized, "authentication required", "")
		return
	}

	role := auth.RoleFromContext(ctx)
	writeJSON(w, http.StatusOK, routes.Filter(s.table, role))
}

type routeResolveResponse struct {
	Outcome  gate.Outcome  `json:"outcome"`
	Redirect string        `json:"redirect,omitempty"`
	Route    *routes.Route `json:"route,omitempty"`
}

// handleRouteResolve evaluates one navigation against the gate. The
// response is always 200: non-allow outcomes carry a redirect target
// instead of an error, so the shell can land on home without surfacing
// anything to the user.
func (s *Server) handleRouteResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ns := routes.Namespace(r.PathValue("namespace"))
	slug := r.PathValue("slug")

	session := auth.SessionFromContext(ctx)
	subj := gate.Subject{
		Authenticated: session != nil,
		Role:          auth.RoleFromContext(ctx),
	}

	decision := s.gate.Evaluate(ctx, ns, slug, subj)

	resp := routeResolveResponse{
		Outcome:  decision.Outcome,
		Redirect: decision.Redirect,
	}
	if decision.Outcome == gate.OutcomeAllow {
		rt := decision.Route
		resp.Route = &rt
	}
	if decision.Outcome == gate.OutcomeDeny && session != nil {
		s.logAudit(ctx, r, audit.ActionGateDeny, session.Principal.Subject, string(ns)+"/"+slug, map[string]any{
			"role": string(subj.Role),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
