package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"dashgate/internal/audit"
	"dashgate/internal/auth"
	"dashgate/internal/auth/oidc"
	"dashgate/internal/auth/token"
	"dashgate/internal/profile"
)

const (
	stateCookieName = "oidc_state"
	stateCookiePath = "/auth/"
	stateCookieTTL  = 10 * time.Minute
	stateNonceBytes = 16
)

// handleLogin starts the authorization-code flow. The state parameter is a
// random nonce; an encrypted copy travels in a short-lived cookie so the
// callback can verify the response belongs to this browser.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	nonceBytes := make([]byte, stateNonceBytes)
	if _, err := rand.Read(nonceBytes); err != nil {
		s.writeErr(ctx, w, http.StatusInternalServerError, "failed to start login", "")
		return
	}
	nonce := hex.EncodeToString(nonceBytes)

	sealed, err := oidc.Encrypt(nonce, s.encryptionKey)
	if err != nil {
		s.writeErr(ctx, w, http.StatusInternalServerError, "failed to start login", "")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    sealed,
		Path:     stateCookiePath,
		MaxAge:   int(stateCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, s.provider.AuthCodeURL(nonce), http.StatusFound)
}

// handleCallback completes the code exchange, resolves the principal's
// profile, mints a session, and lands the browser on the shell root.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	if errParam := q.Get("error"); errParam != "" {
		s.logger.WarnContext(ctx, "identity provider returned error",
			appendRequestID(ctx, []any{"error", errParam, "description", q.Get("error_description")})...)
		http.Redirect(w, r, "/?error="+url.QueryEscape(errParam), http.StatusFound)
		return
	}

	state := q.Get("state")
	code := q.Get("code")
	if state == "" || code == "" {
		s.writeErr(ctx, w, http.StatusBadRequest, "missing state or code", "")
		return
	}

	cookie, err := r.Cookie(stateCookieName)
	if err != nil {
		s.writeErr(ctx, w, http.StatusForbidden, "missing state cookie", "")
		return
	}
	nonce, err := oidc.Decrypt(cookie.Value, s.encryptionKey)
	if err != nil || subtle.ConstantTimeCompare([]byte(nonce), []byte(state)) != 1 {
		s.writeErr(ctx, w, http.StatusForbidden, "state mismatch", "")
		return
	}
	clearCookie(w, stateCookieName, stateCookiePath, s.cookieSecure)

	identity, err := s.provider.Exchange(ctx, code)
	if err != nil {
		s.writeErr(ctx, w, http.StatusBadGateway, "token exchange failed", "")
		return
	}

	// Prefer the access token's subject: that is the identity the
	// profile store keys on. Fall back to the verified ID token when
	// the access token is opaque.
	subject := identity.Claims.Subject
	if claims, decodeErr := token.Decode(identity.AccessToken); decodeErr == nil && claims.Subject != "" {
		subject = claims.Subject
	}

	principal := identity.Claims.Principal()
	principal.Subject = subject

	if _, _, err := s.resolver.Resolve(ctx, subject, identity.AccessToken); err != nil {
		// Sign-in proceeds; the gate denies until a profile resolves.
		s.logger.WarnContext(ctx, "profile resolution failed during sign-in",
			appendRequestID(ctx, []any{"subject", subject, "error", err})...)
	} else {
		s.resolver.TouchLogin(subject, identity.AccessToken)
	}

	session, err := auth.NewSession(principal, identity.AccessToken, s.sessionTTL, nil)
	if err != nil {
		s.writeErr(ctx, w, http.StatusInternalServerError, "failed to create session", "")
		return
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		s.writeErr(ctx, w, http.StatusInternalServerError, "failed to store session", "")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.ID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	s.logAudit(ctx, r, audit.ActionSignIn, subject, "", map[string]any{
		"email": principal.Email,
	})
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	session := auth.SessionFromContext(ctx)
	if session != nil {
		if err := s.sessions.Delete(ctx, session.ID); err != nil {
			s.logger.ErrorContext(ctx, "failed to delete session",
				appendRequestID(ctx, []any{"error", err})...)
		}
		s.resolver.Invalidate(session.Principal.Subject)
		s.logAudit(ctx, r, audit.ActionSignOut, session.Principal.Subject, "", nil)
	}

	clearCookie(w, sessionCookieName, "/", s.cookieSecure)
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
}

type sessionInfoResponse struct {
	Principal      auth.Principal `json:"principal"`
	Group          auth.Role      `json:"group"`
	EligibleGroups []auth.Role    `json:"eligibleGroups"`
	RoleState      auth.RoleState `json:"roleState"`
	LatestLogin    time.Time      `json:"latestLogin,omitzero"`
	ExpiresAt      time.Time      `json:"expiresAt"`
}

func (s *Server) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session := auth.SessionFromContext(ctx)
	if session == nil {
		s.writeErr(ctx, w, http.StatusUnauthorized, "authentication required", "")
		return
	}

	prof, state := s.resolver.Current(session.Principal.Subject)
	resp := sessionInfoResponse{
		Principal: session.Principal,
		RoleState: state,
		ExpiresAt: session.ExpiresAt,
	}
	if prof != nil {
		resp.Group = prof.Group
		resp.EligibleGroups = prof.EligibleGroups
		resp.LatestLogin = prof.LatestLogin
	}
	writeJSON(w, http.StatusOK, resp)
}

type groupSwitchRequest struct {
	Group string `json:"group"`
}

// handleGroupSwitch changes the principal's active group. The switch is
// optimistic: the new group takes effect immediately and the profile
// store is patched in the background.
func (s *Server) handleGroupSwitch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session := auth.SessionFromContext(ctx)
	if session == nil {
		s.writeErr(ctx, w, http.StatusUnauthorized, "authentication required", "")
		return
	}

	var req groupSwitchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErr(ctx, w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	group := auth.ParseRole(req.Group)
	if group == auth.RoleNone {
		s.writeErr(ctx, w, http.StatusBadRequest, "group is required", "")
		return
	}

	subject := session.Principal.Subject
	prof, err := s.resolver.SwitchGroup(ctx, subject, session.AccessToken, group)
	if err != nil {
		if errors.Is(err, profile.ErrNoProfile) {
			s.writeErr(ctx, w, http.StatusConflict, "no resolved profile", "sign in again to refresh the profile")
			return
		}
		s.writeErr(ctx, w, http.StatusInternalServerError, "group switch failed", "")
		return
	}

	s.logAudit(ctx, r, audit.ActionGroupSwitch, subject, string(group), map[string]any{
		"eligible": prof.Eligible(group),
	})
	writeJSON(w, http.StatusOK, sessionInfoResponse{
		Principal:      session.Principal,
		Group:          prof.Group,
		EligibleGroups: prof.EligibleGroups,
		RoleState:      prof.State(),
		LatestLogin:    prof.LatestLogin,
		ExpiresAt:      session.ExpiresAt,
	})
}

func clearCookie(w http.ResponseWriter, name, path string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
