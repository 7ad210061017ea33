package auth

import "context"

type contextKey string

const (
	sessionContextKey contextKey = "session"
	roleContextKey    contextKey = "role"
)

// ContextWithSession returns a new context with the session stored in it.
func ContextWithSession(ctx context.Context, session *Session) context.Context {
	if session == nil {
		return ctx
	}
	return context.WithValue(ctx, sessionContextKey, session)
}

// SessionFromContext retrieves the session from the context.
// Returns nil if no session is present.
func SessionFromContext(ctx context.Context) *Session {
	if ctx == nil {
		return nil
	}
	session, ok := ctx.Value(sessionContextKey).(*Session)
	if !ok {
		return nil
	}
	return session
}

// ContextWithRole returns a new context with the active role stored in it.
func ContextWithRole(ctx context.Context, role Role) context.Context {
	return context.WithValue(ctx, roleContextKey, role)
}

// RoleFromContext retrieves the active role from context.
// Returns RoleNone if no role is present.
func RoleFromContext(ctx context.Context) Role {
	if ctx == nil {
		return RoleNone
	}
	role, ok := ctx.Value(roleContextKey).(Role)
	if !ok {
		return RoleNone
	}
	return role
}

// IsAuthenticated returns true if the context carries a valid session.
func IsAuthenticated(ctx context.Context) bool {
	session := SessionFromContext(ctx)
	return session != nil && session.IsValid()
}
