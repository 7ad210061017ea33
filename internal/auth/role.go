// Package auth provides session handling and role plumbing for dashgate.
package auth

import "strings"

// Role is a group name granting visibility over routes. Roles are free-form
// strings assigned in the identity provider's app_metadata; only the admin
// role has distinguished semantics.
type Role string

const (
	// RoleAdmin is the superuser override: it sees every route regardless of
	// the route's own role set.
	RoleAdmin Role = "admin"

	// RoleNone represents no active role (unauthenticated, role-less, or
	// profile resolution failed).
	RoleNone Role = ""
)

// ParseRole normalizes a raw group name into a Role.
func ParseRole(s string) Role {
	return Role(strings.TrimSpace(s))
}

// IsAdmin reports whether the role is the distinguished admin role.
func (r Role) IsAdmin() bool { return r == RoleAdmin }

// RoleState distinguishes "no role" outcomes that must be reported
// differently even though both fail closed.
type RoleState string

const (
	// RoleStateActive means the profile resolved and carries a group.
	RoleStateActive RoleState = "active"

	// RoleStateNone means the profile resolved but no group is set.
	RoleStateNone RoleState = "none"

	// RoleStateUnknown means no profile is available (not yet resolved, or
	// the resolution failed). Treated as zero permissions everywhere.
	RoleStateUnknown RoleState = "unknown"
)
