// Package profile resolves dashboard user profiles from the identity
// provider's user API and tracks each principal's active group.
package profile

import (
	"time"

	"dashgate/internal/auth"
)

// Profile is the merged view of a principal's IdP record: the groups the
// tenant assigned them (app_metadata) and their own selections
// (user_metadata).
type Profile struct {
	Subject        string      `json:"subject"`
	EligibleGroups []auth.Role `json:"eligibleGroups"`
	Group          auth.Role   `json:"group"`
	LatestLogin    time.Time   `json:"latestLogin,omitzero"`
}

// ActiveRole returns the role the principal currently acts under.
// A profile with no group selection yields RoleNone.
func (p *Profile) ActiveRole() auth.Role {
	if p == nil {
		return auth.RoleNone
	}
	return p.Group
}

// State classifies the profile for authorization purposes. A nil profile
// means resolution never succeeded, which is distinct from a resolved
// profile with no group: both deny, but they are reported differently.
func (p *Profile) State() auth.RoleState {
	switch {
	case p == nil:
		return auth.RoleStateUnknown
	case p.Group == auth.RoleNone:
		return auth.RoleStateNone
	default:
		return auth.RoleStateActive
	}
}

// Eligible reports whether the given group appears in the principal's
// assigned set.
func (p *Profile) Eligible(group auth.Role) bool {
	if p == nil {
		return false
	}
	for _, g := range p.EligibleGroups {
		if g == group {
			return true
		}
	}
	return false
}

// clone returns a copy so callers never share the resolver's internal state.
func (p *Profile) clone() *Profile {
	if p == nil {
		return nil
	}
	cp := *p
	cp.EligibleGroups = append([]auth.Role(nil), p.EligibleGroups...)
	return &cp
}
