package routes

import "dashgate/internal/auth"

// Filter returns the sidebar view of the table for the given role. It is
// a pure function of its inputs: the table is never mutated, and the
// same (table, role) pair always yields the same view.
//
// Admin gets the full table. Any other role sees the routes whose role
// set contains it, or is empty. No role at all means an empty sidebar,
// never a partial one. Sections left with no visible routes are dropped
// entirely.
func Filter(t Table, role auth.Role) Table {
	if role == auth.RoleNone {
		return Table{}
	}
	if role.IsAdmin() {
		return t
	}

	var out Table
	for _, sec := range t.Sections {
		var kept []Route
		for _, rt := range sec.Routes {
			if rt.Visible(role) {
				kept = append(kept, rt)
			}
		}
		if len(kept) > 0 {
			out.Sections = append(out.Sections, Section{Title: sec.Title, Routes: kept})
		}
	}
	return out
}
