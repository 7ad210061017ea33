package auth

// Principal is the authenticated identity for a session, as reported by the
// identity provider. It is immutable for the session's lifetime.
type Principal struct {
	// Subject is the IdP's stable identifier for the user.
	Subject string `json:"subject"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
}

// Valid reports whether the principal carries a subject.
func (p Principal) Valid() bool { return p.Subject != "" }
