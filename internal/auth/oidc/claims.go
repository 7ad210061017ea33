package oidc

import "dashgate/internal/auth"

// Claims represents extracted OIDC ID token claims.
type Claims struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Issuer  string `json:"iss"`
}

// Principal converts ID token claims into the principal a session is
// keyed on.
func (c Claims) Principal() auth.Principal {
	return auth.Principal{
		Subject: c.Subject,
		Name:    c.Name,
		Email:   c.Email,
	}
}
