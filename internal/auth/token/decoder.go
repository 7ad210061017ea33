// Package token decodes identity-provider access tokens without verifying
// their signature. Tokens handled here were already validated by the IdP
// during the OIDC exchange; this package only recovers the claim payload so
// callers can key profile lookups off the subject. Nothing decoded here is
// a trust decision on its own.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// ErrMalformedToken reports a token that is not a structurally valid
// compact JWS. Callers treat it as "no claims available", not as a
// hard failure.
var ErrMalformedToken = errors.New("malformed token")

// signatureAlgorithms lists every algorithm the parser will accept.
// Signatures are never checked, so the list only gates parsing; it is
// deliberately broad.
var signatureAlgorithms = []jose.SignatureAlgorithm{
	jose.HS256, jose.HS384, jose.HS512,
	jose.RS256, jose.RS384, jose.RS512,
	jose.ES256, jose.ES384, jose.ES512,
	jose.PS256, jose.PS384, jose.PS512,
	jose.EdDSA,
}

// Claims is the subset of token claims the dashboard shell cares about.
type Claims struct {
	Subject   string    `json:"sub"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Issuer    string    `json:"iss"`
	IssuedAt  time.Time `json:"-"`
	ExpiresAt time.Time `json:"-"`
}

// Decode extracts the claim payload from a compact JWS without checking
// the signature. Any structural defect (wrong segment count, bad base64,
// invalid JSON) yields ErrMalformedToken.
func Decode(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", ErrMalformedToken)
	}
	if strings.Count(raw, ".") != 2 {
		return nil, fmt.Errorf("%w: expected three segments", ErrMalformedToken)
	}

	parsed, err := jwt.ParseSigned(raw, signatureAlgorithms)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	var std jwt.Claims
	var extra struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := parsed.UnsafeClaimsWithoutVerification(&std, &extra); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	claims := &Claims{
		Subject: std.Subject,
		Email:   extra.Email,
		Name:    extra.Name,
		Issuer:  std.Issuer,
	}
	if std.IssuedAt != nil {
		claims.IssuedAt = std.IssuedAt.Time()
	}
	if std.Expiry != nil {
		claims.ExpiresAt = std.Expiry.Time()
	}
	return claims, nil
}
