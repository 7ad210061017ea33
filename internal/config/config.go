// Package config loads dashgate configuration from the environment, with
// an optional .env file for local development.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"dashgate/internal/auth/oidc"
)

// stateSalt keys the scrypt derivation for the state-cookie cipher. It
// is a domain separator, not a secret.
const stateSalt = "dashgate.state.v1"

// OIDCConfig configures the identity provider connection.
type OIDCConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Audience     string
}

// EmbedConfig configures the upstream dashboarding service.
type EmbedConfig struct {
	BaseURL string
	APIKey  string
}

// Enabled reports whether the broker can be constructed at all.
func (e EmbedConfig) Enabled() bool { return e.BaseURL != "" && e.APIKey != "" }

// Config is the full runtime configuration.
type Config struct {
	Addr           string
	OIDC           OIDCConfig
	MgmtBaseURL    string
	Embed          EmbedConfig
	RouteTableFile string
	SessionTTL     time.Duration
	CookieSecure   bool

	// EncryptionKey protects the OIDC state cookie. Derived from
	// DASHGATE_STATE_PASSPHRASE when set, otherwise random per process
	// (restarts invalidate in-flight logins, nothing else).
	EncryptionKey []byte

	SQLitePath  string
	DatabaseURL string

	RateLimitRPS   float64
	RateLimitBurst int

	SentryDSN string
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged in first if present; real environment
// variables win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Addr: envOr("DASHGATE_ADDR", ":8080"),
		OIDC: OIDCConfig{
			IssuerURL:    os.Getenv("DASHGATE_OIDC_ISSUER"),
			ClientID:     os.Getenv("DASHGATE_OIDC_CLIENT_ID"),
			ClientSecret: os.Getenv("DASHGATE_OIDC_CLIENT_SECRET"),
			RedirectURL:  os.Getenv("DASHGATE_OIDC_REDIRECT_URL"),
			Audience:     os.Getenv("DASHGATE_OIDC_AUDIENCE"),
		},
		Embed: EmbedConfig{
			BaseURL: strings.TrimSuffix(os.Getenv("DASHGATE_EMBED_BASE_URL"), "/"),
			APIKey:  os.Getenv("DASHGATE_EMBED_API_KEY"),
		},
		RouteTableFile: os.Getenv("DASHGATE_ROUTE_TABLE"),
		SessionTTL:     24 * time.Hour,
		CookieSecure:   envOr("DASHGATE_COOKIE_SECURE", "true") == "true",
		SQLitePath:     envOr("DASHGATE_SQLITE_PATH", "dashgate.db"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		SentryDSN:      os.Getenv("SENTRY_DSN"),
	}

	if p := os.Getenv("PORT"); p != "" { // Heroku-style
		cfg.Addr = ":" + p
	}

	// The management API usually lives on the IdP host; override for
	// tenants that proxy it.
	cfg.MgmtBaseURL = strings.TrimSuffix(
		envOr("DASHGATE_MGMT_BASE_URL", strings.TrimSuffix(cfg.OIDC.IssuerURL, "/")), "/")

	if ttl := os.Getenv("DASHGATE_SESSION_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid DASHGATE_SESSION_TTL %q", ttl)
		}
		cfg.SessionTTL = d
	}

	if rps := strings.TrimSpace(os.Getenv("RATE_LIMIT_RPS")); rps != "" {
		parsed, err := strconv.ParseFloat(rps, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT_RPS %q", rps)
		}
		cfg.RateLimitRPS = parsed
	}
	if burst := strings.TrimSpace(os.Getenv("RATE_LIMIT_BURST")); burst != "" {
		parsed, err := strconv.Atoi(burst)
		if err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT_BURST %q", burst)
		}
		cfg.RateLimitBurst = parsed
	}

	if pass := os.Getenv("DASHGATE_STATE_PASSPHRASE"); pass != "" {
		key, err := oidc.DeriveKey(pass, stateSalt)
		if err != nil {
			return nil, err
		}
		cfg.EncryptionKey = key
	} else {
		key := make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			return nil, fmt.Errorf("generate state key: %w", err)
		}
		cfg.EncryptionKey = key
	}

	return cfg, nil
}

// Validate checks that everything sign-in depends on is present. The
// embed broker is optional; its endpoint reports unavailability when
// unconfigured.
func (c *Config) Validate() error {
	var missing []string
	if c.OIDC.IssuerURL == "" {
		missing = append(missing, "DASHGATE_OIDC_ISSUER")
	}
	if c.OIDC.ClientID == "" {
		missing = append(missing, "DASHGATE_OIDC_CLIENT_ID")
	}
	if c.OIDC.ClientSecret == "" {
		missing = append(missing, "DASHGATE_OIDC_CLIENT_SECRET")
	}
	if c.OIDC.RedirectURL == "" {
		missing = append(missing, "DASHGATE_OIDC_REDIRECT_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// RandomHex returns n random bytes hex-encoded, for nonces and state values.
func RandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
