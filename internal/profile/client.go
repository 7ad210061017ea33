package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"dashgate/internal/auth"
)

// ErrProfileFetch reports that the IdP user API could not produce a
// usable record. Callers must fail closed on it.
var ErrProfileFetch = errors.New("profile fetch failed")

const defaultClientTimeout = 10 * time.Second

// Client talks to the identity provider's user management API. Requests
// are authorized with the principal's own access token, so the client
// can only read and write the record of the calling user.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client for the management API at baseURL
// (e.g. "https://tenant.auth0.example.com").
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultClientTimeout}
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

// userRecord mirrors the management API's user document. Only the two
// metadata partitions matter; everything else is ignored.
type userRecord struct {
	AppMetadata struct {
		Roles []string `json:"roles"`
	} `json:"app_metadata"`
	UserMetadata struct {
		Group       string `json:"group"`
		LatestLogin string `json:"latestLogin"`
	} `json:"user_metadata"`
}

// Fetch retrieves and merges the principal's metadata partitions.
func (c *Client) Fetch(ctx context.Context, subject, accessToken string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userURL(subject), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileFetch, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: user api returned %d", ErrProfileFetch, resp.StatusCode)
	}

	var rec userRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrProfileFetch, err)
	}

	prof := &Profile{
		Subject: subject,
		Group:   auth.ParseRole(rec.UserMetadata.Group),
	}
	for _, r := range rec.AppMetadata.Roles {
		if role := auth.ParseRole(r); role != auth.RoleNone {
			prof.EligibleGroups = append(prof.EligibleGroups, role)
		}
	}
	if rec.UserMetadata.LatestLogin != "" {
		if ts, err := time.Parse(time.RFC3339, rec.UserMetadata.LatestLogin); err == nil {
			prof.LatestLogin = ts
		}
	}
	return prof, nil
}

// PatchUserMetadata merges the given fields into the principal's
// user_metadata partition. The management API merges at the top level,
// so unrelated keys survive.
func (c *Client) PatchUserMetadata(ctx context.Context, subject, accessToken string, fields map[string]any) error {
	body, err := json.Marshal(map[string]any{"user_metadata": fields})
	if err != nil {
		return fmt.Errorf("encode metadata patch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.userURL(subject), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build metadata patch: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("patch user metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("patch user metadata: user api returned %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) userURL(subject string) string {
	return c.baseURL + "/api/v2/users/" + url.PathEscape(subject)
}
