// Package embed brokers short-lived embed URLs from the upstream
// dashboarding service. The server-held API key never reaches the
// browser; clients go through the broker, which forwards their identity
// and relays whatever the upstream says.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"dashgate/internal/observability"
)

// ErrUpstreamUnavailable reports that the dashboarding service could not
// be reached at all. Upstream HTTP errors are not this; they are relayed
// to the caller as-is.
var ErrUpstreamUnavailable = errors.New("embed upstream unavailable")

const (
	upstreamPath   = "/api/embed-url/external-user"
	defaultTimeout = 15 * time.Second

	// The upstream is single-tenant from our side; the organization is
	// pinned server-side and never taken from the request.
	orgID = "1"

	maxRelayBytes = 1 << 20
)

// Request is the client-facing body of POST /embedUrl.
type Request struct {
	PageUUID           string   `json:"pageUuid"`
	ExternalIdentifier string   `json:"externalIdentifier"`
	Groups             []string `json:"groups"`
}

// Validate checks the fields the upstream cannot do without.
func (r Request) Validate() error {
	if r.PageUUID == "" {
		return errors.New("pageUuid is required")
	}
	if r.ExternalIdentifier == "" {
		return errors.New("externalIdentifier is required")
	}
	return nil
}

// upstreamRequest is the body sent to the dashboarding service. Group
// names pass through untranslated as groupIds.
type upstreamRequest struct {
	OrgID              string   `json:"orgId"`
	PageUUID           string   `json:"pageUuid"`
	ExternalIdentifier string   `json:"externalIdentifier"`
	GroupIDs           []string `json:"groupIds"`
}

// Result is the upstream response, captured for verbatim relay: the
// broker never rewrites status codes or bodies, success or not.
type Result struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Broker issues embed URLs against one upstream host with one API key.
type Broker struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     observability.Logger
	metrics    *observability.Metrics
}

// New creates a Broker for the service at baseURL
// (e.g. "https://dash.example.com").
func New(baseURL, apiKey string, httpClient *http.Client, logger observability.Logger, metrics *observability.Metrics) *Broker {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Broker{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     logger.WithComponent("embed"),
		metrics:    metrics,
	}
}

// Issue requests an embed URL for the given page and identity. No
// retries: embed URLs are cheap and the caller simply asks again.
func (b *Broker) Issue(ctx context.Context, req Request) (*Result, error) {
	body, err := json.Marshal(upstreamRequest{
		OrgID:              orgID,
		PageUUID:           req.PageUUID,
		ExternalIdentifier: req.ExternalIdentifier,
		GroupIDs:           req.Groups,
	})
	if err != nil {
		return nil, fmt.Errorf("encode embed request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+upstreamPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		b.metrics.RecordEmbedRequest("unavailable")
		b.logger.ErrorContext(ctx, "embed upstream unreachable", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	relay, err := io.ReadAll(io.LimitReader(resp.Body, maxRelayBytes))
	if err != nil {
		b.metrics.RecordEmbedRequest("unavailable")
		return nil, fmt.Errorf("%w: read response: %v", ErrUpstreamUnavailable, err)
	}

	if resp.StatusCode >= 400 {
		b.metrics.RecordEmbedRequest("upstream_error")
		b.logger.WarnContext(ctx, "embed upstream returned error",
			"status", resp.StatusCode, "page_uuid", req.PageUUID)
	} else {
		b.metrics.RecordEmbedRequest("relayed")
	}

	return &Result{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        relay,
	}, nil
}
