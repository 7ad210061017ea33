// Package audit records security-relevant actions in the dashboard
// shell: who signed in, who switched groups, what the gate denied, and
// which embed credentials were issued.
package audit

import (
	"context"
	"time"
)

// Event represents a single auditable action.
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Actor     string         `json:"actor"` // principal subject or "anonymous"
	ActorType string         `json:"actor_type"`
	Action    string         `json:"action"`
	Target    string         `json:"target,omitempty"` // slug, group, or page UUID
	Detail    map[string]any `json:"detail,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	IPAddress string         `json:"ip_address,omitempty"`
}

// ListOptions provides filtering and pagination options for listing events.
type ListOptions struct {
	Limit  int
	Offset int
	Actor  string
	Action string
	Since  *time.Time
	Until  *time.Time
}

// Logger defines the interface for audit logging operations.
type Logger interface {
	// Log records an audit event.
	Log(ctx context.Context, event *Event) error

	// List retrieves audit events with optional filtering, newest first.
	List(ctx context.Context, opts ListOptions) ([]*Event, int, error)

	// GetByActor retrieves events for one principal, newest first.
	GetByActor(ctx context.Context, actor string) ([]*Event, error)
}

// Valid actions for audit events.
const (
	ActionSignIn      = "sign_in"
	ActionSignOut     = "sign_out"
	ActionGroupSwitch = "group_switch"
	ActionGateDeny    = "gate_deny"
	ActionEmbedIssue  = "embed_issue"
)

// Valid actor types.
const (
	ActorTypePrincipal = "principal"
	ActorTypeAnonymous = "anonymous"
)
