package profile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dashgate/internal/auth"
	"dashgate/internal/observability"
)

// ErrNoProfile reports an operation that requires a resolved profile for
// a principal the resolver has never successfully fetched.
var ErrNoProfile = errors.New("no resolved profile for principal")

const patchTimeout = 10 * time.Second

// Resolver caches one profile per principal and serializes upstream
// traffic: concurrent resolutions for the same principal share a single
// fetch, and results that arrive after a group switch are discarded
// instead of clobbering the newer state.
type Resolver struct {
	client  *Client
	logger  observability.Logger
	metrics *observability.Metrics

	mu      sync.Mutex
	entries map[string]*entry

	// pending tracks fire-and-forget metadata writes so shutdown can
	// wait for them.
	pending sync.WaitGroup
}

type entry struct {
	profile  *Profile
	gen      uint64
	inflight *fetchCall
}

type fetchCall struct {
	done chan struct{}
	err  error
}

// NewResolver creates a Resolver backed by the given management API client.
func NewResolver(client *Client, logger observability.Logger, metrics *observability.Metrics) *Resolver {
	return &Resolver{
		client:  client,
		logger:  logger.WithComponent("profile"),
		metrics: metrics,
		entries: make(map[string]*entry),
	}
}

// Resolve returns the principal's profile, fetching from the IdP if
// needed. Concurrent calls for the same principal coalesce onto one
// upstream request. On fetch failure the previously resolved profile, if
// any, is retained and returned alongside the error; the caller decides
// whether stale data is acceptable for its purpose.
func (r *Resolver) Resolve(ctx context.Context, subject, accessToken string) (*Profile, auth.RoleState, error) {
	if subject == "" {
		return nil, auth.RoleStateUnknown, fmt.Errorf("%w: empty subject", ErrProfileFetch)
	}

	r.mu.Lock()
	e := r.entry(subject)

	if call := e.inflight; call != nil {
		r.mu.Unlock()
		r.metrics.RecordProfileResolution("coalesced")
		select {
		case <-call.done:
		case <-ctx.Done():
			return r.snapshot(subject, ctx.Err())
		}
		return r.snapshot(subject, call.err)
	}

	call := &fetchCall{done: make(chan struct{})}
	e.inflight = call
	startGen := e.gen
	r.mu.Unlock()

	prof, err := r.client.Fetch(ctx, subject, accessToken)

	r.mu.Lock()
	if e.inflight == call {
		e.inflight = nil
	}
	switch {
	case err != nil:
		call.err = err
		r.metrics.RecordProfileResolution("failed")
		r.logger.WarnContext(ctx, "profile fetch failed", "subject", subject, "error", err)
	case e.gen != startGen:
		// The profile changed while this fetch was in flight; the
		// response describes a state the principal already left.
		r.metrics.RecordProfileResolution("stale_discarded")
		r.logger.DebugContext(ctx, "discarded stale profile result", "subject", subject)
	default:
		e.profile = prof
		r.metrics.RecordProfileResolution("ok")
	}
	r.mu.Unlock()
	close(call.done)

	return r.snapshot(subject, call.err)
}

// SwitchGroup changes the principal's active group optimistically: the
// cached profile is updated immediately and the IdP write happens in the
// background. A failed write is logged but never rolls the switch back.
// The target group does not have to be in the eligible set; route
// authorization is enforced at evaluation time regardless.
func (r *Resolver) SwitchGroup(ctx context.Context, subject, accessToken string, group auth.Role) (*Profile, error) {
	r.mu.Lock()
	e, ok := r.entries[subject]
	if !ok || e.profile == nil {
		r.mu.Unlock()
		return nil, ErrNoProfile
	}
	e.profile.Group = group
	e.gen++
	snap := e.profile.clone()
	r.mu.Unlock()

	r.patchAsync(subject, accessToken, map[string]any{"group": string(group)}, "group switch")
	return snap, nil
}

// TouchLogin records the login timestamp in the principal's
// user_metadata. The write is fire-and-forget; sign-in never waits on it
// or fails because of it.
func (r *Resolver) TouchLogin(subject, accessToken string) {
	now := time.Now().UTC()

	r.mu.Lock()
	if e, ok := r.entries[subject]; ok && e.profile != nil {
		e.profile.LatestLogin = now
	}
	r.mu.Unlock()

	r.patchAsync(subject, accessToken, map[string]any{"latestLogin": now.Format(time.RFC3339)}, "login timestamp")
}

// Current returns the cached profile without touching the upstream.
func (r *Resolver) Current(subject string) (*Profile, auth.RoleState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[subject]; ok && e.profile != nil {
		snap := e.profile.clone()
		return snap, snap.State()
	}
	return nil, auth.RoleStateUnknown
}

// Invalidate drops the principal's cached profile, typically on sign-out.
func (r *Resolver) Invalidate(subject string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[subject]; ok {
		e.profile = nil
		e.gen++
		delete(r.entries, subject)
	}
}

// Flush blocks until all pending background metadata writes complete.
func (r *Resolver) Flush() {
	r.pending.Wait()
}

func (r *Resolver) entry(subject string) *entry {
	e, ok := r.entries[subject]
	if !ok {
		e = &entry{}
		r.entries[subject] = e
	}
	return e
}

func (r *Resolver) snapshot(subject string, fetchErr error) (*Profile, auth.RoleState, error) {
	r.mu.Lock()
	var snap *Profile
	if e, ok := r.entries[subject]; ok && e.profile != nil {
		snap = e.profile.clone()
	}
	r.mu.Unlock()

	if fetchErr != nil {
		return snap, snap.State(), fetchErr
	}
	if snap == nil {
		return nil, auth.RoleStateUnknown, ErrNoProfile
	}
	return snap, snap.State(), nil
}

func (r *Resolver) patchAsync(subject, accessToken string, fields map[string]any, what string) {
	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), patchTimeout)
		defer cancel()
		if err := r.client.PatchUserMetadata(ctx, subject, accessToken, fields); err != nil {
			r.logger.Warn("metadata write failed", "subject", subject, "write", what, "error", err)
		}
	}()
}
