// Package gate decides, per navigation, whether a subject may land on a
// route. Every navigation is evaluated from scratch; there is no
// per-subject decision cache to go stale.
package gate

import (
	"context"

	"dashgate/internal/auth"
	"dashgate/internal/observability"
	"dashgate/internal/routes"
)

// Outcome is the gate's verdict for one navigation.
type Outcome string

const (
	// OutcomeNotFound: no such route; redirect home without revealing
	// whether the slug exists for anyone else.
	OutcomeNotFound Outcome = "not_found"
	// OutcomePendingAuth: the route needs a session the subject does not
	// have yet; the caller should start sign-in.
	OutcomePendingAuth Outcome = "pending_auth"
	OutcomeAllow       Outcome = "allow"
	// OutcomeDeny: authenticated but not authorized; redirect home with
	// no error surface.
	OutcomeDeny Outcome = "deny"
)

// HomePath is where NotFound and Deny silently land.
const HomePath = "/"

// LoginPath is where PendingAuth sends the subject to start sign-in.
const LoginPath = "/auth/login"

// Subject is everything the gate knows about the caller: whether a valid
// session exists, and the role the profile resolver settled on. An
// unknown role state (profile never resolved) carries RoleNone and is
// denied on any route with a role restriction; routes with an empty role
// set admit every authenticated subject.
type Subject struct {
	Authenticated bool
	Role          auth.Role
}

// Decision is the evaluation result. Route is populated only on Allow.
// Redirect is the path to send the subject to for every other outcome.
type Decision struct {
	Outcome  Outcome
	Route    routes.Route
	Redirect string
}

// Gate evaluates navigations against a route index.
type Gate struct {
	idx     *routes.Index
	logger  observability.Logger
	metrics *observability.Metrics
}

// New creates a Gate over the given route index.
func New(idx *routes.Index, logger observability.Logger, metrics *observability.Metrics) *Gate {
	return &Gate{
		idx:     idx,
		logger:  logger.WithComponent("gate"),
		metrics: metrics,
	}
}

// Evaluate runs the state machine for one navigation:
//
//	unknown (namespace, slug)        -> NotFound
//	public namespace                 -> Allow, no session or role needed
//	no session                       -> PendingAuth, redirect to sign-in
//	empty role set on the route      -> Allow for any authenticated subject
//	role not visible on the route    -> Deny
//	otherwise                        -> Allow
func (g *Gate) Evaluate(ctx context.Context, ns routes.Namespace, slug string, subj Subject) Decision {
	rt, ok := g.idx.Lookup(ns, slug)
	if !ok {
		return g.decide(ctx, ns, slug, subj, Decision{Outcome: OutcomeNotFound, Redirect: HomePath})
	}

	if rt.Namespace == routes.NamespacePublic {
		return g.decide(ctx, ns, slug, subj, Decision{Outcome: OutcomeAllow, Route: rt})
	}

	if !subj.Authenticated {
		return g.decide(ctx, ns, slug, subj, Decision{Outcome: OutcomePendingAuth, Redirect: LoginPath})
	}

	if len(rt.Roles) > 0 && !rt.Visible(subj.Role) {
		return g.decide(ctx, ns, slug, subj, Decision{Outcome: OutcomeDeny, Redirect: HomePath})
	}

	return g.decide(ctx, ns, slug, subj, Decision{Outcome: OutcomeAllow, Route: rt})
}

func (g *Gate) decide(ctx context.Context, ns routes.Namespace, slug string, subj Subject, d Decision) Decision {
	g.metrics.RecordGateDecision(string(d.Outcome))
	if d.Outcome == OutcomeDeny {
		g.logger.InfoContext(ctx, "navigation denied",
			"namespace", string(ns), "slug", slug, "role", string(subj.Role))
	} else {
		g.logger.DebugContext(ctx, "navigation evaluated",
			"namespace", string(ns), "slug", slug, "outcome", string(d.Outcome))
	}
	return d
}
