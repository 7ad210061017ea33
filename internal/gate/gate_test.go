package gate

import (
	"context"
	"io"
	"testing"

	"dashgate/internal/auth"
	"dashgate/internal/observability"
	"dashgate/internal/routes"
)

func testGate(t *testing.T) *Gate {
	t.Helper()
	table := routes.Table{
		Sections: []routes.Section{
			{
				Title: "Main",
				Routes: []routes.Route{
					{Slug: "splash_page", Namespace: routes.NamespacePublic},
					{Slug: "home", Namespace: routes.NamespaceDemo},
					{Slug: "billing_panel", Namespace: routes.NamespaceProtected,
						Roles: []auth.Role{"admin", "billing"}},
				},
			},
		},
	}
	idx, err := routes.BuildIndex(table)
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	logger := observability.NewLogger(observability.Config{Level: "error", Output: io.Discard})
	return New(idx, logger, nil)
}

func TestEvaluate(t *testing.T) {
	g := testGate(t)
	ctx := context.Background()

	anon := Subject{}
	billing := Subject{Authenticated: true, Role: auth.Role("billing")}
	viewer := Subject{Authenticated: true, Role: auth.Role("viewer")}
	admin := Subject{Authenticated: true, Role: auth.RoleAdmin}
	noRole := Subject{Authenticated: true, Role: auth.RoleNone}

	tests := []struct {
		name string
		ns   routes.Namespace
		slug string
		subj Subject
		want Outcome
	}{
		{"unknown slug", routes.NamespaceProtected, "missing", billing, OutcomeNotFound},
		{"unknown namespace", routes.Namespace("internal"), "home", billing, OutcomeNotFound},
		{"public without session", routes.NamespacePublic, "splash_page", anon, OutcomeAllow},
		{"public with session", routes.NamespacePublic, "splash_page", billing, OutcomeAllow},
		{"protected without session", routes.NamespaceProtected, "billing_panel", anon, OutcomePendingAuth},
		{"demo without session", routes.NamespaceDemo, "home", anon, OutcomePendingAuth},
		{"matching role", routes.NamespaceProtected, "billing_panel", billing, OutcomeAllow},
		{"admin always passes", routes.NamespaceProtected, "billing_panel", admin, OutcomeAllow},
		{"non-matching role", routes.NamespaceProtected, "billing_panel", viewer, OutcomeDeny},
		{"no role", routes.NamespaceProtected, "billing_panel", noRole, OutcomeDeny},
		{"no role on open route", routes.NamespaceDemo, "home", noRole, OutcomeAllow},
		{"open route any role", routes.NamespaceDemo, "home", viewer, OutcomeAllow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := g.Evaluate(ctx, tt.ns, tt.slug, tt.subj)
			if d.Outcome != tt.want {
				t.Fatalf("outcome = %q, want %q", d.Outcome, tt.want)
			}
			switch tt.want {
			case OutcomeAllow:
				if d.Route.Slug != tt.slug {
					t.Errorf("route = %+v", d.Route)
				}
				if d.Redirect != "" {
					t.Errorf("allow should not redirect, got %q", d.Redirect)
				}
			case OutcomeNotFound, OutcomeDeny:
				if d.Redirect != HomePath {
					t.Errorf("redirect = %q, want %q", d.Redirect, HomePath)
				}
			case OutcomePendingAuth:
				if d.Redirect != LoginPath {
					t.Errorf("redirect = %q, want %q", d.Redirect, LoginPath)
				}
			}
		})
	}
}

func TestEvaluateIsStateless(t *testing.T) {
	g := testGate(t)
	ctx := context.Background()

	// A denial must not stick to the subject; the next evaluation with a
	// better role succeeds.
	viewer := Subject{Authenticated: true, Role: auth.Role("viewer")}
	if d := g.Evaluate(ctx, routes.NamespaceProtected, "billing_panel", viewer); d.Outcome != OutcomeDeny {
		t.Fatalf("outcome = %q", d.Outcome)
	}
	billing := Subject{Authenticated: true, Role: auth.Role("billing")}
	if d := g.Evaluate(ctx, routes.NamespaceProtected, "billing_panel", billing); d.Outcome != OutcomeAllow {
		t.Fatalf("outcome after role switch = %q", d.Outcome)
	}
}
