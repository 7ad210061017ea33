package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"dashgate/internal/auth"
	"dashgate/internal/profile"
)

func TestSanitizeRequestID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"valid uuid", "550e8400-e29b-41d4-a716-446655440000", "550e8400-e29b-41d4-a716-446655440000"},
		{"alphanumeric", "req_123.abc", "req_123.abc"},
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
		{"contains space", "bad id", ""},
		{"contains newline", "bad\nid", ""},
		{"too long", string(make([]byte, 100)), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeRequestID(tt.in); got != tt.want {
				t.Errorf("sanitizeRequestID(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "client-id-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "client-id-1" {
		t.Errorf("context request ID = %q, want client-id-1", seen)
	}
	if got := rec.Header().Get(requestIDHeader); got != "client-id-1" {
		t.Errorf("response header = %q, want client-id-1", got)
	}

	// A forged header is replaced with a generated ID.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "bad id\n")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen == "" || seen == "bad id\n" {
		t.Errorf("forged ID not replaced: %q", seen)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := RateLimitConfig{RequestsPerSecond: 1, Burst: 2}
	handler := RateLimitMiddleware(cfg, nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:4000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Fatalf("first two requests = %v, want 200s within burst", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429", codes[2])
	}

	// A different client gets its own bucket.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:4000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("separate client = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Limit") == "" {
		t.Error("rate limit headers missing")
	}
}

func TestRateLimitDisabled(t *testing.T) {
	handler := RateLimitMiddleware(RateLimitConfig{}, nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	for range 50 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d with limiting disabled", rec.Code)
		}
	}
}

func TestSessionMiddleware(t *testing.T) {
	env := newTestEnv(t, nil)
	session, cookie := env.signIn(t, "auth0|u1", []string{"billing"}, "billing")

	var gotSession *auth.Session
	var gotRole auth.Role
	handler := SessionMiddleware(env.sessions, env.resolver, testLogger())(
		http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			gotSession = auth.SessionFromContext(r.Context())
			gotRole = auth.RoleFromContext(r.Context())
		}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if gotSession == nil || gotSession.ID != session.ID {
		t.Fatal("session not attached to context")
	}
	if gotRole != auth.Role("billing") {
		t.Errorf("role = %q, want billing", gotRole)
	}

	// Unknown cookie passes through anonymously, no rejection.
	gotSession, gotRole = nil, auth.RoleNone
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "deadbeef"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, middleware must not reject", rec.Code)
	}
	if gotSession != nil {
		t.Error("unknown session should stay anonymous")
	}
}

func TestSessionMiddlewareRestoresSessionAfterRestart(t *testing.T) {
	userAPI := newFakeUserAPI()
	upstream := httptest.NewServer(userAPI.handler())
	t.Cleanup(upstream.Close)
	userAPI.set("auth0|u1", []string{"billing"}, "billing")

	sessions := auth.NewMemorySessionStore()
	session, err := auth.NewSession(auth.Principal{Subject: "auth0|u1", Name: "Test User", Email: "user@example.com"}, "test-token", 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := sessions.Create(context.Background(), session); err != nil {
		t.Fatal(err)
	}

	// A resolver with an empty cache stands in for a freshly started
	// process serving a session restored from a persistent store.
	resolver := profile.NewResolver(profile.NewClient(upstream.URL, upstream.Client()), testLogger(), nil)
	t.Cleanup(resolver.Flush)

	var gotRole auth.Role
	handler := SessionMiddleware(sessions, resolver, testLogger())(
		http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			gotRole = auth.RoleFromContext(r.Context())
		}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: session.ID})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if gotRole != auth.Role("billing") {
		t.Fatalf("role = %q, want billing resolved from the profile store", gotRole)
	}
	if prof, _ := resolver.Current("auth0|u1"); prof == nil {
		t.Error("profile should be cached after the lazy resolution")
	}
}

func TestSessionMiddlewareExpiredSession(t *testing.T) {
	env := newTestEnv(t, nil)

	session, err := auth.NewSession(auth.Principal{Subject: "auth0|u1", Name: "T", Email: "t@example.com"}, "tok", 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	session.ExpiresAt = session.CreatedAt.Add(-1)
	if err := env.sessions.Create(context.Background(), session); err != nil {
		t.Fatal(err)
	}

	var gotSession *auth.Session
	handler := SessionMiddleware(env.sessions, env.resolver, testLogger())(
		http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			gotSession = auth.SessionFromContext(r.Context())
		}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: session.ID})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if gotSession != nil {
		t.Error("expired session should not authenticate")
	}
}

func TestApplyMiddlewaresOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	handler := ApplyMiddlewares(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mw("outer"), mw("inner"))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	want := []string{"outer", "inner", "handler"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestClientKeyWithProxies(t *testing.T) {
	proxies, err := ParseTrustedProxies("10.0.0.0/8")
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:555"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.1.2.3")
	if got := clientKeyWithProxies(req, proxies); got != "203.0.113.9" {
		t.Errorf("trusted proxy key = %q, want forwarded client", got)
	}

	// From an untrusted address the header is ignored.
	req.RemoteAddr = "198.51.100.7:555"
	if got := clientKeyWithProxies(req, proxies); got != "198.51.100.7" {
		t.Errorf("untrusted key = %q, want remote address", got)
	}
}
