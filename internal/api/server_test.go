package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"golang.org/x/oauth2"

	"dashgate/internal/audit"
	"dashgate/internal/auth"
	"dashgate/internal/auth/oidc"
	"dashgate/internal/embed"
	"dashgate/internal/gate"
	"dashgate/internal/observability"
	"dashgate/internal/profile"
	"dashgate/internal/routes"
)

// fakeProvider satisfies IdentityProvider without a discovery endpoint.
type fakeProvider struct {
	mu          sync.Mutex
	identity    *oidc.Identity
	exchangeErr error
	lastCode    string
}

func (f *fakeProvider) AuthCodeURL(state string, _ ...oauth2.AuthCodeOption) string {
	return "https://idp.example.com/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeProvider) Exchange(_ context.Context, code string) (*oidc.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCode = code
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return f.identity, nil
}

// fakeUserAPI stands in for the IdP's user management API.
type fakeUserAPI struct {
	mu      sync.Mutex
	roles   map[string][]string
	groups  map[string]string
	patches []map[string]any
}

func newFakeUserAPI() *fakeUserAPI {
	return &fakeUserAPI{
		roles:  make(map[string][]string),
		groups: make(map[string]string),
	}
}

func (f *fakeUserAPI) set(subject string, roles []string, group string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[subject] = roles
	f.groups[subject] = group
}

func (f *fakeUserAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v2/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		subject := r.PathValue("id")
		roles, ok := f.roles[subject]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"app_metadata":  map[string]any{"roles": roles},
			"user_metadata": map[string]any{"group": f.groups[subject]},
		})
	})
	mux.HandleFunc("PATCH /api/v2/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			UserMetadata map[string]any `json:"user_metadata"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.patches = append(f.patches, body.UserMetadata)
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{})
	})
	return mux
}

type testEnv struct {
	server   *Server
	mux      *http.ServeMux
	sessions *auth.MemorySessionStore
	resolver *profile.Resolver
	auditLog *audit.MemoryLogger
	provider *fakeProvider
	userAPI  *fakeUserAPI
	key      []byte
}

// testLogger is quiet unless something goes wrong.
func testLogger() observability.Logger {
	return observability.NewLogger(observability.Config{Level: "error", Format: "text", Output: io.Discard})
}

func newTestEnv(t *testing.T, broker *embed.Broker) *testEnv {
	t.Helper()

	userAPI := newFakeUserAPI()
	upstream := httptest.NewServer(userAPI.handler())
	t.Cleanup(upstream.Close)

	logger := testLogger()
	resolver := profile.NewResolver(profile.NewClient(upstream.URL, upstream.Client()), logger, nil)
	t.Cleanup(resolver.Flush)

	table := routes.DefaultTable()
	idx, err := routes.BuildIndex(table)
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}

	sessions := auth.NewMemorySessionStore()
	auditLog := audit.NewMemoryLogger()
	provider := &fakeProvider{}
	key := bytes.Repeat([]byte{0x2a}, 32)

	mux := http.NewServeMux()
	srv := NewServer(mux, ServerConfig{
		Provider:      provider,
		Sessions:      sessions,
		Resolver:      resolver,
		Gate:          gate.New(idx, logger, nil),
		Table:         table,
		Broker:        broker,
		EncryptionKey: key,
	}, logger, nil, auditLog)
	srv.RegisterRoutes()

	return &testEnv{
		server:   srv,
		mux:      mux,
		sessions: sessions,
		resolver: resolver,
		auditLog: auditLog,
		provider: provider,
		userAPI:  userAPI,
		key:      key,
	}
}

// signIn seeds the user API, resolves the profile, and creates a session
// directly in the store, returning the session cookie for requests.
func (e *testEnv) signIn(t *testing.T, subject string, groups []string, group string) (*auth.Session, *http.Cookie) {
	t.Helper()

	e.userAPI.set(subject, groups, group)
	if _, _, err := e.resolver.Resolve(context.Background(), subject, "test-token"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	session, err := auth.NewSession(auth.Principal{Subject: subject, Name: "Test User", Email: "user@example.com"}, "test-token", 0, nil)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := e.sessions.Create(context.Background(), session); err != nil {
		t.Fatalf("Create session: %v", err)
	}
	return session, &http.Cookie{Name: sessionCookieName, Value: session.ID}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return v
}
