package embed

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"dashgate/internal/observability"
)

func testLogger() observability.Logger {
	return observability.NewLogger(observability.Config{Level: "error", Output: io.Discard})
}

func TestIssueForwardsUpstreamShape(t *testing.T) {
	var got upstreamRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/embed-url/external-user" {
			t.Errorf("upstream got %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer rpb_test_key" {
			t.Errorf("authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode upstream body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embedUrl":"https://dash.example.com/embed/abc"}`))
	}))
	defer srv.Close()

	b := New(srv.URL, "rpb_test_key", srv.Client(), testLogger(), nil)
	res, err := b.Issue(context.Background(), Request{
		PageUUID:           "9b2c0e7a",
		ExternalIdentifier: "max@example.com",
		Groups:             []string{"billing"},
	})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if got.OrgID != "1" {
		t.Errorf("orgId = %q, want pinned \"1\"", got.OrgID)
	}
	if got.PageUUID != "9b2c0e7a" {
		t.Errorf("pageUuid = %q", got.PageUUID)
	}
	if got.ExternalIdentifier != "max@example.com" {
		t.Errorf("externalIdentifier = %q", got.ExternalIdentifier)
	}
	if len(got.GroupIDs) != 1 || got.GroupIDs[0] != "billing" {
		t.Errorf("groupIds = %v", got.GroupIDs)
	}

	if res.StatusCode != http.StatusOK {
		t.Errorf("status = %d", res.StatusCode)
	}
	if !strings.Contains(string(res.Body), "embedUrl") {
		t.Errorf("body = %s", res.Body)
	}
	if res.ContentType != "application/json" {
		t.Errorf("content type = %q", res.ContentType)
	}
}

func TestIssueRelaysUpstreamErrorVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"embed quota exceeded"}`))
	}))
	defer srv.Close()

	b := New(srv.URL, "key", srv.Client(), testLogger(), nil)
	res, err := b.Issue(context.Background(), Request{PageUUID: "p", ExternalIdentifier: "e"})
	if err != nil {
		t.Fatalf("upstream errors must relay, not fail: %v", err)
	}
	if res.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500 passed through", res.StatusCode)
	}
	if string(res.Body) != `{"error":"embed quota exceeded"}` {
		t.Errorf("body rewritten: %s", res.Body)
	}
}

func TestIssueUnreachableUpstream(t *testing.T) {
	b := New("http://127.0.0.1:1", "key", nil, testLogger(), nil)
	_, err := b.Issue(context.Background(), Request{PageUUID: "p", ExternalIdentifier: "e"})
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("err = %v, want ErrUpstreamUnavailable", err)
	}
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"valid", Request{PageUUID: "p", ExternalIdentifier: "e"}, false},
		{"valid with groups", Request{PageUUID: "p", ExternalIdentifier: "e", Groups: []string{"ops"}}, false},
		{"missing page", Request{ExternalIdentifier: "e"}, true},
		{"missing identifier", Request{PageUUID: "p"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
