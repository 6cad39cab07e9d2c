package issuer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPIssuer_Issue(t *testing.T) {
	var got issueRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/roles" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key-1" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_ = json.NewEncoder(w).Encode(issueResponse{
			AccessKeyID:     "AKIA123",
			SecretAccessKey: "secret",
			SessionToken:    "token",
			Expiration:      time.Date(2025, 6, 1, 16, 0, 0, 0, time.UTC),
			ExternalRoleID:  "role-abc",
		})
	}))
	defer srv.Close()

	c := NewHTTPIssuer("key-1", srv.URL, time.Second)
	trust := TrustConditions{
		ExternalID:  "ext-1",
		SourceCIDRs: []string{"10.0.0.0/8"},
		MFAMaxAge:   time.Hour,
		Department:  "Engineering",
	}
	grant, err := c.Issue(context.Background(), []byte(`{"Version":"2012-10-17"}`), trust, 4*time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if grant.ExternalRoleID != "role-abc" || grant.Credential.AccessKeyID != "AKIA123" {
		t.Errorf("grant = %+v", grant)
	}
	if got.ExternalID != "ext-1" || got.MFAMaxAgeSeconds != 3600 || got.DurationSeconds != 4*3600 {
		t.Errorf("request = %+v", got)
	}
	if string(got.Policy) != `{"Version":"2012-10-17"}` {
		t.Errorf("policy = %s", got.Policy)
	}
}

func TestHTTPIssuer_IssueRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"policy too permissive"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := NewHTTPIssuer("", srv.URL, time.Second)
	if _, err := c.Issue(context.Background(), []byte(`{}`), TrustConditions{}, time.Hour); err == nil {
		t.Fatal("Issue: want error on non-2xx")
	}
}

func TestHTTPIssuer_IssueTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewHTTPIssuer("", srv.URL, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Issue(ctx, []byte(`{}`), TrustConditions{}, time.Hour)
	if err == nil {
		t.Fatal("Issue: want error on timeout")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded in chain", err)
	}
}

func TestHTTPIssuer_Invalidate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		switch r.URL.Path {
		case "/v1/roles/role-abc":
			w.WriteHeader(http.StatusNoContent)
		case "/v1/roles/gone":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	c := NewHTTPIssuer("", srv.URL, time.Second)
	if err := c.Invalidate(context.Background(), "role-abc"); err != nil {
		t.Errorf("Invalidate: %v", err)
	}
	if err := c.Invalidate(context.Background(), "gone"); !errors.Is(err, ErrRoleNotFound) {
		t.Errorf("error = %v, want ErrRoleNotFound", err)
	}
	if err := c.Invalidate(context.Background(), "boom"); err == nil || errors.Is(err, ErrRoleNotFound) {
		t.Errorf("error = %v, want non-NotFound failure", err)
	}
}

func TestNewExternalID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := NewExternalID()
		if err != nil {
			t.Fatalf("NewExternalID: %v", err)
		}
		if len(id) != 16 {
			t.Fatalf("len = %d, want 16", len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate external id %s", id)
		}
		seen[id] = true
	}
}
