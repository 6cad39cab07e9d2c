package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"temp-access-vendor/internal/session/domain"
)

func newSession(projectID, sessionID, userID string, status domain.Status, requestedAt time.Time, ttl time.Duration) *domain.Session {
	return &domain.Session{
		ProjectID:   projectID,
		SessionID:   sessionID,
		UserID:      userID,
		Tier:        "read-only",
		Status:      status,
		RequestedAt: requestedAt,
		ExpiresAt:   requestedAt.Add(ttl),
	}
}

func TestMemoryStore_CreateDuplicate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now().UTC()
	if err := s.Create(ctx, newSession("p1", "s1", "alice", domain.StatusActive, now, time.Hour)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Create(ctx, newSession("p1", "s1", "alice", domain.StatusActive, now, time.Hour)); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("duplicate key: error = %v, want ErrAlreadyExists", err)
	}
	// SessionID is globally unique, even across projects.
	if err := s.Create(ctx, newSession("p2", "s1", "bob", domain.StatusActive, now, time.Hour)); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("reused session id: error = %v, want ErrAlreadyExists", err)
	}
}

func TestMemoryStore_GetNotFound(t *testing.T) {
	if _, err := NewMemoryStore().Get(context.Background(), "p1", "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now().UTC()
	if err := s.Create(ctx, newSession("p1", "s1", "alice", domain.StatusActive, now, time.Hour)); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, "p1", "s1")
	if err != nil {
		t.Fatal(err)
	}
	got.Status = domain.StatusRevoked
	again, err := s.Get(ctx, "p1", "s1")
	if err != nil {
		t.Fatal(err)
	}
	if again.Status != domain.StatusActive {
		t.Error("mutating a returned session must not affect the store")
	}
}

func TestMemoryStore_ListByUserOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		sess := newSession("p1", fmt.Sprintf("s%d", i), "alice", domain.StatusActive, base.Add(time.Duration(i)*time.Minute), time.Hour)
		if err := s.Create(ctx, sess); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Create(ctx, newSession("p1", "other", "bob", domain.StatusActive, base, time.Hour)); err != nil {
		t.Fatal(err)
	}
	out, err := s.ListByUser(ctx, "alice", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 {
		t.Fatalf("len = %d, want 3", len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i].RequestedAt.After(out[i-1].RequestedAt) {
			t.Errorf("not ordered by RequestedAt descending: %v before %v", out[i-1].RequestedAt, out[i].RequestedAt)
		}
	}
	if out[0].SessionID != "s4" {
		t.Errorf("newest first: got %s", out[0].SessionID)
	}
}

func TestMemoryStore_ListExpiringBefore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mustCreate := func(sess *domain.Session) {
		t.Helper()
		if err := s.Create(ctx, sess); err != nil {
			t.Fatal(err)
		}
	}
	mustCreate(newSession("p1", "due-active", "u", domain.StatusActive, base, time.Hour))
	mustCreate(newSession("p1", "due-pending", "u", domain.StatusPending, base, 30*time.Minute))
	mustCreate(newSession("p1", "due-revoked", "u", domain.StatusRevoked, base, time.Hour))
	mustCreate(newSession("p1", "not-due", "u", domain.StatusActive, base, 10*time.Hour))

	out, err := s.ListExpiringBefore(ctx, base.Add(2*time.Hour), 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2 (%v)", len(out), out)
	}
	// Soonest expiry first.
	if out[0].SessionID != "due-pending" || out[1].SessionID != "due-active" {
		t.Errorf("order = %s, %s", out[0].SessionID, out[1].SessionID)
	}

	limited, err := s.ListExpiringBefore(ctx, base.Add(2*time.Hour), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("limit ignored: len = %d", len(limited))
	}
}

func TestMemoryStore_UpdateStatusCAS(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now().UTC()
	if err := s.Create(ctx, newSession("p1", "s1", "alice", domain.StatusActive, now, time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateStatus(ctx, "p1", "s1", domain.StatusActive, domain.StatusRevoked); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := s.UpdateStatus(ctx, "p1", "s1", domain.StatusActive, domain.StatusExpired); !errors.Is(err, ErrStaleStatus) {
		t.Errorf("stale: error = %v, want ErrStaleStatus", err)
	}
	if err := s.UpdateStatus(ctx, "p1", "missing", domain.StatusActive, domain.StatusExpired); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing: error = %v, want ErrNotFound", err)
	}
	got, err := s.Get(ctx, "p1", "s1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusRevoked {
		t.Errorf("status = %s, want REVOKED", got.Status)
	}
}

// Many racing CAS attempts commit exactly once.
func TestMemoryStore_UpdateStatusConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now().UTC()
	if err := s.Create(ctx, newSession("p1", "s1", "alice", domain.StatusActive, now, time.Hour)); err != nil {
		t.Fatal(err)
	}
	const n = 32
	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			to := domain.StatusRevoked
			if i%2 == 0 {
				to = domain.StatusExpired
			}
			results[i] = s.UpdateStatus(ctx, "p1", "s1", domain.StatusActive, to)
		}(i)
	}
	wg.Wait()
	committed := 0
	for _, err := range results {
		switch {
		case err == nil:
			committed++
		case errors.Is(err, ErrStaleStatus):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if committed != 1 {
		t.Fatalf("committed = %d, want exactly 1", committed)
	}
	got, _ := s.Get(ctx, "p1", "s1")
	if !got.Status.Terminal() {
		t.Errorf("final status = %s, want terminal", got.Status)
	}
}
