package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"temp-access-vendor/internal/session/domain"
)

// MemoryStore is a mutex-guarded in-memory Store with the same CAS semantics
// as the postgres implementation. Used for deterministic tests and dev
// setups.
type MemoryStore struct {
	mu sync.Mutex
	m  map[string]*domain.Session
}

// NewMemoryStore returns an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]*domain.Session)}
}

func key(projectID, sessionID string) string {
	return projectID + "/" + sessionID
}

// Create inserts the session; a duplicate key (or a reused SessionID under
// another project) fails with ErrAlreadyExists.
func (s *MemoryStore) Create(ctx context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[key(sess.ProjectID, sess.SessionID)]; ok {
		return ErrAlreadyExists
	}
	for _, existing := range s.m {
		if existing.SessionID == sess.SessionID {
			return ErrAlreadyExists
		}
	}
	cp := *sess
	s.m[key(sess.ProjectID, sess.SessionID)] = &cp
	return nil
}

// Get returns a copy of the session, or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, projectID, sessionID string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[key(projectID, sessionID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

// ListByUser returns the user's sessions ordered by RequestedAt descending.
func (s *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Session
	for _, sess := range s.m {
		if sess.UserID == userID {
			cp := *sess
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListExpiringBefore returns still-live sessions due at or before ts,
// soonest first.
func (s *MemoryStore) ListExpiringBefore(ctx context.Context, ts time.Time, limit int) ([]*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Session
	for _, sess := range s.m {
		if (sess.Status == domain.StatusPending || sess.Status == domain.StatusActive) && !sess.ExpiresAt.After(ts) {
			cp := *sess
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpdateStatus commits from -> to only while the stored status still equals
// from.
func (s *MemoryStore) UpdateStatus(ctx context.Context, projectID, sessionID string, from, to domain.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[key(projectID, sessionID)]
	if !ok {
		return ErrNotFound
	}
	if sess.Status != from {
		return ErrStaleStatus
	}
	sess.Status = to
	return nil
}
