package repository

import (
	"context"
	"errors"
	"time"

	"temp-access-vendor/internal/session/domain"
)

// Store gateway sentinels. ErrStaleStatus means the conditional update lost:
// the session already transitioned. Callers treat it as "already done", not
// as a failure.
var (
	ErrAlreadyExists = errors.New("session already exists")
	ErrNotFound      = errors.New("session not found")
	ErrStaleStatus   = errors.New("session status changed concurrently")
)

// Store is the gateway to the keyed, indexed session store. All
// cross-instance coordination goes through UpdateStatus; correctness never
// depends on local locks.
type Store interface {
	// Create is insert-only; a duplicate (ProjectID, SessionID) fails with
	// ErrAlreadyExists.
	Create(ctx context.Context, s *domain.Session) error
	// Get returns the session or ErrNotFound.
	Get(ctx context.Context, projectID, sessionID string) (*domain.Session, error)
	// ListByUser returns the user's sessions, most recent first.
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Session, error)
	// ListExpiringBefore returns sessions with ExpiresAt <= ts that are still
	// PENDING or ACTIVE, soonest first, capped at limit.
	ListExpiringBefore(ctx context.Context, ts time.Time, limit int) ([]*domain.Session, error)
	// UpdateStatus is a compare-and-set: it commits only while the stored
	// status still equals from, otherwise ErrStaleStatus (ErrNotFound when
	// the session does not exist).
	UpdateStatus(ctx context.Context, projectID, sessionID string, from, to domain.Status) error
}
