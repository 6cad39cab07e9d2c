package repository

import (
	"context"

	"temp-access-vendor/internal/audit/domain"
)

// Repository defines persistence for audit events. Append-only: there is no
// update or delete.
type Repository interface {
	Create(ctx context.Context, e *domain.Event) error
	ListBySession(ctx context.Context, projectID, sessionID string, limit int) ([]*domain.Event, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Event, error)
}
