package repository

import (
	"context"
	"errors"

	"temp-access-vendor/internal/policy/domain"
)

// ErrNotFound is returned when no template exists for a tier.
var ErrNotFound = errors.New("policy template not found")

// Repository defines persistence for policy templates.
type Repository interface {
	GetByTier(ctx context.Context, tier string) (*domain.Template, error)
	Upsert(ctx context.Context, t *domain.Template) error
	List(ctx context.Context) ([]*domain.Template, error)
}
