package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"temp-access-vendor/internal/policy/domain"
)

// PostgresRepository stores templates in the policy_templates table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a template repository over the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByTier returns the template for tier, or ErrNotFound.
func (r *PostgresRepository) GetByTier(ctx context.Context, tier string) (*domain.Template, error) {
	const q = `SELECT tier, version, body, variables FROM policy_templates WHERE tier = $1`
	var t domain.Template
	var vars []byte
	err := r.db.QueryRowContext(ctx, q, tier).Scan(&t.Tier, &t.Version, &t.Body, &vars)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get template: %w", err)
	}
	if len(vars) > 0 {
		if err := json.Unmarshal(vars, &t.Variables); err != nil {
			return nil, fmt.Errorf("get template: variables: %w", err)
		}
	}
	return &t, nil
}

// Upsert inserts or replaces the template for its tier.
func (r *PostgresRepository) Upsert(ctx context.Context, t *domain.Template) error {
	vars, err := json.Marshal(t.Variables)
	if err != nil {
		return fmt.Errorf("upsert template: variables: %w", err)
	}
	const q = `
		INSERT INTO policy_templates (tier, version, body, variables)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tier) DO UPDATE SET version = $2, body = $3, variables = $4`
	if _, err := r.db.ExecContext(ctx, q, t.Tier, t.Version, t.Body, vars); err != nil {
		return fmt.Errorf("upsert template: %w", err)
	}
	return nil
}

// List returns all templates ordered by tier.
func (r *PostgresRepository) List(ctx context.Context) ([]*domain.Template, error) {
	const q = `SELECT tier, version, body, variables FROM policy_templates ORDER BY tier`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()
	var out []*domain.Template
	for rows.Next() {
		var t domain.Template
		var vars []byte
		if err := rows.Scan(&t.Tier, &t.Version, &t.Body, &vars); err != nil {
			return nil, fmt.Errorf("list templates: %w", err)
		}
		if len(vars) > 0 {
			if err := json.Unmarshal(vars, &t.Variables); err != nil {
				return nil, fmt.Errorf("list templates: variables: %w", err)
			}
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}
