package repository

import (
	"context"
	"database/sql"
	"fmt"

	"temp-access-vendor/internal/audit/domain"
)

// PostgresRepository appends events to the audit_events table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit repository over the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create appends one event.
func (r *PostgresRepository) Create(ctx context.Context, e *domain.Event) error {
	const q = `
		INSERT INTO audit_events
			(id, time, project_id, session_id, user_id, action, tier, result, error_details, source_ip, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.Time, e.ProjectID, e.SessionID, e.UserID, e.Action, e.Tier, e.Result,
		nullable(e.ErrorDetails), nullable(e.SourceIP), nullable(e.Metadata))
	if err != nil {
		return fmt.Errorf("create audit event: %w", err)
	}
	return nil
}

// ListBySession returns the session's events, newest first.
func (r *PostgresRepository) ListBySession(ctx context.Context, projectID, sessionID string, limit int) ([]*domain.Event, error) {
	const q = selectColumns + ` WHERE project_id = $1 AND session_id = $2 ORDER BY time DESC LIMIT $3`
	return r.queryList(ctx, q, projectID, sessionID, limit)
}

// ListByUser returns the user's events, newest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Event, error) {
	const q = selectColumns + ` WHERE user_id = $1 ORDER BY time DESC LIMIT $2`
	return r.queryList(ctx, q, userID, limit)
}

const selectColumns = `
	SELECT id, time, project_id, session_id, user_id, action, tier, result, error_details, source_ip, metadata
	FROM audit_events`

func (r *PostgresRepository) queryList(ctx context.Context, q string, args ...any) ([]*domain.Event, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()
	var out []*domain.Event
	for rows.Next() {
		var e domain.Event
		var errDetails, sourceIP, metadata sql.NullString
		if err := rows.Scan(&e.ID, &e.Time, &e.ProjectID, &e.SessionID, &e.UserID, &e.Action,
			&e.Tier, &e.Result, &errDetails, &sourceIP, &metadata); err != nil {
			return nil, fmt.Errorf("list audit events: %w", err)
		}
		e.Time = e.Time.UTC()
		e.ErrorDetails = errDetails.String
		e.SourceIP = sourceIP.String
		e.Metadata = metadata.String
		out = append(out, &e)
	}
	return out, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
