package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"temp-access-vendor/internal/session/domain"
)

const uniqueViolation = "23505"

// PostgresStore implements Store over the sessions table. The CAS in
// UpdateStatus is a conditional UPDATE; the database, not the process, is
// the arbiter of concurrent transitions.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore returns a session store over the given db.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts the session. A duplicate composite key (or a reused
// SessionID, which has its own unique index) fails with ErrAlreadyExists.
func (s *PostgresStore) Create(ctx context.Context, sess *domain.Session) error {
	meta, err := json.Marshal(sess.Metadata)
	if err != nil {
		return fmt.Errorf("create session: metadata: %w", err)
	}
	const q = `
		INSERT INTO sessions
			(project_id, session_id, user_id, tier, status, requested_at, expires_at, external_role_id, request_metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = s.db.ExecContext(ctx, q,
		sess.ProjectID, sess.SessionID, sess.UserID, sess.Tier, string(sess.Status),
		sess.RequestedAt, sess.ExpiresAt, sess.ExternalRoleID, meta)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Get returns the session for the composite key, or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, projectID, sessionID string) (*domain.Session, error) {
	const q = selectColumns + ` WHERE project_id = $1 AND session_id = $2`
	sess, err := scanSession(s.db.QueryRowContext(ctx, q, projectID, sessionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// ListByUser returns the user's sessions ordered by RequestedAt descending.
func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Session, error) {
	const q = selectColumns + ` WHERE user_id = $1 ORDER BY requested_at DESC LIMIT $2`
	return s.queryList(ctx, q, userID, limit)
}

// ListExpiringBefore returns still-live sessions due at or before ts.
func (s *PostgresStore) ListExpiringBefore(ctx context.Context, ts time.Time, limit int) ([]*domain.Session, error) {
	const q = selectColumns + `
		WHERE expires_at <= $1 AND status IN ('PENDING', 'ACTIVE')
		ORDER BY expires_at ASC LIMIT $2`
	return s.queryList(ctx, q, ts, limit)
}

// UpdateStatus commits from -> to only while the stored status still equals
// from. Zero rows affected is disambiguated with a follow-up read: missing
// row -> ErrNotFound, anything else -> ErrStaleStatus.
func (s *PostgresStore) UpdateStatus(ctx context.Context, projectID, sessionID string, from, to domain.Status) error {
	const q = `
		UPDATE sessions SET status = $4
		WHERE project_id = $1 AND session_id = $2 AND status = $3`
	res, err := s.db.ExecContext(ctx, q, projectID, sessionID, string(from), string(to))
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := s.Get(ctx, projectID, sessionID); err != nil {
		return err
	}
	return ErrStaleStatus
}

const selectColumns = `
	SELECT project_id, session_id, user_id, tier, status, requested_at, expires_at, external_role_id, request_metadata
	FROM sessions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var sess domain.Session
	var status string
	var meta []byte
	err := row.Scan(&sess.ProjectID, &sess.SessionID, &sess.UserID, &sess.Tier, &status,
		&sess.RequestedAt, &sess.ExpiresAt, &sess.ExternalRoleID, &meta)
	if err != nil {
		return nil, err
	}
	sess.Status = domain.Status(status)
	sess.RequestedAt = sess.RequestedAt.UTC()
	sess.ExpiresAt = sess.ExpiresAt.UTC()
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &sess.Metadata); err != nil {
			return nil, fmt.Errorf("metadata: %w", err)
		}
	}
	return &sess, nil
}

func (s *PostgresStore) queryList(ctx context.Context, q string, args ...any) ([]*domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var out []*domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}
