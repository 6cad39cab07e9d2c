package domain

import "time"

// Status is the lifecycle state of a vended session.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusActive  Status = "ACTIVE"
	StatusExpired Status = "EXPIRED"
	StatusRevoked Status = "REVOKED"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusExpired, StatusRevoked:
		return true
	}
	return false
}

// Terminal reports whether s is final. Terminal sessions never transition again.
func (s Status) Terminal() bool {
	return s == StatusExpired || s == StatusRevoked
}

// CanTransitionTo reports whether a session in status s may move to next.
// PENDING may activate, expire or be revoked; ACTIVE may expire or be revoked.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusActive || next == StatusExpired || next == StatusRevoked
	case StatusActive:
		return next == StatusExpired || next == StatusRevoked
	}
	return false
}

// Request is a caller's ask for temporary access to a project.
type Request struct {
	ProjectID       string
	UserID          string
	Tier            string
	DurationSeconds int64
	MFAUsed         bool
	SourceIP        string
	Department      string
	Reason          string
}

// Duration returns the requested session length.
func (r Request) Duration() time.Duration {
	return time.Duration(r.DurationSeconds) * time.Second
}

// Metadata holds the issuance artifacts persisted with a session.
type Metadata struct {
	ExternalID string `json:"external_id"`
	SourceIP   string `json:"source_ip,omitempty"`
	MFAUsed    bool   `json:"mfa_used"`
	Department string `json:"department,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Session is one vended grant of temporary access. Identity is the composite
// (ProjectID, SessionID); SessionID values are additionally unique on their own.
type Session struct {
	ProjectID      string
	SessionID      string
	UserID         string
	Tier           string
	Status         Status
	RequestedAt    time.Time // UTC
	ExpiresAt      time.Time // UTC, always RequestedAt + requested duration
	ExternalRoleID string    // issuer-side handle, needed for invalidation
	Metadata       Metadata
}

// Remaining returns the time left before expiry at now, floored at zero.
func (s *Session) Remaining(now time.Time) time.Duration {
	if d := s.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
