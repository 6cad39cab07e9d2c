// Package domain defines the append-only audit event.
package domain

import "time"

// Actions recorded by the engine.
const (
	ActionSessionCreated     = "session.created"
	ActionSessionRejected    = "session.rejected"
	ActionSessionIssueFailed = "session.issue_failed"
	ActionSessionRevoked     = "session.revoked"
	ActionSessionExpired     = "session.expired"
	ActionSweepCompleted     = "sweep.completed"
)

// Results of the recorded action.
const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// Event is one immutable audit record. Events are only ever appended, never
// updated or deleted.
type Event struct {
	ID           string
	Time         time.Time // UTC
	ProjectID    string
	SessionID    string
	UserID       string
	Action       string
	Tier         string
	Result       string
	ErrorDetails string
	SourceIP     string
	Metadata     string // JSON
}
