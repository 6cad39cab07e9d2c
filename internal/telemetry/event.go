// Package telemetry fans audit events out to an external stream (Kafka,
// OTel logs). Emission is best-effort and never blocks the operation that
// produced the event.
package telemetry

import (
	"context"
	"encoding/json"
	"time"
)

// Event is the stream shape of an audit event.
type Event struct {
	ProjectID string          `json:"projectId"`
	UserID    string          `json:"userId,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	EventType string          `json:"eventType"`
	Tier      string          `json:"tier,omitempty"`
	Result    string          `json:"result,omitempty"`
	Source    string          `json:"source,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// EventEmitter emits stream events. Best-effort; callers log and ignore
// errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}
