// Package audit emits one immutable event per validator rejection, lifecycle
// transition, issuance failure, and sweep.
package audit

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"temp-access-vendor/internal/audit/domain"
	auditrepo "temp-access-vendor/internal/audit/repository"
	"temp-access-vendor/internal/telemetry"
)

// Recorder persists audit events and fans them out to the telemetry stream.
// Record is best-effort: a persistence failure falls back to the process log
// and never blocks or reverts the operation that produced the event.
type Recorder struct {
	repo    auditrepo.Repository
	emitter telemetry.EventEmitter
}

// NewRecorder returns a Recorder. repo and emitter may each be nil; a nil
// repo logs every event to the process log, a nil emitter skips the stream.
func NewRecorder(repo auditrepo.Repository, emitter telemetry.EventEmitter) *Recorder {
	return &Recorder{repo: repo, emitter: emitter}
}

// Record writes one audit event, filling ID and Time when unset.
func (r *Recorder) Record(ctx context.Context, e domain.Event) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	if r.repo == nil {
		r.fallback(e, nil)
	} else if err := r.repo.Create(ctx, &e); err != nil {
		r.fallback(e, err)
	}

	telemetry.EmitAsync(r.emitter, ctx, streamEvent(e))
}

// fallback logs the full event to the process log so nothing is lost when
// the audit store is down.
func (r *Recorder) fallback(e domain.Event, cause error) {
	line, err := json.Marshal(map[string]string{
		"id": e.ID, "time": e.Time.Format(time.RFC3339Nano),
		"project_id": e.ProjectID, "session_id": e.SessionID, "user_id": e.UserID,
		"action": e.Action, "tier": e.Tier, "result": e.Result,
		"error_details": e.ErrorDetails, "source_ip": e.SourceIP, "metadata": e.Metadata,
	})
	if err != nil {
		line = []byte(e.Action + " " + e.SessionID)
	}
	if cause != nil {
		log.Printf("audit: store failed (%v), event: %s", cause, line)
		return
	}
	log.Printf("audit: %s", line)
}

func streamEvent(e domain.Event) *telemetry.Event {
	var meta json.RawMessage
	if e.Metadata != "" && json.Valid([]byte(e.Metadata)) {
		meta = json.RawMessage(e.Metadata)
	}
	return &telemetry.Event{
		ProjectID: e.ProjectID,
		UserID:    e.UserID,
		SessionID: e.SessionID,
		EventType: e.Action,
		Tier:      e.Tier,
		Result:    e.Result,
		Source:    "tav",
		Metadata:  meta,
		CreatedAt: e.Time,
	}
}
