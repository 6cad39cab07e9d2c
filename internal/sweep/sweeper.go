// Package sweep expires overdue sessions. The sweeper is the only
// time-driven writer: expiry is lazy, a session past its deadline stays
// ACTIVE in the store until a sweep (or an operator revoke) gets to it.
package sweep

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	auditdomain "temp-access-vendor/internal/audit/domain"
	"temp-access-vendor/internal/session/domain"
	"temp-access-vendor/internal/session/service"
)

// DefaultBatchSize bounds how many due sessions one sweep touches.
const DefaultBatchSize = 100

// Lister is the slice of the session store the sweeper reads from.
type Lister interface {
	ListExpiringBefore(ctx context.Context, ts time.Time, limit int) ([]*domain.Session, error)
}

// Expirer performs the EXPIRED transition for one session.
type Expirer interface {
	Expire(ctx context.Context, projectID, sessionID string) (service.TransitionOutcome, error)
}

type recorder interface {
	Record(ctx context.Context, e auditdomain.Event)
}

// Report summarizes one sweep.
type Report struct {
	// Scanned is how many due sessions the sweep picked up.
	Scanned int
	// Expired is how many transitions this sweep committed.
	Expired int
	// AlreadyDone counts sessions another actor finished first.
	AlreadyDone int
	// Failed counts sessions whose transition errored; they stay due and the
	// next sweep retries them.
	Failed int
}

func (r Report) String() string {
	return fmt.Sprintf("scanned=%d expired=%d already_done=%d failed=%d",
		r.Scanned, r.Expired, r.AlreadyDone, r.Failed)
}

// Sweeper runs bounded sweeps over the session store.
type Sweeper struct {
	store     Lister
	lifecycle Expirer
	audit     recorder
	batchSize int
	now       func() time.Time

	scanned     metric.Int64Counter
	expired     metric.Int64Counter
	alreadyDone metric.Int64Counter
	failed      metric.Int64Counter
}

// NewSweeper returns a Sweeper. batchSize <= 0 selects DefaultBatchSize;
// audit may be nil.
func NewSweeper(store Lister, lifecycle Expirer, audit recorder, batchSize int) *Sweeper {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	s := &Sweeper{
		store:     store,
		lifecycle: lifecycle,
		audit:     audit,
		batchSize: batchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
	meter := otel.Meter("temp-access-vendor/sweep")
	var err error
	if s.scanned, err = meter.Int64Counter("tav.sweep.sessions_scanned"); err != nil {
		log.Printf("sweep: metric init: %v", err)
	}
	if s.expired, err = meter.Int64Counter("tav.sweep.sessions_expired"); err != nil {
		log.Printf("sweep: metric init: %v", err)
	}
	if s.alreadyDone, err = meter.Int64Counter("tav.sweep.sessions_already_done"); err != nil {
		log.Printf("sweep: metric init: %v", err)
	}
	if s.failed, err = meter.Int64Counter("tav.sweep.sessions_failed"); err != nil {
		log.Printf("sweep: metric init: %v", err)
	}
	return s
}

// Run performs one sweep: list up to batchSize sessions due at or before
// now and expire each independently. A failed transition is counted and
// left for the next sweep; it never stops the batch. The listing error is
// the only error Run returns.
func (s *Sweeper) Run(ctx context.Context) (Report, error) {
	var rep Report

	due, err := s.store.ListExpiringBefore(ctx, s.now(), s.batchSize)
	if err != nil {
		return rep, fmt.Errorf("list due sessions: %w", err)
	}
	rep.Scanned = len(due)

	for _, sess := range due {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		out, err := s.lifecycle.Expire(ctx, sess.ProjectID, sess.SessionID)
		switch {
		case err != nil:
			rep.Failed++
			log.Printf("sweep: expire %s/%s: %v", sess.ProjectID, sess.SessionID, err)
		case out == service.TransitionAlreadyDone:
			rep.AlreadyDone++
		default:
			rep.Expired++
		}
	}

	s.count(ctx, rep)
	if rep.Scanned > 0 && s.audit != nil {
		s.audit.Record(ctx, auditdomain.Event{
			Action: auditdomain.ActionSweepCompleted,
			Result: auditdomain.ResultSuccess,
			Metadata: fmt.Sprintf(`{"scanned":%d,"expired":%d,"already_done":%d,"failed":%d}`,
				rep.Scanned, rep.Expired, rep.AlreadyDone, rep.Failed),
		})
	}
	return rep, nil
}

func (s *Sweeper) count(ctx context.Context, rep Report) {
	if s.scanned != nil {
		s.scanned.Add(ctx, int64(rep.Scanned))
	}
	if s.expired != nil {
		s.expired.Add(ctx, int64(rep.Expired))
	}
	if s.alreadyDone != nil {
		s.alreadyDone.Add(ctx, int64(rep.AlreadyDone))
	}
	if s.failed != nil {
		s.failed.Add(ctx, int64(rep.Failed))
	}
}
