// Package service implements the session lifecycle: the only code that
// creates sessions or moves them between statuses. Every transition goes
// through the store's compare-and-set; the store is the source of truth and
// external invalidation is a best-effort compensating action that never
// rolls a committed transition back. The resulting window where a terminal
// session still has a live external credential is bounded by the
// invalidation retries and is an accepted property of the design.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	auditdomain "temp-access-vendor/internal/audit/domain"
	"temp-access-vendor/internal/issuer"
	"temp-access-vendor/internal/notify"
	policydomain "temp-access-vendor/internal/policy/domain"
	"temp-access-vendor/internal/policy/render"
	"temp-access-vendor/internal/security"
	"temp-access-vendor/internal/session/domain"
	"temp-access-vendor/internal/session/repository"
	"temp-access-vendor/internal/tier"
)

// IssuanceError wraps a failed or timed-out call to the credential
// provider. Create never retries; retry policy (bounded exponential
// backoff) belongs to the caller.
type IssuanceError struct {
	cause error
}

func (e *IssuanceError) Error() string {
	return fmt.Sprintf("credential issuance failed: %v", e.cause)
}

func (e *IssuanceError) Unwrap() error { return e.cause }

// TransitionOutcome reports what a Revoke or Expire call did.
type TransitionOutcome int

const (
	// TransitionCommitted means this call won the conditional update.
	TransitionCommitted TransitionOutcome = iota
	// TransitionAlreadyDone means the session was already terminal, or a
	// concurrent caller committed first. Idempotent success, not an error.
	TransitionAlreadyDone
)

// TemplateSource is the slice of the template repository the lifecycle
// needs.
type TemplateSource interface {
	GetByTier(ctx context.Context, tier string) (*policydomain.Template, error)
}

// Recorder is the slice of the audit recorder the lifecycle needs.
type Recorder interface {
	Record(ctx context.Context, e auditdomain.Event)
}

// Options carries the lifecycle knobs. Zero values select defaults; Now and
// NewSessionID exist for deterministic tests.
type Options struct {
	ResourcePrefix string
	IssueTimeout   time.Duration
	SourceCIDRs    []string
	MFAMaxAge      time.Duration
	Now            func() time.Time
	NewSessionID   func() string
}

// Lifecycle orchestrates validate -> render -> issue -> persist and owns
// every status transition afterwards.
type Lifecycle struct {
	store          repository.Store
	templates      TemplateSource
	renderer       *render.Renderer
	validator      *security.Validator
	tiers          tier.Registry
	issuer         issuer.Issuer
	notifier       notify.Notifier
	audit          Recorder
	resourcePrefix string
	issueTimeout   time.Duration
	sourceCIDRs    []string
	mfaMaxAge      time.Duration
	now            func() time.Time
	newSessionID   func() string
	tracer         trace.Tracer
}

// NewLifecycle wires the lifecycle. notifier may be nil (no alerts).
func NewLifecycle(
	store repository.Store,
	templates TemplateSource,
	renderer *render.Renderer,
	validator *security.Validator,
	tiers tier.Registry,
	iss issuer.Issuer,
	notifier notify.Notifier,
	rec Recorder,
	opts Options,
) *Lifecycle {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	if opts.ResourcePrefix == "" {
		opts.ResourcePrefix = "tav"
	}
	if opts.IssueTimeout <= 0 {
		opts.IssueTimeout = 5 * time.Second
	}
	if opts.MFAMaxAge <= 0 {
		opts.MFAMaxAge = time.Hour
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewSessionID == nil {
		opts.NewSessionID = func() string { return uuid.New().String() }
	}
	return &Lifecycle{
		store:          store,
		templates:      templates,
		renderer:       renderer,
		validator:      validator,
		tiers:          tiers,
		issuer:         iss,
		notifier:       notifier,
		audit:          rec,
		resourcePrefix: opts.ResourcePrefix,
		issueTimeout:   opts.IssueTimeout,
		sourceCIDRs:    opts.SourceCIDRs,
		mfaMaxAge:      opts.MFAMaxAge,
		now:            opts.Now,
		newSessionID:   opts.NewSessionID,
		tracer:         otel.Tracer("temp-access-vendor/session"),
	}
}

// CreateResult is a successful creation. The credential is handed to the
// caller exactly once and never persisted.
type CreateResult struct {
	Session    *domain.Session
	Credential issuer.Credential
}

// Create validates the request, renders the tier policy, requests issuance,
// and persists the session as ACTIVE. On any failure nothing is persisted;
// an insert failure after successful issuance triggers a best-effort
// invalidation of the just-issued grant.
func (l *Lifecycle) Create(ctx context.Context, req domain.Request) (res *CreateResult, err error) {
	ctx, span := l.tracer.Start(ctx, "session.create", trace.WithAttributes(
		attribute.String("tav.project_id", req.ProjectID),
		attribute.String("tav.tier", req.Tier),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := l.validator.Validate(req); err != nil {
		l.audit.Record(ctx, auditdomain.Event{
			ProjectID: req.ProjectID, UserID: req.UserID,
			Action: auditdomain.ActionSessionRejected, Tier: req.Tier,
			Result: auditdomain.ResultRejected, ErrorDetails: err.Error(),
			SourceIP: req.SourceIP,
			Metadata: metaJSON(map[string]any{"code": security.Code(err)}),
		})
		return nil, err
	}
	profile, _ := l.tiers.Get(req.Tier)

	sessionID := l.newSessionID()
	externalID, err := issuer.NewExternalID()
	if err != nil {
		return nil, fmt.Errorf("external id: %w", err)
	}

	tmpl, err := l.templates.GetByTier(ctx, req.Tier)
	if err != nil {
		err = fmt.Errorf("policy template for tier %s: %w", req.Tier, err)
		l.recordRejection(ctx, req, sessionID, err)
		return nil, err
	}
	vars := map[string]string{
		"projectId":      req.ProjectID,
		"userId":         req.UserID,
		"sessionId":      sessionID,
		"resourcePrefix": l.resourcePrefix,
	}
	rendered, err := l.renderer.Render(*tmpl, vars, profile.Boundary)
	if err != nil {
		l.recordRejection(ctx, req, sessionID, err)
		return nil, err
	}

	trust := issuer.TrustConditions{
		ExternalID:  externalID,
		SourceCIDRs: l.sourceCIDRs,
		MFAMaxAge:   l.mfaMaxAge,
		Department:  req.Department,
	}
	issueCtx, cancel := context.WithTimeout(ctx, l.issueTimeout)
	grant, err := l.issuer.Issue(issueCtx, rendered.Policy, trust, req.Duration())
	cancel()
	if err != nil {
		ie := &IssuanceError{cause: err}
		l.audit.Record(ctx, auditdomain.Event{
			ProjectID: req.ProjectID, SessionID: sessionID, UserID: req.UserID,
			Action: auditdomain.ActionSessionIssueFailed, Tier: req.Tier,
			Result: auditdomain.ResultError, ErrorDetails: ie.Error(),
			SourceIP: req.SourceIP,
		})
		return nil, ie
	}

	now := l.now()
	sess := &domain.Session{
		ProjectID:      req.ProjectID,
		SessionID:      sessionID,
		UserID:         req.UserID,
		Tier:           req.Tier,
		Status:         domain.StatusActive,
		RequestedAt:    now,
		ExpiresAt:      now.Add(req.Duration()),
		ExternalRoleID: grant.ExternalRoleID,
		Metadata: domain.Metadata{
			ExternalID: externalID,
			SourceIP:   req.SourceIP,
			MFAUsed:    req.MFAUsed,
			Department: req.Department,
			Reason:     req.Reason,
		},
	}
	if err := l.store.Create(ctx, sess); err != nil {
		if ierr := l.invalidate(ctx, grant.ExternalRoleID); ierr != nil {
			log.Printf("session %s/%s: invalidating orphaned grant %s: %v",
				req.ProjectID, sessionID, grant.ExternalRoleID, ierr)
		}
		l.audit.Record(ctx, auditdomain.Event{
			ProjectID: req.ProjectID, SessionID: sessionID, UserID: req.UserID,
			Action: auditdomain.ActionSessionCreated, Tier: req.Tier,
			Result: auditdomain.ResultError, ErrorDetails: err.Error(),
			SourceIP: req.SourceIP,
		})
		return nil, fmt.Errorf("persist session: %w", err)
	}

	meta := map[string]any{"duration_seconds": req.DurationSeconds}
	if len(rendered.DroppedActions) > 0 {
		meta["dropped_actions"] = rendered.DroppedActions
	}
	l.audit.Record(ctx, auditdomain.Event{
		ProjectID: req.ProjectID, SessionID: sessionID, UserID: req.UserID,
		Action: auditdomain.ActionSessionCreated, Tier: req.Tier,
		Result: auditdomain.ResultSuccess, SourceIP: req.SourceIP,
		Metadata: metaJSON(meta),
	})
	if profile.NotifyOnUse {
		l.notifyAsync(notify.Event{
			AlertType: notify.AlertBreakGlassAccess,
			ProjectID: sess.ProjectID, SessionID: sess.SessionID, UserID: sess.UserID,
			Tier: sess.Tier, Reason: req.Reason, Time: now, ExpiresAt: sess.ExpiresAt,
		})
	}

	return &CreateResult{Session: sess, Credential: grant.Credential}, nil
}

// Revoke is the operator-driven transition to REVOKED.
func (l *Lifecycle) Revoke(ctx context.Context, projectID, sessionID string) (TransitionOutcome, error) {
	return l.transition(ctx, projectID, sessionID, domain.StatusRevoked, auditdomain.ActionSessionRevoked)
}

// Expire is the time-driven transition to EXPIRED, invoked by the sweeper.
func (l *Lifecycle) Expire(ctx context.Context, projectID, sessionID string) (TransitionOutcome, error) {
	return l.transition(ctx, projectID, sessionID, domain.StatusExpired, auditdomain.ActionSessionExpired)
}

// transition commits the store CAS first, then attempts external
// invalidation. Losing the CAS, or finding the session already terminal, is
// idempotent success: whichever concurrent caller commits first wins and
// the other sees TransitionAlreadyDone.
func (l *Lifecycle) transition(ctx context.Context, projectID, sessionID string, to domain.Status, action string) (TransitionOutcome, error) {
	ctx, span := l.tracer.Start(ctx, "session.transition", trace.WithAttributes(
		attribute.String("tav.project_id", projectID),
		attribute.String("tav.session_id", sessionID),
		attribute.String("tav.to_status", string(to)),
	))
	defer span.End()

	sess, err := l.store.Get(ctx, projectID, sessionID)
	if err != nil {
		return TransitionAlreadyDone, err
	}
	if sess.Status.Terminal() {
		return TransitionAlreadyDone, nil
	}
	if err := l.store.UpdateStatus(ctx, projectID, sessionID, sess.Status, to); err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return TransitionAlreadyDone, nil
		}
		return TransitionAlreadyDone, err
	}

	errDetails := ""
	if sess.ExternalRoleID != "" {
		if ierr := l.invalidate(ctx, sess.ExternalRoleID); ierr != nil {
			errDetails = fmt.Sprintf("external invalidation failed: %v", ierr)
			log.Printf("session %s/%s: %s", projectID, sessionID, errDetails)
		}
	}
	l.audit.Record(ctx, auditdomain.Event{
		ProjectID: projectID, SessionID: sessionID, UserID: sess.UserID,
		Action: action, Tier: sess.Tier,
		Result: auditdomain.ResultSuccess, ErrorDetails: errDetails,
	})

	if to == domain.StatusRevoked {
		if profile, ok := l.tiers.Get(sess.Tier); ok && profile.NotifyOnUse {
			l.notifyAsync(notify.Event{
				AlertType: notify.AlertBreakGlassRevoked,
				ProjectID: sess.ProjectID, SessionID: sess.SessionID, UserID: sess.UserID,
				Tier: sess.Tier, Time: l.now(),
			})
		}
	}
	return TransitionCommitted, nil
}

// Get returns the session, or repository.ErrNotFound.
func (l *Lifecycle) Get(ctx context.Context, projectID, sessionID string) (*domain.Session, error) {
	return l.store.Get(ctx, projectID, sessionID)
}

// ListByUser returns the user's sessions, most recent first.
func (l *Lifecycle) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Session, error) {
	return l.store.ListByUser(ctx, userID, limit)
}

const invalidateAttempts = 3

// invalidate retries the provider call a few times with short sleeps. A
// role the provider no longer knows counts as invalidated.
func (l *Lifecycle) invalidate(ctx context.Context, externalRoleID string) error {
	var lastErr error
	for attempt := 0; attempt < invalidateAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err := l.issuer.Invalidate(ctx, externalRoleID)
		if err == nil || errors.Is(err, issuer.ErrRoleNotFound) {
			return nil
		}
		lastErr = err
	}
	return lastErr
}

// notifyAsync delivers the alert without blocking the caller; delivery
// failure is logged, never surfaced.
func (l *Lifecycle) notifyAsync(ev notify.Event) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := l.notifier.Notify(ctx, ev); err != nil {
			log.Printf("notify: %s alert for %s/%s failed: %v", ev.AlertType, ev.ProjectID, ev.SessionID, err)
		}
	}()
}

func (l *Lifecycle) recordRejection(ctx context.Context, req domain.Request, sessionID string, cause error) {
	l.audit.Record(ctx, auditdomain.Event{
		ProjectID: req.ProjectID, SessionID: sessionID, UserID: req.UserID,
		Action: auditdomain.ActionSessionRejected, Tier: req.Tier,
		Result: auditdomain.ResultRejected, ErrorDetails: cause.Error(),
		SourceIP: req.SourceIP,
	})
}

func metaJSON(m map[string]any) string {
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}
