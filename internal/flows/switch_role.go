package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/roleAuth/directory"
	"github.com/MrEthical07/roleAuth/role"
	"github.com/MrEthical07/roleAuth/session"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// SwitchStep records how far a role switch progressed. Steps are strictly
// ordered; a failure leaves Step at the last completed one.
type SwitchStep int

const (
	SwitchStepStarted SwitchStep = iota
	SwitchStepValidated
	SwitchStepUserResolved
	SwitchStepOldInvalidated
	SwitchStepNewCreated
	SwitchStepTokenIssued
	SwitchStepPersisted
)

var switchStepNames = [...]string{
	SwitchStepStarted:        "started",
	SwitchStepValidated:      "validated",
	SwitchStepUserResolved:   "user_resolved",
	SwitchStepOldInvalidated: "old_invalidated",
	SwitchStepNewCreated:     "new_created",
	SwitchStepTokenIssued:    "token_issued",
	SwitchStepPersisted:      "persisted",
}

func (s SwitchStep) String() string {
	if s < 0 || int(s) >= len(switchStepNames) {
		return "unknown"
	}
	return switchStepNames[s]
}

// SwitchFailureKind classifies switch failures for root-level mapping.
type SwitchFailureKind int

const (
	SwitchFailureNone SwitchFailureKind = iota
	SwitchFailureInvalidRequest
	SwitchFailureRoleNotGranted
	SwitchFailureRateLimited
	SwitchFailureInProgress
	SwitchFailureUserNotFound
	SwitchFailureSessionRevoked
	SwitchFailureDirectory
	SwitchFailureStore
	SwitchFailureSigning
	SwitchFailureVersionConflict
)

// SwitchCaller is the identity taken from the caller's verified token.
type SwitchCaller struct {
	Subject   string
	SessionID string
	Granted   role.Set
	Active    role.Role
}

// SwitchState is the saga progress of one switch.
type SwitchState struct {
	Step         SwitchStep
	Requested    role.Role
	OldSessionID string
	NewSessionID string
	// OldRecord is the snapshot taken before invalidation, used to restore
	// the caller's session on compensation.
	OldRecord *session.Record
	// Epoch is the subject's revocation epoch read with OldRecord. A logout
	// that bumps it forbids the restore.
	Epoch int64
}

// SwitchResult is either a completed switch or a classified failure.
type SwitchResult struct {
	Failure   SwitchFailureKind
	Err       error
	State     SwitchState
	User      *directory.User
	Token     string
	ExpiresAt time.Time

	Compensated     bool
	CompensationErr error
	// OldRestored is false after compensation when the old session stayed
	// revoked because a logout ran during the switch.
	OldRestored bool
}

// SwitchSessionStore is the subset of session.Store used by the switch.
type SwitchSessionStore interface {
	Get(ctx context.Context, subject, sessionID string) (*session.Record, error)
	Create(ctx context.Context, rec *session.Record) error
	Invalidate(ctx context.Context, subject, sessionID string) error
	Lock(ctx context.Context, subject string, ttl time.Duration) (session.Unlock, error)
	Epoch(ctx context.Context, subject string) (int64, error)
	Restore(ctx context.Context, rec *session.Record, epoch int64) (bool, error)
}

// SwitchDeps captures role-switch dependencies.
type SwitchDeps struct {
	Sessions     SwitchSessionStore
	Directory    directory.Directory
	Issue        func(subject string, granted role.Set, active role.Role, sessionID string) (string, error)
	NewSessionID func() string
	// CheckRate reports whether the subject may switch now. Nil disables
	// throttling.
	CheckRate func(ctx context.Context, subject string) (bool, error)

	TTL           time.Duration
	LockTTL       time.Duration
	CommitTimeout time.Duration
	Now           func() time.Time
	Tracer        trace.Tracer
}

// RunSwitchRole moves caller to the requested role. The order is
// validate, resolve user, invalidate old session, create new session,
// issue token, persist active role. Validation failures have no side
// effects. Failures after invalidation are compensated by restoring the
// old session and removing the new one.
func RunSwitchRole(ctx context.Context, requested string, caller SwitchCaller, deps SwitchDeps) (result SwitchResult) {
	tracer := deps.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	ctx, span := tracer.Start(ctx, "roleauth.switch_role", trace.WithAttributes(
		attribute.String("roleauth.requested_role", requested),
	))
	defer func() {
		span.SetAttributes(attribute.String("roleauth.switch_step", result.State.Step.String()))
		if result.Err != nil {
			span.RecordError(result.Err)
			span.SetStatus(codes.Error, "role switch failed")
		}
		span.End()
	}()

	deps = deps.withDefaults()
	state := SwitchState{OldSessionID: caller.SessionID}
	fail := func(kind SwitchFailureKind, err error) SwitchResult {
		return SwitchResult{Failure: kind, Err: err, State: state}
	}

	// 1. Validate against the caller's claims. Nothing below may run on
	// failure.
	if requested == "" {
		return fail(SwitchFailureInvalidRequest, role.ErrEmptyRole)
	}
	if caller.Subject == "" || caller.SessionID == "" {
		return fail(SwitchFailureInvalidRequest, errors.New("caller identity incomplete"))
	}
	target, err := role.Parse(requested)
	if err != nil {
		return fail(SwitchFailureRoleNotGranted, err)
	}
	if !caller.Granted.Has(target) {
		return fail(SwitchFailureRoleNotGranted, fmt.Errorf("role %s not granted", target))
	}
	state.Requested = target
	state.Step = SwitchStepValidated

	if deps.CheckRate != nil {
		allowed, err := deps.CheckRate(ctx, caller.Subject)
		if err != nil {
			return fail(SwitchFailureStore, err)
		}
		if !allowed {
			return fail(SwitchFailureRateLimited, nil)
		}
	}

	unlock, err := deps.Sessions.Lock(ctx, caller.Subject, deps.LockTTL)
	if err != nil {
		if errors.Is(err, session.ErrLockHeld) {
			return fail(SwitchFailureInProgress, err)
		}
		return fail(SwitchFailureStore, err)
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deps.CommitTimeout)
		defer cancel()
		_ = unlock(releaseCtx)
	}()

	// 2. Resolve the durable user record.
	user, err := deps.Directory.FindByEmail(ctx, caller.Subject)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			return fail(SwitchFailureUserNotFound, err)
		}
		return fail(SwitchFailureDirectory, err)
	}
	if !user.GrantedRoles.Has(target) {
		return fail(SwitchFailureRoleNotGranted, fmt.Errorf("role %s no longer granted", target))
	}
	state.Step = SwitchStepUserResolved

	// The epoch is read before the record so a logout landing between the
	// two is seen either as a missing record or as a changed epoch.
	epoch, err := deps.Sessions.Epoch(ctx, caller.Subject)
	if err != nil {
		return fail(SwitchFailureStore, err)
	}
	old, err := deps.Sessions.Get(ctx, caller.Subject, caller.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return fail(SwitchFailureSessionRevoked, err)
		}
		return fail(SwitchFailureStore, err)
	}
	state.OldRecord = old
	state.Epoch = epoch

	// From here on the caller's cancellation no longer applies; the switch
	// either completes or compensates within CommitTimeout.
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deps.CommitTimeout)
	defer cancel()

	compensateWith := func(kind SwitchFailureKind, err error) SwitchResult {
		span.AddEvent("compensate", trace.WithAttributes(attribute.String("roleauth.switch_step", state.Step.String())))
		res := fail(kind, err)
		res.OldRestored, res.CompensationErr = compensate(commitCtx, deps, caller.Subject, state)
		res.Compensated = res.CompensationErr == nil
		return res
	}

	// 3. Invalidate the current session.
	if err := deps.Sessions.Invalidate(commitCtx, caller.Subject, caller.SessionID); err != nil {
		return compensateWith(SwitchFailureStore, err)
	}
	state.Step = SwitchStepOldInvalidated
	span.AddEvent(state.Step.String())

	// 4. Allocate and create the new session.
	now := deps.Now()
	state.NewSessionID = deps.NewSessionID()
	rec := &session.Record{
		SessionID:    state.NewSessionID,
		Subject:      caller.Subject,
		ActiveRole:   target,
		GrantedRoles: caller.Granted,
		CreatedAt:    now,
		ExpiresAt:    now.Add(deps.TTL),
	}
	if err := deps.Sessions.Create(commitCtx, rec); err != nil {
		return compensateWith(SwitchFailureStore, err)
	}
	state.Step = SwitchStepNewCreated
	span.AddEvent(state.Step.String())

	// 5. Issue the token for the new session.
	token, err := deps.Issue(caller.Subject, caller.Granted, target, state.NewSessionID)
	if err != nil {
		return compensateWith(SwitchFailureSigning, err)
	}
	state.Step = SwitchStepTokenIssued

	// 6. Persist the active role.
	next := user.Clone()
	next.ActiveRole = target
	saved, err := deps.Directory.Save(commitCtx, next)
	if err != nil {
		if errors.Is(err, directory.ErrVersionConflict) {
			return compensateWith(SwitchFailureVersionConflict, err)
		}
		return compensateWith(SwitchFailureDirectory, err)
	}
	state.Step = SwitchStepPersisted

	return SwitchResult{
		State:     state,
		User:      saved,
		Token:     token,
		ExpiresAt: rec.ExpiresAt,
	}
}

const (
	defaultCommitTimeout = 5 * time.Second
	defaultLockTTL       = 10 * time.Second
)

func (d SwitchDeps) withDefaults() SwitchDeps {
	if d.CommitTimeout <= 0 {
		d.CommitTimeout = defaultCommitTimeout
	}
	if d.LockTTL <= 0 {
		d.LockTTL = defaultLockTTL
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewSessionID == nil {
		d.NewSessionID = session.NewSessionID
	}
	return d
}

// compensate removes the new session, if one was allocated, and restores
// the snapshot of the old one unless the subject was logged out since the
// snapshot. It reports whether the old session is live again.
func compensate(ctx context.Context, deps SwitchDeps, subject string, state SwitchState) (bool, error) {
	var (
		errs     []error
		restored bool
	)
	if state.NewSessionID != "" {
		if err := deps.Sessions.Invalidate(ctx, subject, state.NewSessionID); err != nil {
			errs = append(errs, fmt.Errorf("remove new session: %w", err))
		}
	}
	if state.OldRecord != nil && state.OldRecord.TTL(deps.Now()) > 0 {
		snapshot := *state.OldRecord
		ok, err := deps.Sessions.Restore(ctx, &snapshot, state.Epoch)
		if err != nil {
			errs = append(errs, fmt.Errorf("restore old session: %w", err))
		}
		restored = ok
	}
	return restored, errors.Join(errs...)
}
