package roleAuth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/roleAuth/directory"
	internalaudit "github.com/MrEthical07/roleAuth/internal/audit"
	"github.com/MrEthical07/roleAuth/internal/flows"
	internalmetrics "github.com/MrEthical07/roleAuth/internal/metrics"
	"github.com/MrEthical07/roleAuth/internal/rate"
	"github.com/MrEthical07/roleAuth/jwt"
	"github.com/MrEthical07/roleAuth/password"
	"github.com/MrEthical07/roleAuth/session"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Engine is the session and role-switch core. It is safe for concurrent
// use after [Builder.Build].
type Engine struct {
	config    Config
	sessions  *session.Store
	limiter   *rate.Limiter
	codec     *jwt.Codec
	directory directory.Directory
	passwords *password.Argon2
	audit     *internalaudit.Dispatcher
	metrics   *internalmetrics.Metrics
	log       *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
	flow      flows.Service
}

func (e *Engine) buildFlowDeps() flows.Deps {
	return flows.Deps{
		Authenticate: flows.AuthenticateDeps{
			Decode:   e.codec.Decode,
			Sessions: e.sessions,
		},
		Login: flows.LoginDeps{
			Directory:      e.directory,
			Sessions:       e.sessions,
			VerifyPassword: e.passwords.Verify,
			NeedsUpgrade:   e.passwords.NeedsUpgrade,
			Rehash:         e.passwords.Hash,
			SaveUser:       e.directory.Save,
			Issue:          e.codec.Issue,
			NewSessionID:   session.NewSessionID,
			TTL:            e.codec.TTL(),
			Now:            e.now,
			CheckRate: func(ctx context.Context, email string) (bool, error) {
				err := e.limiter.CheckLogin(ctx, email, clientIPFromContext(ctx))
				if errors.Is(err, rate.ErrRateLimited) {
					return false, nil
				}
				return err == nil, err
			},
			RecordFailure: func(ctx context.Context, email string) error {
				return e.limiter.IncrementLogin(ctx, email, clientIPFromContext(ctx))
			},
			ResetRate: e.limiter.ResetLogin,
		},
		Switch: flows.SwitchDeps{
			Sessions:      e.sessions,
			Directory:     e.directory,
			Issue:         e.codec.Issue,
			NewSessionID:  session.NewSessionID,
			CheckRate:     e.limiter.AllowSwitch,
			TTL:           e.codec.TTL(),
			LockTTL:       e.config.Switch.LockTTL,
			CommitTimeout: e.config.Switch.CommitTimeout,
			Now:           e.now,
			Tracer:        e.tracer,
		},
		Logout: flows.LogoutDeps{
			Sessions: e.sessions,
		},
	}
}

// Close flushes pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
	_ = e.log.Sync()
}

// AuditDropped returns the number of audit events lost to backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) ready() bool {
	return e != nil && e.flow.Initialized()
}

// HashPassword hashes a password with the engine's Argon2id parameters.
func (e *Engine) HashPassword(plain string) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}
	return e.passwords.Hash(plain)
}

// Authenticate verifies token and checks that its session is still live
// with the same roles.
func (e *Engine) Authenticate(ctx context.Context, token string) (*Principal, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	res := e.flow.Authenticate(ctx, token)
	e.metrics.Observe(MetricAuthenticateLatency, time.Since(start))

	if res.Failure != flows.AuthenticateFailureNone {
		e.metrics.Inc(MetricAuthenticateFailure)
		switch res.Failure {
		case flows.AuthenticateFailureExpired:
			return nil, wrap(ErrExpiredToken, res.Err)
		case flows.AuthenticateFailureSignature:
			return nil, wrap(ErrSignatureInvalid, res.Err)
		case flows.AuthenticateFailureSessionRevoked:
			e.metrics.Inc(MetricSessionRevokedSeen)
			err := wrap(ErrSessionRevoked, res.Err)
			ev := AuditEvent{EventType: AuditSessionRevoked}
			if res.Claims != nil {
				ev.Subject = res.Claims.Subject
				ev.SessionID = res.Claims.SessionID
				ev.Role = res.Claims.ActiveRole.String()
			}
			e.emitAudit(ctx, ev, err)
			return nil, err
		case flows.AuthenticateFailureStore:
			e.log.Error("authenticate: session store", zap.Error(res.Err))
			return nil, wrap(ErrSessionStore, res.Err)
		default:
			return nil, wrap(ErrMalformedToken, res.Err)
		}
	}

	e.metrics.Inc(MetricAuthenticateSuccess)
	return &Principal{
		Subject:   res.Claims.Subject,
		Active:    res.Claims.ActiveRole,
		Granted:   res.Claims.GrantedRoles,
		SessionID: res.Claims.SessionID,
		ExpiresAt: res.Claims.ExpiresAt,
	}, nil
}

// Login verifies the password and opens a session in the user's stored
// active role.
func (e *Engine) Login(ctx context.Context, email, plain string) (*UserInfo, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	res := e.flow.Login(ctx, email, plain)
	if res.Failure != flows.LoginFailureNone {
		var err error
		switch res.Failure {
		case flows.LoginFailureInvalidCredentials:
			e.metrics.Inc(MetricLoginFailure)
			err = ErrInvalidCredentials
		case flows.LoginFailureRateLimited:
			e.metrics.Inc(MetricLoginRateLimited)
			e.emitAudit(ctx, AuditEvent{
				EventType: AuditLoginRateLimited,
				Subject:   directory.NormalizeEmail(email),
			}, ErrRateLimited)
			return nil, ErrRateLimited
		case flows.LoginFailureDirectory:
			e.metrics.Inc(MetricLoginFailure)
			err = wrap(ErrDirectory, res.Err)
		case flows.LoginFailureSigning:
			e.metrics.Inc(MetricLoginFailure)
			err = wrap(ErrSigning, res.Err)
		default:
			e.metrics.Inc(MetricLoginFailure)
			err = wrap(ErrSessionStore, res.Err)
		}
		if res.Err != nil {
			e.log.Error("login failed", zap.String("reason", res.Reason), zap.Error(res.Err))
		}
		e.emitAudit(ctx, AuditEvent{
			EventType: AuditLoginFailure,
			Subject:   directory.NormalizeEmail(email),
			Metadata:  map[string]string{"reason": res.Reason},
		}, err)
		return nil, err
	}

	if res.UpgradeErr != nil {
		e.log.Warn("password hash upgrade failed", zap.String("subject", res.User.Email), zap.Error(res.UpgradeErr))
	}
	e.metrics.Inc(MetricLoginSuccess)
	e.metrics.Inc(MetricSessionCreated)
	e.emitAudit(ctx, AuditEvent{
		EventType: AuditLoginSuccess,
		Subject:   res.User.Email,
		SessionID: res.SessionID,
		Role:      res.User.ActiveRole.String(),
		Success:   true,
	}, nil)

	return &UserInfo{
		Subject:      res.User.Email,
		Email:        res.User.Email,
		FirstName:    res.User.FirstName,
		LastName:     res.User.LastName,
		ActiveRole:   res.User.ActiveRole.String(),
		GrantedRoles: res.User.GrantedRoles.Names(),
		Token:        res.Token,
		SessionID:    res.SessionID,
		ExpiresAt:    res.ExpiresAt,
	}, nil
}

// SwitchRole retires the caller's session and issues a new one acting as
// req.Role. On failure after the old session was invalidated, the old
// session is restored and the new one removed before the error returns.
func (e *Engine) SwitchRole(ctx context.Context, req SwitchRoleRequest, caller *Principal) (*UserInfo, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if caller == nil {
		return nil, ErrUnauthorized
	}

	start := time.Now()
	res := e.flow.SwitchRole(ctx, req.Role, flows.SwitchCaller{
		Subject:   caller.Subject,
		SessionID: caller.SessionID,
		Granted:   caller.Granted,
		Active:    caller.Active,
	})
	e.metrics.Observe(MetricRoleSwitchLatency, time.Since(start))

	if res.Failure != flows.SwitchFailureNone {
		err := e.switchError(res)
		e.recordSwitchFailure(ctx, req, caller, res, err)
		return nil, err
	}

	e.metrics.Inc(MetricRoleSwitchSuccess)
	e.metrics.Inc(MetricSessionInvalidated)
	e.metrics.Inc(MetricSessionCreated)
	e.emitAudit(ctx, AuditEvent{
		EventType: AuditRoleSwitch,
		Subject:   caller.Subject,
		SessionID: res.State.NewSessionID,
		Role:      res.State.Requested.String(),
		FromRole:  caller.Active.String(),
		Success:   true,
		Metadata:  map[string]string{"previous_session_id": caller.SessionID},
	}, nil)

	return &UserInfo{
		Subject:      caller.Subject,
		Email:        res.User.Email,
		FirstName:    res.User.FirstName,
		LastName:     res.User.LastName,
		ActiveRole:   res.State.Requested.String(),
		GrantedRoles: caller.Granted.Names(),
		Token:        res.Token,
		SessionID:    res.State.NewSessionID,
		ExpiresAt:    res.ExpiresAt,
	}, nil
}

func (e *Engine) switchError(res flows.SwitchResult) error {
	switch res.Failure {
	case flows.SwitchFailureInvalidRequest:
		return wrap(ErrValidation, res.Err)
	case flows.SwitchFailureRoleNotGranted:
		return wrap(ErrRoleNotGranted, res.Err)
	case flows.SwitchFailureRateLimited:
		return ErrRateLimited
	case flows.SwitchFailureInProgress:
		return wrap(ErrSwitchInProgress, res.Err)
	case flows.SwitchFailureUserNotFound:
		return wrap(ErrUserNotFound, res.Err)
	case flows.SwitchFailureSessionRevoked:
		return wrap(ErrSessionRevoked, res.Err)
	case flows.SwitchFailureDirectory:
		return wrap(ErrDirectory, res.Err)
	case flows.SwitchFailureSigning:
		return wrap(ErrSigning, res.Err)
	case flows.SwitchFailureVersionConflict:
		return wrap(ErrVersionConflict, res.Err)
	default:
		return wrap(ErrSessionStore, res.Err)
	}
}

func (e *Engine) recordSwitchFailure(ctx context.Context, req SwitchRoleRequest, caller *Principal, res flows.SwitchResult, err error) {
	switch res.Failure {
	case flows.SwitchFailureInvalidRequest, flows.SwitchFailureRoleNotGranted:
		e.metrics.Inc(MetricRoleSwitchRejected)
	case flows.SwitchFailureInProgress:
		e.metrics.Inc(MetricRoleSwitchContended)
	case flows.SwitchFailureRateLimited:
		e.metrics.Inc(MetricRoleSwitchRateLimited)
	default:
		e.metrics.Inc(MetricRoleSwitchFailure)
	}

	fields := []zap.Field{
		zap.String("subject", caller.Subject),
		zap.String("session_id", caller.SessionID),
		zap.String("step", res.State.Step.String()),
		zap.Error(err),
	}
	if res.State.Step >= flows.SwitchStepUserResolved {
		e.log.Warn("role switch failed", fields...)
	}

	if res.State.Step >= flows.SwitchStepOldInvalidated || res.CompensationErr != nil || res.Compensated {
		if res.CompensationErr != nil {
			e.metrics.Inc(MetricRoleSwitchCompensationFailed)
			e.log.Error("role switch compensation failed",
				append(fields, zap.NamedError("compensation_error", res.CompensationErr))...)
		} else if res.Compensated {
			e.metrics.Inc(MetricRoleSwitchCompensated)
			e.emitAudit(ctx, AuditEvent{
				EventType: AuditRoleSwitchCompensated,
				Subject:   caller.Subject,
				SessionID: caller.SessionID,
				Role:      req.Role,
				FromRole:  caller.Active.String(),
				Metadata: map[string]string{
					"step":                 res.State.Step.String(),
					"old_session_restored": strconv.FormatBool(res.OldRestored),
				},
			}, err)
			if !res.OldRestored && res.State.OldRecord != nil {
				e.log.Info("role switch compensated without restoring revoked session", fields...)
			}
		}
	}

	e.emitAudit(ctx, AuditEvent{
		EventType: AuditRoleSwitchFailure,
		Subject:   caller.Subject,
		SessionID: caller.SessionID,
		Role:      req.Role,
		FromRole:  caller.Active.String(),
		Metadata:  map[string]string{"step": res.State.Step.String()},
	}, err)
}

// Logout invalidates the caller's session. Logging out twice is not an
// error.
func (e *Engine) Logout(ctx context.Context, caller *Principal) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if caller == nil {
		return ErrUnauthorized
	}
	if err := e.flow.Logout(ctx, caller.Subject, caller.SessionID); err != nil {
		e.log.Error("logout failed", zap.String("subject", caller.Subject), zap.Error(err))
		return wrap(ErrSessionStore, err)
	}
	e.metrics.Inc(MetricLogout)
	e.metrics.Inc(MetricSessionInvalidated)
	e.emitAudit(ctx, AuditEvent{
		EventType: AuditLogout,
		Subject:   caller.Subject,
		SessionID: caller.SessionID,
		Role:      caller.Active.String(),
		Success:   true,
	}, nil)
	return nil
}

// LogoutAll invalidates every session of subject and returns how many were
// live.
func (e *Engine) LogoutAll(ctx context.Context, subject string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	if subject == "" {
		return 0, ErrValidation
	}
	n, err := e.flow.LogoutAll(ctx, subject)
	if err != nil {
		e.log.Error("logout all failed", zap.String("subject", subject), zap.Error(err))
		return 0, wrap(ErrSessionStore, err)
	}
	e.metrics.Inc(MetricLogoutAll)
	e.metrics.Add(MetricSessionInvalidated, uint64(n))
	e.emitAudit(ctx, AuditEvent{
		EventType: AuditLogoutAll,
		Subject:   subject,
		Success:   true,
		Metadata:  map[string]string{"sessions": fmt.Sprint(n)},
	}, nil)
	return n, nil
}

// ReportDenied records an authorization denial for metrics and audit.
// Gates call it; it never changes the decision.
func (e *Engine) ReportDenied(ctx context.Context, caller *Principal, resource, code string) {
	if e == nil {
		return
	}
	e.metrics.Inc(MetricAccessDenied)
	ev := AuditEvent{
		EventType: AuditAccessDenied,
		Error:     code,
		Metadata:  map[string]string{"resource": resource},
	}
	if caller != nil {
		ev.Subject = caller.Subject
		ev.SessionID = caller.SessionID
		ev.Role = caller.Active.String()
	}
	e.emitAudit(ctx, ev, nil)
}

// ActiveSessions lists the live session ids of subject.
func (e *Engine) ActiveSessions(ctx context.Context, subject string) ([]string, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	ids, err := e.sessions.ListForSubject(ctx, subject)
	if err != nil {
		return nil, wrap(ErrSessionStore, err)
	}
	return ids, nil
}

// Ping round-trips the session store and reports its latency.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	latency, err := e.sessions.Ping(ctx)
	if err != nil {
		return 0, wrap(ErrSessionStore, err)
	}
	return latency, nil
}

// GrantedRoleNames is a convenience for handlers rendering a principal.
func GrantedRoleNames(p *Principal) []string {
	if p == nil {
		return nil
	}
	return p.Granted.Names()
}

func wrap(sentinel, cause error) error {
	if cause == nil || errors.Is(cause, sentinel) {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}
