package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/roleAuth/directory"
	"github.com/MrEthical07/roleAuth/role"
	"github.com/MrEthical07/roleAuth/session"
)

// LoginFailureKind classifies login failures.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureInvalidCredentials
	LoginFailureRateLimited
	LoginFailureDirectory
	LoginFailureStore
	LoginFailureSigning
)

// LoginResult is the flow-local login response shape. Reason is an audit
// label and is never shown to clients.
type LoginResult struct {
	Failure   LoginFailureKind
	Err       error
	Reason    string
	User      *directory.User
	Token     string
	SessionID string
	ExpiresAt time.Time
	// UpgradeErr is set when a stale password hash could not be replaced.
	// The login itself still succeeds.
	UpgradeErr error
}

type LoginDirectory interface {
	FindByEmail(ctx context.Context, email string) (*directory.User, error)
}

type LoginSessionStore interface {
	Create(ctx context.Context, rec *session.Record) error
}

// LoginDeps captures login dependencies. The rate funcs may be nil.
type LoginDeps struct {
	Directory      LoginDirectory
	Sessions       LoginSessionStore
	VerifyPassword func(password, encoded string) (bool, error)
	Issue          func(subject string, granted role.Set, active role.Role, sessionID string) (string, error)
	NewSessionID   func() string
	TTL            time.Duration
	Now            func() time.Time

	CheckRate     func(ctx context.Context, email string) (bool, error)
	RecordFailure func(ctx context.Context, email string) error
	ResetRate     func(ctx context.Context, email string) error

	// Optional rehash of hashes made under weaker cost parameters.
	NeedsUpgrade func(encoded string) (bool, error)
	Rehash       func(password string) (string, error)
	SaveUser     func(ctx context.Context, u *directory.User) (*directory.User, error)
}

// RunLogin verifies credentials and opens a session in the user's stored
// active role.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) LoginResult {
	email = directory.NormalizeEmail(email)
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewSessionID == nil {
		deps.NewSessionID = session.NewSessionID
	}

	if deps.CheckRate != nil {
		allowed, err := deps.CheckRate(ctx, email)
		if err != nil {
			return LoginResult{Failure: LoginFailureStore, Err: err, Reason: "rate_check"}
		}
		if !allowed {
			return LoginResult{Failure: LoginFailureRateLimited, Reason: "rate_limited"}
		}
	}

	reject := func(reason string, user *directory.User) LoginResult {
		if deps.RecordFailure != nil {
			_ = deps.RecordFailure(ctx, email)
		}
		return LoginResult{Failure: LoginFailureInvalidCredentials, Reason: reason, User: user}
	}

	if email == "" || password == "" {
		return reject("empty_credentials", nil)
	}

	user, err := deps.Directory.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			return reject("user_not_found", nil)
		}
		return LoginResult{Failure: LoginFailureDirectory, Err: err, Reason: "directory"}
	}
	if user.PasswordHash == "" {
		return reject("no_password", user)
	}
	ok, err := deps.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return reject("password_mismatch", user)
	}
	user, upgradeErr := upgradeHash(ctx, user, password, deps)

	now := deps.Now()
	rec := &session.Record{
		SessionID:    deps.NewSessionID(),
		Subject:      user.Email,
		ActiveRole:   user.ActiveRole,
		GrantedRoles: user.GrantedRoles,
		CreatedAt:    now,
		ExpiresAt:    now.Add(deps.TTL),
	}
	if err := deps.Sessions.Create(ctx, rec); err != nil {
		return LoginResult{Failure: LoginFailureStore, Err: err, Reason: "session_create", User: user}
	}

	token, err := deps.Issue(user.Email, user.GrantedRoles, user.ActiveRole, rec.SessionID)
	if err != nil {
		_ = invalidateQuietly(ctx, deps.Sessions, user.Email, rec.SessionID)
		return LoginResult{Failure: LoginFailureSigning, Err: err, Reason: "signing", User: user}
	}

	if deps.ResetRate != nil {
		_ = deps.ResetRate(ctx, email)
	}

	return LoginResult{
		User:       user,
		Token:      token,
		SessionID:  rec.SessionID,
		ExpiresAt:  rec.ExpiresAt,
		UpgradeErr: upgradeErr,
	}
}

// upgradeHash replaces a stale hash. Failures leave user unchanged.
func upgradeHash(ctx context.Context, user *directory.User, password string, deps LoginDeps) (*directory.User, error) {
	if deps.NeedsUpgrade == nil || deps.Rehash == nil || deps.SaveUser == nil {
		return user, nil
	}
	stale, err := deps.NeedsUpgrade(user.PasswordHash)
	if err != nil || !stale {
		return user, err
	}
	hash, err := deps.Rehash(password)
	if err != nil {
		return user, err
	}
	next := user.Clone()
	next.PasswordHash = hash
	saved, err := deps.SaveUser(ctx, next)
	if err != nil {
		return user, err
	}
	return saved, nil
}

func invalidateQuietly(ctx context.Context, store LoginSessionStore, subject, sessionID string) error {
	inv, ok := store.(interface {
		Invalidate(ctx context.Context, subject, sessionID string) error
	})
	if !ok {
		return nil
	}
	return inv.Invalidate(context.WithoutCancel(ctx), subject, sessionID)
}
