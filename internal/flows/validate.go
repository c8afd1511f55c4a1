package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/roleAuth/jwt"
	"github.com/MrEthical07/roleAuth/session"
)

// AuthenticateFailureKind classifies token authentication failures.
type AuthenticateFailureKind int

const (
	AuthenticateFailureNone AuthenticateFailureKind = iota
	AuthenticateFailureMalformed
	AuthenticateFailureExpired
	AuthenticateFailureSignature
	AuthenticateFailureSessionRevoked
	AuthenticateFailureStore
)

// AuthenticateResult carries decoded claims and the live session record.
type AuthenticateResult struct {
	Failure AuthenticateFailureKind
	Err     error
	Claims  *jwt.Claims
	Record  *session.Record
}

type AuthenticateSessionStore interface {
	Get(ctx context.Context, subject, sessionID string) (*session.Record, error)
}

// AuthenticateDeps captures token authentication dependencies.
type AuthenticateDeps struct {
	Decode   func(string) (*jwt.Claims, error)
	Sessions AuthenticateSessionStore
}

// RunAuthenticate decodes the token and cross-checks the session store. A
// token whose session is gone, or whose role claims differ from the stored
// record, is revoked.
func RunAuthenticate(ctx context.Context, tokenStr string, deps AuthenticateDeps) AuthenticateResult {
	claims, err := deps.Decode(tokenStr)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrExpiredToken):
			return AuthenticateResult{Failure: AuthenticateFailureExpired, Err: err}
		case errors.Is(err, jwt.ErrSignatureInvalid):
			return AuthenticateResult{Failure: AuthenticateFailureSignature, Err: err}
		default:
			return AuthenticateResult{Failure: AuthenticateFailureMalformed, Err: err}
		}
	}

	rec, err := deps.Sessions.Get(ctx, claims.Subject, claims.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) || errors.Is(err, session.ErrCorruptRecord) {
			return AuthenticateResult{Failure: AuthenticateFailureSessionRevoked, Err: err, Claims: claims}
		}
		return AuthenticateResult{Failure: AuthenticateFailureStore, Err: err, Claims: claims}
	}
	if rec.ActiveRole != claims.ActiveRole || rec.GrantedRoles != claims.GrantedRoles {
		return AuthenticateResult{Failure: AuthenticateFailureSessionRevoked, Claims: claims}
	}

	return AuthenticateResult{Claims: claims, Record: rec}
}
