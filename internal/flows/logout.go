package flows

import "context"

type LogoutSessionStore interface {
	Revoke(ctx context.Context, subject, sessionID string) error
	InvalidateAll(ctx context.Context, subject string) (int, error)
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Sessions LogoutSessionStore
}

// RunLogout revokes one session. Repeating it is harmless, and a role
// switch in flight will not bring the session back.
func RunLogout(ctx context.Context, subject, sessionID string, deps LogoutDeps) error {
	return deps.Sessions.Revoke(ctx, subject, sessionID)
}

// RunLogoutAll invalidates every session of subject and reports how many
// were live.
func RunLogoutAll(ctx context.Context, subject string, deps LogoutDeps) (int, error) {
	return deps.Sessions.InvalidateAll(ctx, subject)
}
