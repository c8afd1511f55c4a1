package flows

import "context"

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Authenticate.Decode != nil && s.deps.Switch.Sessions != nil
}

func (s Service) Authenticate(ctx context.Context, tokenStr string) AuthenticateResult {
	return RunAuthenticate(ctx, tokenStr, s.deps.Authenticate)
}

func (s Service) Login(ctx context.Context, email, password string) LoginResult {
	return RunLogin(ctx, email, password, s.deps.Login)
}

func (s Service) SwitchRole(ctx context.Context, requested string, caller SwitchCaller) SwitchResult {
	return RunSwitchRole(ctx, requested, caller, s.deps.Switch)
}

func (s Service) Logout(ctx context.Context, subject, sessionID string) error {
	return RunLogout(ctx, subject, sessionID, s.deps.Logout)
}

func (s Service) LogoutAll(ctx context.Context, subject string) (int, error) {
	return RunLogoutAll(ctx, subject, s.deps.Logout)
}
