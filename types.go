package roleAuth

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/roleAuth/internal/audit"
	internalmetrics "github.com/MrEthical07/roleAuth/internal/metrics"
	"github.com/MrEthical07/roleAuth/role"
)

// Principal is the verified identity of a request. It is produced by
// [Engine.Authenticate] and passed explicitly to every operation that needs
// it.
type Principal struct {
	Subject   string
	Active    role.Role
	Granted   role.Set
	SessionID string
	ExpiresAt time.Time
}

// HasRole reports whether p's active role is r.
func (p *Principal) HasRole(r role.Role) bool {
	return p != nil && p.Active.Valid() && p.Active == r
}

// UserInfo is returned by Login and SwitchRole.
type UserInfo struct {
	Subject      string    `json:"subject"`
	Email        string    `json:"email"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	ActiveRole   string    `json:"activeRole"`
	GrantedRoles []string  `json:"grantedRoles"`
	Token        string    `json:"token"`
	SessionID    string    `json:"sessionId"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// SwitchRoleRequest names the role the caller wants to act as. Role must
// match a role name exactly.
type SwitchRoleRequest struct {
	Role string `json:"role"`
}

// LoginRequest carries password credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type principalContextKey struct{}

// WithPrincipal attaches p to ctx. Middleware uses it to hand the
// authenticated principal to handlers.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the principal stored by WithPrincipal.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	if ctx == nil {
		return nil, false
	}
	p, ok := ctx.Value(principalContextKey{}).(*Principal)
	return p, ok && p != nil
}

type clientIPContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine uses it
// for per-IP login throttling and audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

// AuditEvent is the structured audit record.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = internalaudit.Sink

type NoOpSink = internalaudit.NoOpSink

type ChannelSink = internalaudit.ChannelSink

type JSONWriterSink = internalaudit.JSONWriterSink

type MultiSink = internalaudit.MultiSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// Audit event types.
const (
	AuditLoginSuccess          = internalaudit.EventLoginSuccess
	AuditLoginFailure          = internalaudit.EventLoginFailure
	AuditLoginRateLimited      = internalaudit.EventLoginRateLimited
	AuditRoleSwitch            = internalaudit.EventRoleSwitch
	AuditRoleSwitchFailure     = internalaudit.EventRoleSwitchFailure
	AuditRoleSwitchCompensated = internalaudit.EventRoleSwitchCompensated
	AuditLogout                = internalaudit.EventLogout
	AuditLogoutAll             = internalaudit.EventLogoutAll
	AuditAccessDenied          = internalaudit.EventAccessDenied
	AuditSessionRevoked        = internalaudit.EventSessionRevoked
)

// MetricID identifies one engine counter or histogram.
type MetricID = internalmetrics.MetricID

// MetricsSnapshot is a point-in-time copy of engine metrics.
type MetricsSnapshot = internalmetrics.Snapshot

const (
	MetricLoginSuccess                 = internalmetrics.LoginSuccess
	MetricLoginFailure                 = internalmetrics.LoginFailure
	MetricLoginRateLimited             = internalmetrics.LoginRateLimited
	MetricAuthenticateSuccess          = internalmetrics.AuthenticateSuccess
	MetricAuthenticateFailure          = internalmetrics.AuthenticateFailure
	MetricSessionRevokedSeen           = internalmetrics.SessionRevokedSeen
	MetricRoleSwitchSuccess            = internalmetrics.RoleSwitchSuccess
	MetricRoleSwitchFailure            = internalmetrics.RoleSwitchFailure
	MetricRoleSwitchRejected           = internalmetrics.RoleSwitchRejected
	MetricRoleSwitchCompensated        = internalmetrics.RoleSwitchCompensated
	MetricRoleSwitchCompensationFailed = internalmetrics.RoleSwitchCompensationFailed
	MetricRoleSwitchContended          = internalmetrics.RoleSwitchContended
	MetricRoleSwitchRateLimited        = internalmetrics.RoleSwitchRateLimited
	MetricSessionCreated               = internalmetrics.SessionCreated
	MetricSessionInvalidated           = internalmetrics.SessionInvalidated
	MetricLogout                       = internalmetrics.Logout
	MetricLogoutAll                    = internalmetrics.LogoutAll
	MetricAccessDenied                 = internalmetrics.AccessDenied
	MetricAuthenticateLatency          = internalmetrics.AuthenticateLatency
	MetricRoleSwitchLatency            = internalmetrics.RoleSwitchLatency
)
