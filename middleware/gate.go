package middleware

import (
	"context"
	"net/http"

	roleAuth "github.com/MrEthical07/roleAuth"
	"github.com/MrEthical07/roleAuth/policy"
	"github.com/MrEthical07/roleAuth/response"
	"github.com/MrEthical07/roleAuth/role"
)

// DenialReporter records refused requests. *roleAuth.Engine satisfies it.
type DenialReporter interface {
	ReportDenied(ctx context.Context, caller *roleAuth.Principal, resource, code string)
}

// ResourceID extracts the target resource id from a request.
type ResourceID func(r *http.Request) string

// PathValue reads a named wildcard of the matched http.ServeMux pattern.
func PathValue(name string) ResourceID {
	return func(r *http.Request) string { return r.PathValue(name) }
}

// GateOption configures RequireGate.
type GateOption func(*gateOptions)

type gateOptions struct {
	reporter DenialReporter
}

// WithReporter reports every refusal to rep.
func WithReporter(rep DenialReporter) GateOption {
	return func(o *gateOptions) { o.reporter = rep }
}

// RequireRole lets the request through only when the principal's active
// role is one of roles. It must run after Authenticate.
func RequireRole(roles []role.Role, opts ...GateOption) func(http.Handler) http.Handler {
	return RequireGate(policy.Roles(roles...), nil, opts...)
}

// RequireGate evaluates gate for the authenticated principal and the
// resource named by id. Refusals are answered with the gate's 403, 404 or
// 500 envelope.
func RequireGate(gate policy.Gate, id ResourceID, opts ...GateOption) func(http.Handler) http.Handler {
	var o gateOptions
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := roleAuth.PrincipalFromContext(r.Context())
			if !ok {
				response.WriteError(w, roleAuth.ErrUnauthorized)
				return
			}

			var resourceID string
			if id != nil {
				resourceID = id(r)
			}

			env, allowed := policy.GateOrRespond(r.Context(), gate, p, resourceID)
			if !allowed {
				if o.reporter != nil {
					o.reporter.ReportDenied(r.Context(), p, resourceID, env.Code)
				}
				response.Write(w, env)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
