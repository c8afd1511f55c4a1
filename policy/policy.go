// Package policy composes the role gate and the ownership gate that guard
// protected operations.
//
// A [Gate] always evaluates the role gate first. The ownership loader runs
// only when the role gate allows, so a denied caller costs no I/O.
package policy

import (
	"context"
	"errors"
	"fmt"

	roleAuth "github.com/MrEthical07/roleAuth"
	"github.com/MrEthical07/roleAuth/resource"
	"github.com/MrEthical07/roleAuth/response"
	"github.com/MrEthical07/roleAuth/role"
)

// Outcome is the result class of a Decision.
type Outcome int

const (
	Deny Outcome = iota
	Allow
	NotFound
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case NotFound:
		return "not_found"
	default:
		return "deny"
	}
}

// Reasons carried by deny decisions.
const (
	ReasonNoPrincipal  = "no_principal"
	ReasonUnknownRole  = "unknown_role"
	ReasonRoleNotAllow = "role_not_allowed"
	ReasonNotOwner     = "not_owner"
	ReasonNoResourceID = "no_resource_id"
)

// Decision is a transient authorization result. Err is set when the
// ownership loader failed; the decision is then not Allow.
type Decision struct {
	Outcome Outcome
	Reason  string
	Err     error
}

func (d Decision) Allowed() bool { return d.Outcome == Allow && d.Err == nil }

func allow() Decision { return Decision{Outcome: Allow} }

func deny(reason string) Decision { return Decision{Outcome: Deny, Reason: reason} }

// RequireRole allows iff active is a known role contained in allowed. The
// zero role is always denied.
func RequireRole(active role.Role, allowed role.Set) Decision {
	if !active.Valid() {
		return deny(ReasonUnknownRole)
	}
	if !allowed.Has(active) {
		return deny(ReasonRoleNotAllow)
	}
	return allow()
}

// RequireRoleName is RequireRole on wire strings. Both sides are parsed
// exactly, so "manager" never matches "MANAGER".
func RequireRoleName(active string, allowed ...string) Decision {
	r, err := role.Parse(active)
	if err != nil {
		return deny(ReasonUnknownRole)
	}
	var set role.Set
	for _, name := range allowed {
		if a, err := role.Parse(name); err == nil {
			set = set.With(a)
		}
	}
	return RequireRole(r, set)
}

// RequireOwnership loads resourceID and allows iff its creator is
// callerEmail. The resource is never modified.
func RequireOwnership(ctx context.Context, callerEmail, resourceID string, loader resource.Loader) Decision {
	if resourceID == "" {
		return deny(ReasonNoResourceID)
	}
	res, err := loader.FindByID(ctx, resourceID)
	if err != nil {
		if errors.Is(err, resource.ErrNotFound) {
			return Decision{Outcome: NotFound}
		}
		return Decision{Outcome: Deny, Err: err}
	}
	if callerEmail == "" || res.CreatedBy != callerEmail {
		return deny(ReasonNotOwner)
	}
	return allow()
}

// OwnershipCheck enables the ownership gate on a Gate.
type OwnershipCheck struct {
	Loader resource.Loader
}

// Gate is a role gate optionally followed by an ownership gate.
type Gate struct {
	Roles     role.Set
	Ownership *OwnershipCheck
}

// Roles builds a role-only Gate.
func Roles(roles ...role.Role) Gate {
	return Gate{Roles: role.NewSet(roles...)}
}

// Owned returns a copy of g that also requires ownership via loader.
func (g Gate) Owned(loader resource.Loader) Gate {
	g.Ownership = &OwnershipCheck{Loader: loader}
	return g
}

// Evaluate runs the role gate, then the ownership gate when configured.
// resourceID is ignored for role-only gates.
func (g Gate) Evaluate(ctx context.Context, p *roleAuth.Principal, resourceID string) Decision {
	if p == nil {
		return deny(ReasonNoPrincipal)
	}
	d := RequireRole(p.Active, g.Roles)
	if !d.Allowed() || g.Ownership == nil {
		return d
	}
	return RequireOwnership(ctx, p.Subject, resourceID, g.Ownership.Loader)
}

// GateOrError evaluates g and turns a refusal into an error:
// roleAuth.ErrAccessDenied, roleAuth.ErrResourceNotFound or the wrapped
// loader failure.
func GateOrError(ctx context.Context, g Gate, p *roleAuth.Principal, resourceID string) error {
	return decisionError(g.Evaluate(ctx, p, resourceID))
}

// GateOrRespond evaluates g and returns the envelope to send when access
// is refused. ok is true when the operation may proceed.
func GateOrRespond(ctx context.Context, g Gate, p *roleAuth.Principal, resourceID string) (env *response.Envelope, ok bool) {
	err := decisionError(g.Evaluate(ctx, p, resourceID))
	if err == nil {
		return nil, true
	}
	return response.FromError(err), false
}

func decisionError(d Decision) error {
	switch {
	case d.Err != nil:
		return fmt.Errorf("policy: load resource: %w", d.Err)
	case d.Outcome == Allow:
		return nil
	case d.Outcome == NotFound:
		return roleAuth.ErrResourceNotFound
	case d.Reason != "":
		return fmt.Errorf("%w: %s", roleAuth.ErrAccessDenied, d.Reason)
	default:
		return roleAuth.ErrAccessDenied
	}
}
