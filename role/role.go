// Package role defines the closed set of roles a user can be granted and
// the bitmask type used to carry a granted-role set through tokens,
// session records, and policy checks.
package role

import (
	"errors"
	"fmt"
)

// Role is one member of the closed role enumeration. The zero value is
// not a role and is never granted.
type Role uint8

const (
	// Unknown is the zero Role. Parse never returns it without an error.
	Unknown Role = iota
	Admin
	Manager
	PM
	BA
	Reviewer
	Viewer

	roleCount
)

var (
	// ErrUnknownRole is returned when a wire string does not name a role.
	ErrUnknownRole = errors.New("role: unknown role")
	// ErrEmptyRole is returned for an empty role string.
	ErrEmptyRole = errors.New("role: empty role")
)

var names = [roleCount]string{
	Unknown:  "",
	Admin:    "ADMIN",
	Manager:  "MANAGER",
	PM:       "PM",
	BA:       "BA",
	Reviewer: "REVIEWER",
	Viewer:   "VIEWER",
}

var byName = func() map[string]Role {
	m := make(map[string]Role, roleCount)
	for r := Admin; r < roleCount; r++ {
		m[names[r]] = r
	}
	return m
}()

// Parse maps a wire string to a Role. Matching is exact and
// case-sensitive: "manager" is not MANAGER.
func Parse(s string) (Role, error) {
	if s == "" {
		return Unknown, ErrEmptyRole
	}
	r, ok := byName[s]
	if !ok {
		return Unknown, fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

// Valid reports whether r is a member of the enumeration.
func (r Role) Valid() bool {
	return r > Unknown && r < roleCount
}

func (r Role) String() string {
	if !r.Valid() {
		return "UNKNOWN"
	}
	return names[r]
}

// All returns every valid role in declaration order.
func All() []Role {
	out := make([]Role, 0, roleCount-1)
	for r := Admin; r < roleCount; r++ {
		out = append(out, r)
	}
	return out
}
