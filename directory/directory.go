// Package directory holds the durable user record: identity, granted roles
// and the currently active role. Saves are optimistic on User.Version.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/roleAuth/role"
)

var (
	ErrUserNotFound    = errors.New("directory: user not found")
	ErrVersionConflict = errors.New("directory: version conflict")
	ErrInvalidUser     = errors.New("directory: invalid user")
	ErrUnavailable     = errors.New("directory: backend unavailable")
)

// User is the durable account record. Email is the stable subject.
type User struct {
	Email        string
	FirstName    string
	LastName     string
	GrantedRoles role.Set
	ActiveRole   role.Role
	PasswordHash string
	// Version increases by one on every successful Save.
	Version int64
}

// Directory is the user store consumed by the engine.
type Directory interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	// Save persists u if the stored version still equals u.Version and
	// returns the stored copy with the incremented version.
	Save(ctx context.Context, u *User) (*User, error)
}

// Validate checks the invariants every stored user satisfies.
func (u *User) Validate() error {
	if u == nil {
		return ErrInvalidUser
	}
	if strings.TrimSpace(u.Email) == "" {
		return fmt.Errorf("%w: empty email", ErrInvalidUser)
	}
	if u.GrantedRoles.Empty() {
		return fmt.Errorf("%w: no granted roles", ErrInvalidUser)
	}
	if !u.GrantedRoles.Has(u.ActiveRole) {
		return fmt.Errorf("%w: active role %s is not granted", ErrInvalidUser, u.ActiveRole)
	}
	return nil
}

// Clone returns a copy safe to mutate.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}

// NormalizeEmail is the lookup key form of an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
