// Package postgres implements directory.Directory on PostgreSQL via pgx.
//
// Expected schema:
//
//	CREATE TABLE users (
//	    email          text PRIMARY KEY,
//	    first_name     text NOT NULL DEFAULT '',
//	    last_name      text NOT NULL DEFAULT '',
//	    granted_roles  text[] NOT NULL,
//	    active_role    text NOT NULL,
//	    password_hash  text NOT NULL DEFAULT '',
//	    version        bigint NOT NULL DEFAULT 1,
//	    updated_at     timestamptz NOT NULL DEFAULT now()
//	);
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/roleAuth/directory"
	"github.com/MrEthical07/roleAuth/role"
	"github.com/jackc/pgx/v5"
)

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a PostgreSQL-backed user directory.
type Store struct {
	db Querier
}

func NewStore(db Querier) *Store {
	return &Store{db: db}
}

const findByEmailQuery = `
	SELECT email, first_name, last_name, granted_roles, active_role, password_hash, version
	FROM users
	WHERE email = $1
`

const saveQuery = `
	UPDATE users
	SET first_name = $2, last_name = $3, granted_roles = $4, active_role = $5,
	    password_hash = $6, version = version + 1, updated_at = now()
	WHERE email = $1 AND version = $7
	RETURNING version
`

const existsQuery = `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`

func (s *Store) FindByEmail(ctx context.Context, email string) (*directory.User, error) {
	var (
		u       directory.User
		granted []string
		active  string
	)
	err := s.db.QueryRow(ctx, findByEmailQuery, directory.NormalizeEmail(email)).Scan(
		&u.Email,
		&u.FirstName,
		&u.LastName,
		&granted,
		&active,
		&u.PasswordHash,
		&u.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, directory.ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", directory.ErrUnavailable, err)
	}

	set, err := role.ParseSet(granted)
	if err != nil {
		return nil, fmt.Errorf("%w: stored roles: %v", directory.ErrInvalidUser, err)
	}
	ar, err := role.Parse(active)
	if err != nil {
		return nil, fmt.Errorf("%w: stored active role: %v", directory.ErrInvalidUser, err)
	}
	u.GrantedRoles = set
	u.ActiveRole = ar
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) Save(ctx context.Context, u *directory.User) (*directory.User, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}

	email := directory.NormalizeEmail(u.Email)
	var next int64
	err := s.db.QueryRow(ctx, saveQuery,
		email,
		u.FirstName,
		u.LastName,
		u.GrantedRoles.Names(),
		u.ActiveRole.String(),
		u.PasswordHash,
		u.Version,
	).Scan(&next)
	if err == nil {
		out := u.Clone()
		out.Email = email
		out.Version = next
		return out, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %v", directory.ErrUnavailable, err)
	}

	var exists bool
	if err := s.db.QueryRow(ctx, existsQuery, email).Scan(&exists); err != nil {
		return nil, fmt.Errorf("%w: %v", directory.ErrUnavailable, err)
	}
	if !exists {
		return nil, directory.ErrUserNotFound
	}
	return nil, directory.ErrVersionConflict
}
