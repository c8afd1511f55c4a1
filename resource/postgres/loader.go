// Package postgres loads resource ownership from PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/MrEthical07/roleAuth/resource"
	"github.com/jackc/pgx/v5"
)

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var identifier = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Loader reads (id, created_by) from one table. The column names default
// to "id" and "created_by".
type Loader struct {
	db    Querier
	query string
}

// Options names the table and columns. They are interpolated into SQL and
// must be plain lower-case identifiers.
type Options struct {
	Table         string
	IDColumn      string
	CreatorColumn string
}

func NewLoader(db Querier, opts Options) (*Loader, error) {
	if opts.IDColumn == "" {
		opts.IDColumn = "id"
	}
	if opts.CreatorColumn == "" {
		opts.CreatorColumn = "created_by"
	}
	for _, name := range []string{opts.Table, opts.IDColumn, opts.CreatorColumn} {
		if !identifier.MatchString(name) {
			return nil, fmt.Errorf("resource/postgres: invalid identifier %q", name)
		}
	}
	return &Loader{
		db: db,
		query: fmt.Sprintf("SELECT %s::text, %s FROM %s WHERE %s::text = $1",
			opts.IDColumn, opts.CreatorColumn, opts.Table, opts.IDColumn),
	}, nil
}

func (l *Loader) FindByID(ctx context.Context, id string) (resource.Resource, error) {
	var r resource.Resource
	err := l.db.QueryRow(ctx, l.query, id).Scan(&r.ID, &r.CreatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return resource.Resource{}, resource.ErrNotFound
		}
		return resource.Resource{}, fmt.Errorf("%w: %v", resource.ErrUnavailable, err)
	}
	return r, nil
}
