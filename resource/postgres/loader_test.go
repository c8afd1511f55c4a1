package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/roleAuth/resource"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	id, createdBy string
	err           error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.id
	*dest[1].(*string) = r.createdBy
	return nil
}

type fakeQuerier struct {
	sql  string
	args []any
	row  fakeRow
}

func (q *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	q.sql = sql
	q.args = args
	return q.row
}

func TestLoaderBuildsQuery(t *testing.T) {
	q := &fakeQuerier{row: fakeRow{id: "42", createdBy: "u@x.com"}}
	l, err := NewLoader(q, Options{Table: "documents"})
	require.NoError(t, err)

	r, err := l.FindByID(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, resource.Resource{ID: "42", CreatedBy: "u@x.com"}, r)
	assert.Equal(t, "SELECT id::text, created_by FROM documents WHERE id::text = $1", q.sql)
	assert.Equal(t, []any{"42"}, q.args)
}

func TestLoaderMapsErrors(t *testing.T) {
	q := &fakeQuerier{row: fakeRow{err: pgx.ErrNoRows}}
	l, err := NewLoader(q, Options{Table: "documents", CreatorColumn: "author_email"})
	require.NoError(t, err)

	_, err = l.FindByID(context.Background(), "missing")
	require.ErrorIs(t, err, resource.ErrNotFound)

	q.row = fakeRow{err: errors.New("conn reset")}
	_, err = l.FindByID(context.Background(), "42")
	require.ErrorIs(t, err, resource.ErrUnavailable)
	assert.NotErrorIs(t, err, resource.ErrNotFound)
}

func TestLoaderRejectsUnsafeIdentifiers(t *testing.T) {
	for _, opts := range []Options{
		{Table: ""},
		{Table: "documents; drop table users"},
		{Table: "documents", IDColumn: "Id"},
		{Table: "documents", CreatorColumn: "created-by"},
	} {
		_, err := NewLoader(&fakeQuerier{}, opts)
		assert.Error(t, err, opts.Table)
	}
}
