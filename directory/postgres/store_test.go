package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrEthical07/roleAuth/directory"
	"github.com/MrEthical07/roleAuth/role"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return errors.New("scan arity mismatch")
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case *[]string:
			*p = r.values[i].([]string)
		case *int64:
			*p = r.values[i].(int64)
		case *bool:
			*p = r.values[i].(bool)
		default:
			return errors.New("unsupported scan target")
		}
	}
	return nil
}

type call struct {
	sql  string
	args []any
}

type fakeQuerier struct {
	calls []call
	rows  []fakeRow
}

func (q *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	q.calls = append(q.calls, call{sql: sql, args: args})
	if len(q.rows) == 0 {
		return fakeRow{err: errors.New("unexpected query")}
	}
	row := q.rows[0]
	q.rows = q.rows[1:]
	return row
}

func TestFindByEmailParsesRoles(t *testing.T) {
	q := &fakeQuerier{rows: []fakeRow{{values: []any{
		"u@x.com", "Uma", "Xu", []string{"PM", "BA"}, "PM", "$argon2id$...", int64(3),
	}}}}
	s := NewStore(q)

	u, err := s.FindByEmail(context.Background(), " U@x.com")
	require.NoError(t, err)
	assert.Equal(t, role.NewSet(role.PM, role.BA), u.GrantedRoles)
	assert.Equal(t, role.PM, u.ActiveRole)
	assert.Equal(t, int64(3), u.Version)
	require.Len(t, q.calls, 1)
	assert.Equal(t, "u@x.com", q.calls[0].args[0])
}

func TestFindByEmailNotFoundAndCorruptRows(t *testing.T) {
	s := NewStore(&fakeQuerier{rows: []fakeRow{{err: pgx.ErrNoRows}}})
	_, err := s.FindByEmail(context.Background(), "u@x.com")
	assert.ErrorIs(t, err, directory.ErrUserNotFound)

	s = NewStore(&fakeQuerier{rows: []fakeRow{{values: []any{
		"u@x.com", "", "", []string{"pm"}, "pm", "", int64(1),
	}}}})
	_, err = s.FindByEmail(context.Background(), "u@x.com")
	assert.ErrorIs(t, err, directory.ErrInvalidUser)

	s = NewStore(&fakeQuerier{rows: []fakeRow{{err: errors.New("conn reset")}}})
	_, err = s.FindByEmail(context.Background(), "u@x.com")
	assert.ErrorIs(t, err, directory.ErrUnavailable)
}

func TestSaveUsesVersionPredicate(t *testing.T) {
	q := &fakeQuerier{rows: []fakeRow{{values: []any{int64(4)}}}}
	s := NewStore(q)

	u := &directory.User{
		Email:        "u@x.com",
		GrantedRoles: role.NewSet(role.PM, role.BA),
		ActiveRole:   role.BA,
		Version:      3,
	}
	saved, err := s.Save(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, int64(4), saved.Version)
	assert.Equal(t, int64(3), u.Version, "input must not be mutated")

	require.Len(t, q.calls, 1)
	assert.True(t, strings.Contains(q.calls[0].sql, "version = $7"))
	assert.Equal(t, []string{"PM", "BA"}, q.calls[0].args[3])
	assert.Equal(t, "BA", q.calls[0].args[4])
	assert.Equal(t, int64(3), q.calls[0].args[6])
}

func TestSaveDistinguishesConflictFromMissing(t *testing.T) {
	u := &directory.User{Email: "u@x.com", GrantedRoles: role.NewSet(role.PM), ActiveRole: role.PM, Version: 1}

	s := NewStore(&fakeQuerier{rows: []fakeRow{{err: pgx.ErrNoRows}, {values: []any{true}}}})
	_, err := s.Save(context.Background(), u)
	assert.ErrorIs(t, err, directory.ErrVersionConflict)

	s = NewStore(&fakeQuerier{rows: []fakeRow{{err: pgx.ErrNoRows}, {values: []any{false}}}})
	_, err = s.Save(context.Background(), u)
	assert.ErrorIs(t, err, directory.ErrUserNotFound)
}
