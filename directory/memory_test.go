package directory

import (
	"context"
	"testing"

	"github.com/MrEthical07/roleAuth/role"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedUser() *User {
	return &User{
		Email:        "u@x.com",
		FirstName:    "Uma",
		LastName:     "Xu",
		GrantedRoles: role.NewSet(role.PM, role.BA),
		ActiveRole:   role.PM,
		Version:      1,
	}
}

func TestMemoryFindByEmail(t *testing.T) {
	m := NewMemory(seedUser())
	ctx := context.Background()

	u, err := m.FindByEmail(ctx, "U@X.com ")
	require.NoError(t, err)
	assert.Equal(t, "Uma", u.FirstName)

	_, err = m.FindByEmail(ctx, "nobody@x.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestMemorySaveIsOptimistic(t *testing.T) {
	m := NewMemory(seedUser())
	ctx := context.Background()

	first, err := m.FindByEmail(ctx, "u@x.com")
	require.NoError(t, err)
	second, err := m.FindByEmail(ctx, "u@x.com")
	require.NoError(t, err)

	first.ActiveRole = role.BA
	saved, err := m.Save(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, int64(2), saved.Version)
	assert.Equal(t, role.BA, saved.ActiveRole)

	second.ActiveRole = role.PM
	_, err = m.Save(ctx, second)
	assert.ErrorIs(t, err, ErrVersionConflict)

	stored, err := m.FindByEmail(ctx, "u@x.com")
	require.NoError(t, err)
	assert.Equal(t, role.BA, stored.ActiveRole)
}

func TestMemorySaveRejectsInvalidUsers(t *testing.T) {
	m := NewMemory(seedUser())
	ctx := context.Background()

	u := seedUser()
	u.ActiveRole = role.Admin
	_, err := m.Save(ctx, u)
	assert.ErrorIs(t, err, ErrInvalidUser)

	missing := seedUser()
	missing.Email = "ghost@x.com"
	_, err = m.Save(ctx, missing)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestMemoryReturnsCopies(t *testing.T) {
	m := NewMemory(seedUser())
	ctx := context.Background()

	u, err := m.FindByEmail(ctx, "u@x.com")
	require.NoError(t, err)
	u.ActiveRole = role.BA

	again, err := m.FindByEmail(ctx, "u@x.com")
	require.NoError(t, err)
	assert.Equal(t, role.PM, again.ActiveRole)
}
