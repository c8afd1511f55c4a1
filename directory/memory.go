package directory

import (
	"context"
	"sync"
)

// Memory is an in-process Directory for tests and examples.
type Memory struct {
	mu    sync.RWMutex
	users map[string]*User
}

func NewMemory(users ...*User) *Memory {
	m := &Memory{users: make(map[string]*User, len(users))}
	for _, u := range users {
		m.users[NormalizeEmail(u.Email)] = u.Clone()
	}
	return m
}

// Put provisions or replaces a user without a version check.
func (m *Memory) Put(u *User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[NormalizeEmail(u.Email)] = u.Clone()
	return nil
}

func (m *Memory) FindByEmail(ctx context.Context, email string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[NormalizeEmail(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u.Clone(), nil
}

func (m *Memory) Save(ctx context.Context, u *User) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	key := NormalizeEmail(u.Email)
	current, ok := m.users[key]
	if !ok {
		return nil, ErrUserNotFound
	}
	if current.Version != u.Version {
		return nil, ErrVersionConflict
	}
	next := u.Clone()
	next.Version++
	m.users[key] = next
	return next.Clone(), nil
}
