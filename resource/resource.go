// Package resource defines the read-only ownership view of business
// resources consumed by the ownership gate.
package resource

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrNotFound = errors.New("resource: not found")
	// ErrUnavailable wraps backend failures of a loader.
	ErrUnavailable = errors.New("resource: backend unavailable")
)

// Resource is the part of a business record the ownership gate reads.
type Resource struct {
	ID        string
	CreatedBy string
}

// Loader looks up a resource by id. It returns ErrNotFound when absent.
type Loader interface {
	FindByID(ctx context.Context, id string) (Resource, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, id string) (Resource, error)

func (f LoaderFunc) FindByID(ctx context.Context, id string) (Resource, error) {
	return f(ctx, id)
}

// Memory is an in-process Loader for tests and examples.
type Memory struct {
	mu    sync.RWMutex
	items map[string]Resource
}

func NewMemory(items ...Resource) *Memory {
	m := &Memory{items: make(map[string]Resource, len(items))}
	for _, r := range items {
		m.items[r.ID] = r
	}
	return m
}

func (m *Memory) Put(r Resource) {
	m.mu.Lock()
	m.items[r.ID] = r
	m.mu.Unlock()
}

func (m *Memory) FindByID(ctx context.Context, id string) (Resource, error) {
	if err := ctx.Err(); err != nil {
		return Resource{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.items[id]
	if !ok {
		return Resource{}, ErrNotFound
	}
	return r, nil
}
