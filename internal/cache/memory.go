package cache

import (
	"context"
	"slices"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory is an in-process cache with per-entry expiry.
type Memory struct {
	store *gocache.Cache
}

// NewMemory creates a memory cache whose entries default to ttl and are
// swept every cleanup interval.
func NewMemory(ttl, cleanup time.Duration) *Memory {
	return &Memory{store: gocache.New(ttl, cleanup)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.store.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, ErrMiss
	}
	return slices.Clone(b), nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	m.store.Set(key, slices.Clone(value), ttl)
	return nil
}

// Len returns the number of cached entries, expired ones included until swept.
func (m *Memory) Len() int {
	return m.store.ItemCount()
}
