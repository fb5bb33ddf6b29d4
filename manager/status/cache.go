package status

import (
	"context"
	"sync"
)

// Cache is a process-local memoizing cache in front of a status store.
//
// The watch loop is the single writer, calling Invalidate on store
// change events. Readers only ever fill an empty cache, and a fill is
// discarded if an Invalidate landed while the store read was in
// flight, so a slow reader can never resurrect a stale value.
type Cache struct {
	store Store

	mu    sync.RWMutex
	st    Status
	valid bool
	gen   uint64
}

// NewCache returns a cache reading through to the given store.
func NewCache(store Store) *Cache {
	return &Cache{store: store}
}

// Status returns the current manager status, reading through to the
// store if the cached value has been invalidated.
func (c *Cache) Status(ctx context.Context) (Status, error) {
	c.mu.RLock()
	if c.valid {
		st := c.st
		c.mu.RUnlock()
		return st, nil
	}
	gen := c.gen
	c.mu.RUnlock()

	st, err := c.store.ManagerStatus(ctx)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	if c.gen == gen {
		c.st = st
		c.valid = true
	}
	c.mu.Unlock()

	return st, nil
}

// Invalidate clears the cached status, forcing the next read through
// to the store.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.gen++
	c.mu.Unlock()
}
