package httpcache

import (
	"bytes"
	"context"
	"sync"
)

// MemoryCache is an in-process RawCache backed by a map, with a native
// CompareAndSwap so Storage.UpdateEntry never falls back to the generic
// mutex-striping path. Grounded on the teacher's MemoryCache, extended with
// context plumbing and CAS to satisfy the new Storage contract.
type MemoryCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

// NewMemoryCache returns a new, empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: map[string][]byte{}}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

func (c *MemoryCache) Put(_ context.Context, key string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	c.items[key] = cp
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

// CompareAndSwap implements CASCache: it replaces key's value with new iff
// the current value equals old byte-for-byte (or iff the key is absent and
// old is nil).
func (c *MemoryCache) CompareAndSwap(_ context.Context, key string, old, new []byte) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, exists := c.items[key]
	switch {
	case old == nil && exists:
		return false, nil
	case old != nil && (!exists || !bytes.Equal(cur, old)):
		return false, nil
	}

	if new == nil {
		delete(c.items, key)
		return true, nil
	}
	cp := make([]byte, len(new))
	copy(cp, new)
	c.items[key] = cp
	return true, nil
}

var _ RawCache = (*MemoryCache)(nil)
var _ CASCache = (*MemoryCache)(nil)
