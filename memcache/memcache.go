//go:build !appengine

// Package memcache provides an httpcache.CASCache implementation that uses
// gomemcache to store cache entries, backed by the memcache protocol's
// native check-and-set.
//
// When built for Google App Engine, this package will provide an
// implementation that uses App Engine's memcache service. See the
// appengine.go file in this package for details.
package memcache

import (
	"bytes"
	"context"
	"fmt"

	"github.com/bradfitz/gomemcache/memcache"
)

// Cache is a CASCache that stores entries in a memcache server.
type Cache struct {
	*memcache.Client
}

// cacheKey modifies an httpcache key for use in memcache. Specifically, it
// prefixes keys to avoid collision with other data stored in memcache.
func cacheKey(key string) string {
	return "httpcache:" + key
}

// Get returns the entry bytes corresponding to key if present.
func (c *Cache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	item, err := c.Client.Get(cacheKey(key))
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return nil, false, nil
		}
		return nil, false, err
	}
	return item.Value, true, nil
}

// Put stores data under key.
func (c *Cache) Put(_ context.Context, key string, data []byte) error {
	item := &memcache.Item{
		Key:   cacheKey(key),
		Value: data,
	}
	if err := c.Client.Set(item); err != nil {
		return fmt.Errorf("memcache put failed for key %q: %w", key, err)
	}
	return nil
}

// Delete removes the entry at key from the cache.
func (c *Cache) Delete(_ context.Context, key string) error {
	if err := c.Client.Delete(cacheKey(key)); err != nil {
		if err == memcache.ErrCacheMiss {
			return nil
		}
		return fmt.Errorf("memcache delete failed for key %q: %w", key, err)
	}
	return nil
}

// CompareAndSwap implements CASCache using memcache's native cas value: a
// nil old requires the key to be absent (Add semantics); otherwise it reads
// the current item, verifies its value against old, and issues a
// CompareAndSwap keyed on the item's cas id.
func (c *Cache) CompareAndSwap(_ context.Context, key string, old, new []byte) (bool, error) {
	k := cacheKey(key)

	if old == nil {
		err := c.Client.Add(&memcache.Item{Key: k, Value: new})
		if err == memcache.ErrNotStored {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("memcache add failed for key %q: %w", key, err)
		}
		return true, nil
	}

	item, err := c.Client.Get(k)
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return false, nil
		}
		return false, fmt.Errorf("memcache get failed for key %q: %w", key, err)
	}
	if !bytes.Equal(item.Value, old) {
		return false, nil
	}

	item.Value = new
	err = c.Client.CompareAndSwap(item)
	if err == memcache.ErrCASConflict || err == memcache.ErrNotStored {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("memcache cas failed for key %q: %w", key, err)
	}
	return true, nil
}

// New returns a new Cache using the provided memcache server(s) with equal
// weight. If a server is listed multiple times, it gets a proportional amount
// of weight.
func New(server ...string) *Cache {
	return NewWithClient(memcache.New(server...))
}

// NewWithClient returns a new Cache with the given memcache client.
func NewWithClient(client *memcache.Client) *Cache {
	return &Cache{client}
}
