// Package hazelcast provides an httpcache.CASCache implementation backed by
// a Hazelcast distributed map, using the map's native PutIfAbsent and
// ReplaceIfSame for compare-and-swap.
package hazelcast

import (
	"bytes"
	"context"
	"fmt"

	"github.com/hazelcast/hazelcast-go-client"
)

// Cache is a CASCache that stores entries in a Hazelcast distributed map.
type Cache struct {
	m   *hazelcast.Map
	ctx context.Context
}

// cacheKey modifies an httpcache key for use in Hazelcast. Specifically, it
// prefixes keys to avoid collision with other data stored in the map.
func cacheKey(key string) string {
	return "httpcache:" + key
}

func (c Cache) resolveCtx(ctx context.Context) context.Context {
	if ctx == nil {
		return c.ctx
	}
	return ctx
}

// Get returns the entry bytes corresponding to key if present.
func (c Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	ctx = c.resolveCtx(ctx)

	val, err := c.m.Get(ctx, cacheKey(key))
	if err != nil {
		return nil, false, err
	}
	if val == nil {
		return nil, false, nil
	}

	data, ok = val.([]byte)
	if !ok {
		return nil, false, nil
	}
	return data, true, nil
}

// Put stores data under key.
func (c Cache) Put(ctx context.Context, key string, data []byte) error {
	ctx = c.resolveCtx(ctx)

	if err := c.m.Set(ctx, cacheKey(key), data); err != nil {
		return fmt.Errorf("hazelcast cache put failed for key %q: %w", key, err)
	}
	return nil
}

// Delete removes the entry at key from the cache.
func (c Cache) Delete(ctx context.Context, key string) error {
	ctx = c.resolveCtx(ctx)

	if _, err := c.m.Remove(ctx, cacheKey(key)); err != nil {
		return fmt.Errorf("hazelcast cache delete failed for key %q: %w", key, err)
	}
	return nil
}

// CompareAndSwap implements CASCache using the map's PutIfAbsent, Get and
// ReplaceIfSame operations.
// A nil old inserts via PutIfAbsent, which only stores the value when the
// key is not already present. Otherwise it uses ReplaceIfSame, which swaps
// the value iff the currently stored value still equals old.
func (c Cache) CompareAndSwap(ctx context.Context, key string, old, newData []byte) (bool, error) {
	ctx = c.resolveCtx(ctx)
	k := cacheKey(key)

	if old == nil {
		prev, err := c.m.PutIfAbsent(ctx, k, newData)
		if err != nil {
			return false, fmt.Errorf("hazelcast cache put-if-absent failed for key %q: %w", key, err)
		}
		return prev == nil, nil
	}

	current, err := c.m.Get(ctx, k)
	if err != nil {
		return false, fmt.Errorf("hazelcast cache get failed for key %q: %w", key, err)
	}
	currentData, ok := current.([]byte)
	if !ok || !bytes.Equal(currentData, old) {
		return false, nil
	}

	swapped, err := c.m.ReplaceIfSame(ctx, k, old, newData)
	if err != nil {
		return false, fmt.Errorf("hazelcast cache replace-if-same failed for key %q: %w", key, err)
	}
	return swapped, nil
}

// NewWithMap returns a new Cache with the given Hazelcast map.
func NewWithMap(m *hazelcast.Map) Cache {
	return Cache{m: m, ctx: context.Background()}
}

// NewWithMapAndContext returns a new Cache with the given Hazelcast map and context.
// Note: The provided context is used as a fallback; contexts passed to Get/Put/Delete
// take precedence.
func NewWithMapAndContext(ctx context.Context, m *hazelcast.Map) Cache {
	return Cache{m: m, ctx: ctx}
}
