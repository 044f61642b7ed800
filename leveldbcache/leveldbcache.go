// Package leveldbcache provides an httpcache.RawCache implementation backed
// by github.com/syndtr/goleveldb/leveldb.
package leveldbcache

import (
	"context"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
)

// Cache is a RawCache backed by a leveldb database. It has no native CAS, so
// httpcache.Storage falls back to its striped in-process mutex for
// UpdateEntry.
type Cache struct {
	db *leveldb.DB
}

// Get returns the entry bytes corresponding to key if present.
func (c *Cache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	data, err = c.db.Get([]byte(key), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// Put stores data under key.
func (c *Cache) Put(_ context.Context, key string, data []byte) error {
	if err := c.db.Put([]byte(key), data, nil); err != nil {
		return fmt.Errorf("leveldb cache put failed for key %q: %w", key, err)
	}
	return nil
}

// Delete removes the entry at key from the cache.
func (c *Cache) Delete(_ context.Context, key string) error {
	if err := c.db.Delete([]byte(key), nil); err != nil {
		return fmt.Errorf("leveldb cache delete failed for key %q: %w", key, err)
	}
	return nil
}

// New returns a new Cache that will store leveldb in path.
func New(path string) (*Cache, error) {
	cache := &Cache{}

	var err error
	cache.db, err = leveldb.OpenFile(path, nil)

	if err != nil {
		return nil, err
	}
	return cache, nil
}

// NewWithDB returns a new Cache using the provided leveldb as underlying
// storage.
func NewWithDB(db *leveldb.DB) *Cache {
	return &Cache{db}
}
