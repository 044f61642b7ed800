// Package diskcache provides an httpcache.RawCache implementation that uses
// the diskv package to supplement an in-memory map with persistent storage.
package diskcache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/peterbourgon/diskv"
)

// Cache is a RawCache backed by a diskv store. It holds no CAS semantics of
// its own, so httpcache.Storage falls back to its striped in-process mutex
// for UpdateEntry.
type Cache struct {
	d *diskv.Diskv
}

// Get returns the entry bytes corresponding to key if present.
func (c *Cache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	data, err = c.d.Read(keyToFilename(key))
	if err != nil {
		return nil, false, nil
	}
	return data, true, nil
}

// Put stores data under key.
func (c *Cache) Put(_ context.Context, key string, data []byte) error {
	if err := c.d.WriteStream(keyToFilename(key), bytes.NewReader(data), true); err != nil {
		return fmt.Errorf("diskcache put failed for key: %w", err)
	}
	return nil
}

// Delete removes the entry at key from the cache.
func (c *Cache) Delete(_ context.Context, key string) error {
	//nolint:errcheck // file not found is not an error here
	_ = c.d.Erase(keyToFilename(key))
	return nil
}

func keyToFilename(key string) string {
	h := sha256.New()
	//nolint:errcheck // io.WriteString to hash.Hash never fails
	_, _ = io.WriteString(h, key)
	return hex.EncodeToString(h.Sum(nil))
}

// New returns a new Cache that will store files in basePath.
func New(basePath string) *Cache {
	return &Cache{
		d: diskv.New(diskv.Options{
			BasePath:     basePath,
			CacheSizeMax: 100 * 1024 * 1024,
		}),
	}
}

// NewWithDiskv returns a new Cache using the provided Diskv as underlying
// storage.
func NewWithDiskv(d *diskv.Diskv) *Cache {
	return &Cache{d}
}
