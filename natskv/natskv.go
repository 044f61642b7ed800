// Package natskv provides an httpcache.CASCache implementation backed by a
// NATS JetStream Key/Value bucket, using the bucket's revision-based Create
// and Update calls for native compare-and-swap.
package natskv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/sandrolain/httpcache"
)

// Config holds the configuration for creating a NATS K/V cache.
type Config struct {
	// NATSUrl is the URL of the NATS server (e.g., "nats://localhost:4222").
	// If empty, defaults to nats.DefaultURL.
	NATSUrl string

	// Bucket is the name of the K/V bucket to use for caching.
	// Required field.
	Bucket string

	// Description is an optional description for the K/V bucket.
	Description string

	// TTL is the time-to-live for cache entries.
	// If zero, entries don't expire (unless deleted by NATS based on other policies).
	TTL time.Duration

	// NATSOptions are additional options to pass to nats.Connect.
	// Optional.
	NATSOptions []nats.Option
}

// Cache is a CASCache that stores entries in a NATS JetStream Key/Value bucket.
type Cache struct {
	kv jetstream.KeyValue
	nc *nats.Conn
}

// cacheKey modifies an httpcache key for use in NATS K/V. Specifically, it
// prefixes keys to avoid collision with other data stored in the bucket.
func cacheKey(key string) string {
	return "httpcache." + key
}

// Get returns the entry bytes corresponding to key if present.
func (c Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	entry, err := c.kv.Get(ctx, cacheKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return entry.Value(), true, nil
}

// Put stores data under key.
func (c Cache) Put(ctx context.Context, key string, data []byte) error {
	if _, err := c.kv.Put(ctx, cacheKey(key), data); err != nil {
		httpcache.GetLogger().Warn("failed to write to NATS K/V cache", "key", key, "error", err)
		return err
	}
	return nil
}

// Delete removes the entry at key from the cache.
func (c Cache) Delete(ctx context.Context, key string) error {
	if err := c.kv.Delete(ctx, cacheKey(key)); err != nil {
		if !errors.Is(err, jetstream.ErrKeyNotFound) {
			httpcache.GetLogger().Warn("failed to delete from NATS K/V cache", "key", key, "error", err)
			return err
		}
	}
	return nil
}

// CompareAndSwap implements CASCache using the bucket's revision tracking. A
// nil old creates the key iff it does not already exist. Otherwise it reads
// the current entry, verifies its value against old, and issues an Update
// keyed on that entry's revision so a concurrent writer aborts the swap.
func (c Cache) CompareAndSwap(ctx context.Context, key string, old, newData []byte) (bool, error) {
	k := cacheKey(key)

	if old == nil {
		if _, err := c.kv.Create(ctx, k, newData); err != nil {
			if errors.Is(err, jetstream.ErrKeyExists) {
				return false, nil
			}
			return false, fmt.Errorf("natskv cache create failed for key %q: %w", key, err)
		}
		return true, nil
	}

	entry, err := c.kv.Get(ctx, k)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("natskv cache get failed for key %q: %w", key, err)
	}
	if !bytes.Equal(entry.Value(), old) {
		return false, nil
	}

	if _, err := c.kv.Update(ctx, k, newData, entry.Revision()); err != nil {
		return false, nil
	}
	return true, nil
}

// Close closes the underlying NATS connection if it was created by New().
// It's a no-op when using NewWithKeyValue().
func (c Cache) Close() error {
	if c.nc != nil {
		c.nc.Close()
	}
	return nil
}

// New creates a new Cache with the given configuration.
// It establishes a connection to NATS, creates a JetStream context,
// and creates or updates the K/V bucket according to the configuration.
// The caller should call Close() on the returned cache when done to clean up resources.
func New(ctx context.Context, config Config) (Cache, error) {
	if config.Bucket == "" {
		return Cache{}, fmt.Errorf("bucket name is required")
	}

	url := config.NATSUrl
	if url == "" {
		url = nats.DefaultURL
	}

	nc, err := nats.Connect(url, config.NATSOptions...)
	if err != nil {
		return Cache{}, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return Cache{}, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	kvConfig := jetstream.KeyValueConfig{
		Bucket:      config.Bucket,
		Description: config.Description,
		TTL:         config.TTL,
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, kvConfig)
	if err != nil {
		nc.Close()
		return Cache{}, fmt.Errorf("failed to create or update K/V bucket: %w", err)
	}

	return Cache{kv: kv, nc: nc}, nil
}

// NewWithKeyValue returns a new Cache with the given NATS JetStream KeyValue store.
// This constructor is useful when you want to manage the NATS connection yourself.
// The returned cache will not close the NATS connection when Close() is called.
func NewWithKeyValue(kv jetstream.KeyValue) Cache {
	return Cache{kv: kv, nc: nil}
}
