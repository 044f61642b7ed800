// Package redis provides an httpcache.CASCache implementation backed by a
// Redis server via go-redis, using a Lua script for atomic compare-and-swap.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sandrolain/httpcache"
)

// Config holds the configuration for creating a Redis cache.
type Config struct {
	// Address is the Redis server address (e.g., "localhost:6379").
	// Required field.
	Address string

	// Password is the Redis password for authentication.
	// Optional - leave empty if no authentication is required.
	Password string

	// DB is the Redis database number to use.
	// Optional - defaults to 0.
	DB int

	// PoolSize is the maximum number of connections in the pool.
	// Optional - defaults to 10.
	PoolSize int

	// MaxRetries is the number of retries for transient errors.
	// Optional - defaults to 3.
	MaxRetries int

	// DialTimeout is the timeout for connecting to Redis.
	// Optional - defaults to 5 seconds.
	DialTimeout time.Duration

	// ReadTimeout is the timeout for reading from Redis.
	// Optional - defaults to 5 seconds.
	ReadTimeout time.Duration

	// WriteTimeout is the timeout for writing to Redis.
	// Optional - defaults to 5 seconds.
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PoolSize:     10,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		DB:           0,
	}
}

// Cache is a CASCache that stores entries in a redis server.
type Cache struct {
	client *redis.Client
}

// cacheKey modifies an httpcache key for use in redis. Specifically, it
// prefixes keys to avoid collision with other data stored in redis.
func cacheKey(key string) string {
	return "httpcache:" + key
}

// Get returns the entry bytes corresponding to key if present.
func (c Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	item, err := c.client.Get(ctx, cacheKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis cache get failed for key %q: %w", key, err)
	}
	return item, true, nil
}

// Put stores data under key.
func (c Cache) Put(ctx context.Context, key string, data []byte) error {
	if err := c.client.Set(ctx, cacheKey(key), data, 0).Err(); err != nil {
		httpcache.GetLogger().Warn("failed to write to redis cache", "key", key, "error", err)
		return fmt.Errorf("redis cache put failed for key %q: %w", key, err)
	}
	return nil
}

// Delete removes the entry at key from the cache.
func (c Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, cacheKey(key)).Err(); err != nil {
		httpcache.GetLogger().Warn("failed to delete from redis cache", "key", key, "error", err)
		return fmt.Errorf("redis cache delete failed for key %q: %w", key, err)
	}
	return nil
}

// casScript atomically compares the current value of KEYS[1] against ARGV[1]
// (empty string means "must be absent") and, if it matches, sets it to
// ARGV[2]. Returns 1 on success, 0 on mismatch, so the whole
// read-compare-write sequence happens server-side in one round trip.
var casScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if cur == false then cur = "" end
if cur ~= ARGV[1] then
  return 0
end
redis.call("SET", KEYS[1], ARGV[2])
return 1
`)

// CompareAndSwap implements CASCache using the Lua script above. A nil old
// requires the key to be absent.
func (c Cache) CompareAndSwap(ctx context.Context, key string, old, new []byte) (bool, error) {
	res, err := casScript.Run(ctx, c.client, []string{cacheKey(key)}, string(old), string(new)).Int()
	if err != nil {
		return false, fmt.Errorf("redis cache cas failed for key %q: %w", key, err)
	}
	return res == 1, nil
}

// Close closes the connection to the redis server by closing the wrapped
// client, including a client passed to NewWithClient.
func (c Cache) Close() error {
	return c.client.Close()
}

// New creates a new Cache with the given configuration, connecting to a
// redis server and verifying reachability with a PING. The caller should
// call Close() on the returned cache when done to clean up resources.
func New(config Config) (Cache, error) {
	if config.Address == "" {
		return Cache{}, fmt.Errorf("redis address is required")
	}

	def := DefaultConfig()
	if config.PoolSize == 0 {
		config.PoolSize = def.PoolSize
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = def.MaxRetries
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = def.DialTimeout
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = def.ReadTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = def.WriteTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Address,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MaxRetries:   config.MaxRetries,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return Cache{}, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return Cache{client: client}, nil
}

// NewWithClient returns a new Cache wrapping an existing redis client.
// Calling Close on the returned Cache closes that client.
func NewWithClient(client *redis.Client) Cache {
	return Cache{client: client}
}
