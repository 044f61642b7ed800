// Package postgresql provides an httpcache.CASCache implementation that
// stores entries in a PostgreSQL table, using a conditional UPDATE for its
// native compare-and-swap.
package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNilPool is returned when a nil pool is provided
	ErrNilPool = errors.New("postgresql: pool cannot be nil")
	// ErrNilConn is returned when a nil connection is provided
	ErrNilConn = errors.New("postgresql: connection cannot be nil")
)

const (
	// DefaultTableName is the default table name for cache storage
	DefaultTableName = "httpcache"
	// DefaultKeyPrefix is the default prefix for cache keys
	DefaultKeyPrefix = "cache:"
)

// Cache is a CASCache that stores entries in a PostgreSQL table.
type Cache struct {
	pool      *pgxpool.Pool
	conn      *pgx.Conn
	tableName string
	keyPrefix string
	timeout   time.Duration
}

// Config holds the configuration for the PostgreSQL cache.
type Config struct {
	// TableName is the name of the table to store cache entries (default: "httpcache")
	TableName string
	// KeyPrefix is the prefix to add to all cache keys (default: "cache:")
	KeyPrefix string
	// Timeout is the maximum time to wait for database operations (default: 5s)
	Timeout time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		TableName: DefaultTableName,
		KeyPrefix: DefaultKeyPrefix,
		Timeout:   5 * time.Second,
	}
}

// cacheKey returns the full cache key with prefix.
func (c *Cache) cacheKey(key string) string {
	return c.keyPrefix + key
}

func (c *Cache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Cache) exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	if c.pool != nil {
		return c.pool.Exec(ctx, query, args...)
	}
	return c.conn.Exec(ctx, query, args...)
}

func (c *Cache) queryRow(ctx context.Context, query string, args ...any) pgx.Row {
	if c.pool != nil {
		return c.pool.QueryRow(ctx, query, args...)
	}
	return c.conn.QueryRow(ctx, query, args...)
}

// Get returns the entry bytes corresponding to key if present.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	query := `SELECT data FROM ` + c.tableName + ` WHERE key = $1`
	err = c.queryRow(ctx, query, c.cacheKey(key)).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("postgresql cache get failed for key %q: %w", key, err)
	}

	return data, true, nil
}

// Put stores data under key, upserting any existing row.
func (c *Cache) Put(ctx context.Context, key string, data []byte) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO ` + c.tableName + ` (key, data, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET data = $2, created_at = $3
	`

	if _, err := c.exec(ctx, query, c.cacheKey(key), data, time.Now()); err != nil {
		return fmt.Errorf("postgresql cache put failed for key %q: %w", key, err)
	}
	return nil
}

// Delete removes the entry at key from the cache.
func (c *Cache) Delete(ctx context.Context, key string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	query := `DELETE FROM ` + c.tableName + ` WHERE key = $1`
	if _, err := c.exec(ctx, query, c.cacheKey(key)); err != nil {
		return fmt.Errorf("postgresql cache delete failed for key %q: %w", key, err)
	}
	return nil
}

// CompareAndSwap implements CASCache. A nil old inserts the row iff it does
// not already exist, using ON CONFLICT DO NOTHING; otherwise it updates the
// row iff its stored data still equals old, using the WHERE clause as the
// atomicity boundary and the affected row count as the swapped signal.
func (c *Cache) CompareAndSwap(ctx context.Context, key string, old, newData []byte) (bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	k := c.cacheKey(key)

	if old == nil {
		query := `
			INSERT INTO ` + c.tableName + ` (key, data, created_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (key) DO NOTHING
		`
		tag, err := c.exec(ctx, query, k, newData, time.Now())
		if err != nil {
			return false, fmt.Errorf("postgresql cache insert failed for key %q: %w", key, err)
		}
		return tag.RowsAffected() == 1, nil
	}

	query := `UPDATE ` + c.tableName + ` SET data = $3, created_at = $4 WHERE key = $1 AND data = $2`
	tag, err := c.exec(ctx, query, k, old, newData, time.Now())
	if err != nil {
		return false, fmt.Errorf("postgresql cache cas failed for key %q: %w", key, err)
	}
	return tag.RowsAffected() == 1, nil
}

// CreateTable creates the cache table if it doesn't exist.
func (c *Cache) CreateTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS ` + c.tableName + ` (
			key TEXT PRIMARY KEY,
			data BYTEA NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`
	_, err := c.exec(ctx, query)
	return err
}

// Close closes the connection pool or connection.
func (c *Cache) Close() {
	if c.pool != nil {
		c.pool.Close()
	} else if c.conn != nil {
		c.conn.Close(context.Background()) //nolint:errcheck // best effort cleanup
	}
}

// NewWithPool returns a new Cache using the provided connection pool.
func NewWithPool(pool *pgxpool.Pool, config *Config) (*Cache, error) {
	if pool == nil {
		return nil, ErrNilPool
	}

	if config == nil {
		config = DefaultConfig()
	}

	return &Cache{
		pool:      pool,
		tableName: config.TableName,
		keyPrefix: config.KeyPrefix,
		timeout:   config.Timeout,
	}, nil
}

// NewWithConn returns a new Cache using the provided connection.
func NewWithConn(conn *pgx.Conn, config *Config) (*Cache, error) {
	if conn == nil {
		return nil, ErrNilConn
	}

	if config == nil {
		config = DefaultConfig()
	}

	return &Cache{
		conn:      conn,
		tableName: config.TableName,
		keyPrefix: config.KeyPrefix,
		timeout:   config.Timeout,
	}, nil
}

// New creates a new Cache with a connection pool from the given connection string.
func New(ctx context.Context, connString string, config *Config) (*Cache, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}

	if config == nil {
		config = DefaultConfig()
	}

	cache := &Cache{
		pool:      pool,
		tableName: config.TableName,
		keyPrefix: config.KeyPrefix,
		timeout:   config.Timeout,
	}

	if err := cache.CreateTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return cache, nil
}
