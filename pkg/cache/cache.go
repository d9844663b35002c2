package cache

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"flightassure/pkg/db"
)

// Cacher defines the caching interface used for raw tile bytes.
type Cacher interface {
	GetCache(ctx context.Context, key string) ([]byte, bool)
	SetCache(ctx context.Context, key string, val []byte) error
	Clear(ctx context.Context) error
}

// SQLiteCache implements Cacher on the tiles table, persisting fetched tiles
// across runs.
type SQLiteCache struct {
	db *db.DB
}

// NewSQLiteCache creates a new cache.
func NewSQLiteCache(d *db.DB) *SQLiteCache {
	return &SQLiteCache{db: d}
}

func (c *SQLiteCache) GetCache(ctx context.Context, key string) ([]byte, bool) {
	var data []byte
	err := c.db.QueryRowContext(ctx, "SELECT data FROM tiles WHERE key = ?", key).Scan(&data)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			// Treat storage errors as a miss; the tile will be refetched.
			return nil, false
		}
		return nil, false
	}
	return data, true
}

func (c *SQLiteCache) SetCache(ctx context.Context, key string, val []byte) error {
	_, err := c.db.ExecContext(ctx,
		"INSERT INTO tiles (key, data) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET data = excluded.data",
		key, val)
	return err
}

func (c *SQLiteCache) Clear(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, "DELETE FROM tiles")
	return err
}

// MemoryCache is a map-backed Cacher for tests and db-less operation.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string][]byte)}
}

func (c *MemoryCache) GetCache(_ context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	val, ok := c.items[key]
	return val, ok
}

func (c *MemoryCache) SetCache(_ context.Context, key string, val []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = val
	return nil
}

func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string][]byte)
	return nil
}
