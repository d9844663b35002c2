package cache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flightassure/pkg/db"
)

func testCachers(t *testing.T) map[string]Cacher {
	t.Helper()

	d, err := db.Init(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	return map[string]Cacher{
		"sqlite": NewSQLiteCache(d),
		"memory": NewMemoryCache(),
	}
}

func TestCacher_RoundTrip(t *testing.T) {
	ctx := context.Background()

	for name, c := range testCachers(t) {
		t.Run(name, func(t *testing.T) {
			_, hit := c.GetCache(ctx, "12/2048/1360")
			assert.False(t, hit, "empty cache must miss")

			require.NoError(t, c.SetCache(ctx, "12/2048/1360", []byte("png-bytes")))

			val, hit := c.GetCache(ctx, "12/2048/1360")
			require.True(t, hit)
			assert.Equal(t, []byte("png-bytes"), val)

			// Overwrite replaces the value.
			require.NoError(t, c.SetCache(ctx, "12/2048/1360", []byte("newer")))
			val, hit = c.GetCache(ctx, "12/2048/1360")
			require.True(t, hit)
			assert.Equal(t, []byte("newer"), val)
		})
	}
}

func TestCacher_Clear(t *testing.T) {
	ctx := context.Background()

	for name, c := range testCachers(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, c.SetCache(ctx, "a", []byte("1")))
			require.NoError(t, c.SetCache(ctx, "b", []byte("2")))

			require.NoError(t, c.Clear(ctx))

			_, hit := c.GetCache(ctx, "a")
			assert.False(t, hit)
			_, hit = c.GetCache(ctx, "b")
			assert.False(t, hit)
		})
	}
}
