package request

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flightassure/pkg/cache"
	"flightassure/pkg/config"
	"flightassure/pkg/tracker"
)

func testClient() (*Client, *tracker.Tracker) {
	tr := tracker.New()
	cfg := config.RequestConfig{
		Retries: 3,
		Timeout: config.Duration(5 * time.Second),
		Backoff: config.BackoffConfig{
			BaseDelay: config.Duration(time.Millisecond),
			MaxDelay:  config.Duration(10 * time.Millisecond),
		},
	}
	return New(cache.NewMemoryCache(), tr, cfg), tr
}

func TestClient_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tile-bytes"))
	}))
	defer srv.Close()

	c, _ := testClient()

	body, err := c.Get(context.Background(), srv.URL+"/tile/12/1/2.png", "")
	require.NoError(t, err)
	assert.Equal(t, []byte("tile-bytes"), body)
}

func TestClient_RetriesOnServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c, _ := testClient()

	body, err := c.Get(context.Background(), srv.URL, "")
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), body)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestClient_NoRetryOnClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, _ := testClient()

	_, err := c.Get(context.Background(), srv.URL, "")
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestClient_CacheReadThrough(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte("cached-tile"))
	}))
	defer srv.Close()

	c, tr := testClient()
	ctx := context.Background()

	body, err := c.Get(ctx, srv.URL, "tile:12/1/2")
	require.NoError(t, err)
	assert.Equal(t, []byte("cached-tile"), body)

	body, err = c.Get(ctx, srv.URL, "tile:12/1/2")
	require.NoError(t, err)
	assert.Equal(t, []byte("cached-tile"), body)

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "second request must come from cache")

	stats := tr.Snapshot()
	host := stats[srvHost(t, srv)]
	assert.EqualValues(t, 1, host.CacheHits)
	assert.EqualValues(t, 1, host.CacheMisses)
}

func TestClient_ContextCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c, _ := testClient()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Get(ctx, srv.URL, "")
	require.Error(t, err)
}

func srvHost(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	return srv.Listener.Addr().String()
}
