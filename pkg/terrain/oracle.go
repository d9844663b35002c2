package terrain

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"flightassure/pkg/cache"
	"flightassure/pkg/config"
	"flightassure/pkg/geo"
	"flightassure/pkg/model"
	"flightassure/pkg/request"
	"flightassure/pkg/tracker"
)

// Source answers elevation queries. Implemented by Oracle and by test fakes.
type Source interface {
	Elevation(ctx context.Context, lon, lat float64) (float64, error)
}

// SourceFunc adapts a plain function to a Source.
type SourceFunc func(lon, lat float64) float64

func (f SourceFunc) Elevation(_ context.Context, lon, lat float64) (float64, error) {
	return f(lon, lat), nil
}

// TileFetcher returns the raw encoded raster for a tile key. The Oracle's
// default fetcher goes through the HTTP client; tests inject their own.
type TileFetcher interface {
	FetchTile(ctx context.Context, key TileKey) ([]byte, error)
}

// tileStoreProvider labels the persistent tile store in tracker statistics,
// alongside the per-host entries the HTTP client reports.
const tileStoreProvider = "tile-store"

// Oracle caches decoded elevation tiles and answers point elevation queries.
// Decoded tiles are immutable and shared; the cache is a lookup-or-insert
// map guarded by an RWMutex and is safe for concurrent readers.
type Oracle struct {
	fetcher TileFetcher
	store   cache.Cacher
	tracker *tracker.Tracker
	cfg     config.TerrainConfig

	mu    sync.RWMutex
	tiles map[TileKey]*Tile
	gen   uint64

	degradedMu sync.Mutex
	degraded   bool
}

// NewOracle creates an Oracle fetching tiles over HTTP through the given
// client, persisting raw tiles in store.
func NewOracle(client *request.Client, store cache.Cacher, tr *tracker.Tracker, cfg config.TerrainConfig) *Oracle {
	fetcher := &httpFetcher{
		client:  client,
		cfg:     cfg,
		backoff: request.NewProviderBackoff(time.Second, time.Minute),
	}
	return NewOracleWithFetcher(fetcher, store, tr, cfg)
}

// NewOracleWithFetcher creates an Oracle with a custom tile fetcher.
func NewOracleWithFetcher(fetcher TileFetcher, store cache.Cacher, tr *tracker.Tracker, cfg config.TerrainConfig) *Oracle {
	if store == nil {
		store = cache.NewMemoryCache()
	}
	if tr == nil {
		tr = tracker.New()
	}
	return &Oracle{
		fetcher: fetcher,
		store:   store,
		tracker: tr,
		cfg:     cfg,
		tiles:   make(map[TileKey]*Tile),
	}
}

// Elevation returns the terrain elevation in meters AMSL at the coordinate.
// It fails with ErrElevationUnavailable only once the fetcher has exhausted
// retries against every source.
func (o *Oracle) Elevation(ctx context.Context, lon, lat float64) (float64, error) {
	if lat > 90 || lat < -90 || lon > 180 || lon < -180 {
		return 0, fmt.Errorf("%w: coordinates out of bounds: %f, %f", model.ErrInvalidGeometry, lon, lat)
	}

	key, fx, fy := tileIndex(lon, lat, o.cfg.Zoom)
	tile, err := o.tile(ctx, key)
	if err != nil {
		return 0, err
	}
	return tile.Sample(fx, fy), nil
}

// ElevationOrZero degrades to 0 on lookup failure, logging a warning. This is
// the variant the analysis loops use; gap-filled terrain is preferred over a
// failed analysis.
func (o *Oracle) ElevationOrZero(ctx context.Context, lon, lat float64) float64 {
	elev, err := o.Elevation(ctx, lon, lat)
	if err != nil {
		slog.Warn("Elevation lookup failed, using 0", "lon", lon, "lat", lat, "error", err)
		o.setDegraded()
		return 0
	}
	return elev
}

// Loaded reports whether the tile covering the coordinate is currently decoded.
func (o *Oracle) Loaded(lon, lat float64) bool {
	key, _, _ := tileIndex(lon, lat, o.cfg.Zoom)
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.tiles[key]
	return ok
}

// Preload warms the tile cache for the given points. Callers should await it
// before bulk queries to avoid per-point fetch stalls. Individual tile
// failures are logged, not returned; only context cancellation aborts.
func (o *Oracle) Preload(ctx context.Context, points []geo.Point) error {
	keys := make(map[TileKey]struct{})
	for _, p := range points {
		key, _, _ := tileIndex(p.Lon, p.Lat, o.cfg.Zoom)
		keys[key] = struct{}{}
	}

	var failed int
	for key := range keys {
		if err := ctx.Err(); err != nil {
			return model.ErrCancelled
		}
		if _, err := o.tile(ctx, key); err != nil {
			failed++
			slog.Debug("Preload tile failed", "tile", key, "error", err)
		}
	}

	if failed > 0 {
		slog.Warn("Preload finished with gaps", "tiles", len(keys), "failed", failed)
	} else {
		slog.Debug("Preload complete", "tiles", len(keys))
	}
	return nil
}

// EnsureReady blocks until the elevation source answers a probe query, or
// until the configured ready timeout expires. On timeout the oracle proceeds
// in degraded mode rather than failing: approximate answers beat blocking
// indefinitely.
func (o *Oracle) EnsureReady(ctx context.Context) error {
	timeout := time.Duration(o.cfg.ReadyTimeout)
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	deadline := time.Now().Add(timeout)

	for {
		if err := ctx.Err(); err != nil {
			return model.ErrCancelled
		}

		_, err := o.Elevation(ctx, o.cfg.ProbeLon, o.cfg.ProbeLat)
		if err == nil {
			return nil
		}

		if time.Now().After(deadline) {
			slog.Warn("Elevation source not ready, continuing in degraded mode", "timeout", timeout, "error", err)
			o.setDegraded()
			return nil
		}

		select {
		case <-time.After(500 * time.Millisecond):
		case <-ctx.Done():
			return model.ErrCancelled
		}
	}
}

// ClearCache invalidates all tiles, in memory and in the persistent store.
// Queries started before the clear never leak a stale tile across the
// boundary: the generation counter prevents their insertion.
func (o *Oracle) ClearCache(ctx context.Context) {
	o.mu.Lock()
	o.tiles = make(map[TileKey]*Tile)
	o.gen++
	o.mu.Unlock()

	if err := o.store.Clear(ctx); err != nil {
		slog.Error("Failed to clear persistent tile store", "error", err)
	}
}

// Degraded reports whether any lookup has fallen back to default elevation.
func (o *Oracle) Degraded() bool {
	o.degradedMu.Lock()
	defer o.degradedMu.Unlock()
	return o.degraded
}

func (o *Oracle) setDegraded() {
	o.degradedMu.Lock()
	o.degraded = true
	o.degradedMu.Unlock()
}

// tile returns the decoded tile for key, fetching and decoding on miss.
func (o *Oracle) tile(ctx context.Context, key TileKey) (*Tile, error) {
	for {
		o.mu.RLock()
		tile, ok := o.tiles[key]
		gen := o.gen
		o.mu.RUnlock()
		if ok {
			return tile, nil
		}

		data, err := o.fetchRaw(ctx, key)
		if err != nil {
			return nil, err
		}

		tile, err = decodeTile(key, data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrElevationUnavailable, err)
		}
		if o.cfg.TileSize > 0 && tile.size != o.cfg.TileSize {
			return nil, fmt.Errorf("%w: tile %s: raster is %dpx, source is configured for %dpx",
				model.ErrElevationUnavailable, key, tile.size, o.cfg.TileSize)
		}

		o.mu.Lock()
		if o.gen != gen {
			// Cache was cleared while we fetched; the raw bytes may predate
			// the clear. Retry from scratch.
			o.mu.Unlock()
			continue
		}
		if existing, ok := o.tiles[key]; ok {
			// Lost a fetch race; tiles are immutable, keep the first one.
			tile = existing
		} else {
			o.tiles[key] = tile
		}
		o.mu.Unlock()
		return tile, nil
	}
}

func (o *Oracle) fetchRaw(ctx context.Context, key TileKey) ([]byte, error) {
	cacheKey := "tile:" + key.String()
	if data, hit := o.store.GetCache(ctx, cacheKey); hit {
		o.tracker.TrackCacheHit(tileStoreProvider)
		return data, nil
	}
	o.tracker.TrackCacheMiss(tileStoreProvider)

	data, err := o.fetcher.FetchTile(ctx, key)
	if err != nil {
		return nil, err
	}

	if err := o.store.SetCache(ctx, cacheKey, data); err != nil {
		slog.Error("Failed to persist tile", "tile", key, "error", err)
	}
	return data, nil
}

// httpFetcher fetches tiles from the configured primary URL template, falling
// back to the secondary when the primary fails or is backed off.
type httpFetcher struct {
	client  *request.Client
	cfg     config.TerrainConfig
	backoff *request.ProviderBackoff
}

func (f *httpFetcher) FetchTile(ctx context.Context, key TileKey) ([]byte, error) {
	templates := []string{f.cfg.TileURL, f.cfg.FallbackTileURL}

	var lastErr error
	for i, tmpl := range templates {
		if tmpl == "" {
			continue
		}
		provider := fmt.Sprintf("source-%d", i)
		if !f.backoff.Allowed(provider) {
			continue
		}

		url := expandTileURL(tmpl, key, f.cfg.APIKey)
		data, err := f.client.Get(ctx, url, "")
		if err != nil {
			lastErr = err
			f.backoff.RecordFailure(provider)
			slog.Debug("Tile fetch failed", "tile", key, "source", i, "error", err)
			continue
		}

		f.backoff.RecordSuccess(provider)
		return data, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("all sources backed off")
	}
	return nil, fmt.Errorf("%w: tile %s: %v", model.ErrElevationUnavailable, key, lastErr)
}

func expandTileURL(tmpl string, key TileKey, apiKey string) string {
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(key.Z),
		"{x}", strconv.Itoa(key.X),
		"{y}", strconv.Itoa(key.Y),
		"{key}", apiKey,
	)
	return r.Replace(tmpl)
}
