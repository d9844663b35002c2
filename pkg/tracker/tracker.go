package tracker

import (
	"sync"
	"sync/atomic"
)

// Tracker tracks usage statistics per tile provider.
type Tracker struct {
	mu    sync.RWMutex
	stats map[string]*ProviderStats
}

// ProviderStats holds metrics for a specific provider.
// Fields are accessed atomically.
type ProviderStats struct {
	CacheHits     int64
	CacheMisses   int64
	FetchSuccess  int64
	FetchFailures int64
}

// New creates a new Tracker.
func New() *Tracker {
	return &Tracker{
		stats: make(map[string]*ProviderStats),
	}
}

// getStats returns the stats object for a provider, creating it if needed.
func (t *Tracker) getStats(provider string) *ProviderStats {
	t.mu.RLock()
	s, ok := t.stats[provider]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Double check
	if s, ok = t.stats[provider]; ok {
		return s
	}
	s = &ProviderStats{}
	t.stats[provider] = s
	return s
}

// TrackCacheHit increments the cache hit counter.
func (t *Tracker) TrackCacheHit(provider string) {
	atomic.AddInt64(&t.getStats(provider).CacheHits, 1)
}

// TrackCacheMiss increments the cache miss counter.
func (t *Tracker) TrackCacheMiss(provider string) {
	atomic.AddInt64(&t.getStats(provider).CacheMisses, 1)
}

// TrackFetchSuccess increments the successful fetch counter.
func (t *Tracker) TrackFetchSuccess(provider string) {
	atomic.AddInt64(&t.getStats(provider).FetchSuccess, 1)
}

// TrackFetchFailure increments the failed fetch counter.
func (t *Tracker) TrackFetchFailure(provider string) {
	atomic.AddInt64(&t.getStats(provider).FetchFailures, 1)
}

// Snapshot returns a copy of the current statistics.
func (t *Tracker) Snapshot() map[string]ProviderStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]ProviderStats, len(t.stats))
	for provider, s := range t.stats {
		out[provider] = ProviderStats{
			CacheHits:     atomic.LoadInt64(&s.CacheHits),
			CacheMisses:   atomic.LoadInt64(&s.CacheMisses),
			FetchSuccess:  atomic.LoadInt64(&s.FetchSuccess),
			FetchFailures: atomic.LoadInt64(&s.FetchFailures),
		}
	}
	return out
}
