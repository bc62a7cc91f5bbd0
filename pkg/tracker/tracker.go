package tracker

import (
	"sync"
	"sync/atomic"
)

// Tracker tracks render statistics per provider.
type Tracker struct {
	mu    sync.RWMutex
	stats map[string]*ProviderStats
}

// ProviderStats holds metrics for a specific provider.
// Fields are accessed atomically.
type ProviderStats struct {
	Renders       int64
	RenderFailure int64
	Retries       int64
	Dedup         int64
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

// TrackRender increments the successful render counter.
func (t *Tracker) TrackRender(provider string) {
	atomic.AddInt64(&t.getStats(provider).Renders, 1)
}

func (t *Tracker) TrackRenderFailure(provider string) {
	atomic.AddInt64(&t.getStats(provider).RenderFailure, 1)
}

func (t *Tracker) TrackRetry(provider string) {
	atomic.AddInt64(&t.getStats(provider).Retries, 1)
}

func (t *Tracker) TrackDedup(provider string) {
	atomic.AddInt64(&t.getStats(provider).Dedup, 1)
}

// Snapshot returns a copy of the current stats.
func (t *Tracker) Snapshot() map[string]ProviderStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[string]ProviderStats)
	for k, v := range t.stats {
		result[k] = ProviderStats{
			Renders:       atomic.LoadInt64(&v.Renders),
			RenderFailure: atomic.LoadInt64(&v.RenderFailure),
			Retries:       atomic.LoadInt64(&v.Retries),
			Dedup:         atomic.LoadInt64(&v.Dedup),
		}
	}
	return result
}
