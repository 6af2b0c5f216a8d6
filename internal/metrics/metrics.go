// Package metrics collects load-pipeline counters. The atomic struct is
// always live; the Prometheus registry in prometheus.go mirrors it when the
// daemon enables the /metrics endpoint.
package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics collects quasar load and cache counters.
type Metrics struct {
	CacheHits      atomic.Int64
	CacheMisses    atomic.Int64
	CacheEvictions atomic.Int64

	Loads           atomic.Int64
	LoadsFromCache  atomic.Int64
	LoadErrors      atomic.Int64
	Timeouts        atomic.Int64
	Cancelled       atomic.Int64
	Preloads        atomic.Int64
	PreloadFailures atomic.Int64

	TotalLoadMs atomic.Int64
	MinLoadMs   atomic.Int64
	MaxLoadMs   atomic.Int64

	startTime time.Time
}

var global = &Metrics{startTime: time.Now()}

func init() {
	global.MinLoadMs.Store(int64(^uint64(0) >> 1)) // max int64
}

// Global returns the global metrics instance.
func Global() *Metrics {
	return global
}

// RecordCacheHit records a cache hit.
func (m *Metrics) RecordCacheHit() {
	m.CacheHits.Add(1)
	promCacheHit()
}

// RecordCacheMiss records a cache miss.
func (m *Metrics) RecordCacheMiss() {
	m.CacheMisses.Add(1)
	promCacheMiss()
}

// RecordEvictions records n entries evicted by a cache tick.
func (m *Metrics) RecordEvictions(n int) {
	m.CacheEvictions.Add(int64(n))
	promEvictions(n)
}

// RecordLoad records a settled load.
func (m *Metrics) RecordLoad(durationMs int64, fromCache, preload, success bool) {
	if preload {
		m.Preloads.Add(1)
		if !success {
			m.PreloadFailures.Add(1)
		}
		promPreload(success)
		return
	}

	m.Loads.Add(1)
	if fromCache {
		m.LoadsFromCache.Add(1)
	}
	if !success {
		m.LoadErrors.Add(1)
	}

	m.TotalLoadMs.Add(durationMs)
	updateMin(&m.MinLoadMs, durationMs)
	updateMax(&m.MaxLoadMs, durationMs)
	promLoad(durationMs, fromCache, success)
}

// RecordTimeout records a load that hit the fetch deadline.
func (m *Metrics) RecordTimeout() {
	m.Timeouts.Add(1)
	promTimeout()
}

// RecordCancelled records a superseded load whose result was discarded.
func (m *Metrics) RecordCancelled() {
	m.Cancelled.Add(1)
}

// Snapshot is a point-in-time copy of the counters for display.
type Snapshot struct {
	CacheHits       int64   `json:"cache_hits"`
	CacheMisses     int64   `json:"cache_misses"`
	CacheEvictions  int64   `json:"cache_evictions"`
	Loads           int64   `json:"loads"`
	LoadsFromCache  int64   `json:"loads_from_cache"`
	LoadErrors      int64   `json:"load_errors"`
	Timeouts        int64   `json:"timeouts"`
	Cancelled       int64   `json:"cancelled"`
	Preloads        int64   `json:"preloads"`
	PreloadFailures int64   `json:"preload_failures"`
	AvgLoadMs       float64 `json:"avg_load_ms"`
	UptimeSeconds   int64   `json:"uptime_seconds"`
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		CacheHits:       m.CacheHits.Load(),
		CacheMisses:     m.CacheMisses.Load(),
		CacheEvictions:  m.CacheEvictions.Load(),
		Loads:           m.Loads.Load(),
		LoadsFromCache:  m.LoadsFromCache.Load(),
		LoadErrors:      m.LoadErrors.Load(),
		Timeouts:        m.Timeouts.Load(),
		Cancelled:       m.Cancelled.Load(),
		Preloads:        m.Preloads.Load(),
		PreloadFailures: m.PreloadFailures.Load(),
		UptimeSeconds:   int64(time.Since(m.startTime).Seconds()),
	}
	if s.Loads > 0 {
		s.AvgLoadMs = float64(m.TotalLoadMs.Load()) / float64(s.Loads)
	}
	return s
}

func updateMin(target *atomic.Int64, value int64) {
	for {
		cur := target.Load()
		if value >= cur || target.CompareAndSwap(cur, value) {
			return
		}
	}
}

func updateMax(target *atomic.Int64, value int64) {
	for {
		cur := target.Load()
		if value <= cur || target.CompareAndSwap(cur, value) {
			return
		}
	}
}
