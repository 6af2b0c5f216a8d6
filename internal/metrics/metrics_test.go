package metrics

import "testing"

func TestRecordLoadCounters(t *testing.T) {
	m := &Metrics{}
	m.MinLoadMs.Store(int64(^uint64(0) >> 1))

	m.RecordLoad(10, false, false, true)
	m.RecordLoad(30, true, false, true)
	m.RecordLoad(20, false, false, false)

	s := m.Snapshot()
	if s.Loads != 3 {
		t.Fatalf("loads: %d", s.Loads)
	}
	if s.LoadsFromCache != 1 {
		t.Fatalf("from cache: %d", s.LoadsFromCache)
	}
	if s.LoadErrors != 1 {
		t.Fatalf("errors: %d", s.LoadErrors)
	}
	if s.AvgLoadMs != 20 {
		t.Fatalf("avg: %f", s.AvgLoadMs)
	}
	if got := m.MinLoadMs.Load(); got != 10 {
		t.Fatalf("min: %d", got)
	}
	if got := m.MaxLoadMs.Load(); got != 30 {
		t.Fatalf("max: %d", got)
	}
}

func TestRecordPreloadSeparateFromLoads(t *testing.T) {
	m := &Metrics{}

	m.RecordLoad(5, false, true, true)
	m.RecordLoad(5, false, true, false)

	s := m.Snapshot()
	if s.Loads != 0 {
		t.Fatalf("preloads must not count as loads: %d", s.Loads)
	}
	if s.Preloads != 2 || s.PreloadFailures != 1 {
		t.Fatalf("preload counters: %d/%d", s.Preloads, s.PreloadFailures)
	}
}

func TestCacheCounters(t *testing.T) {
	m := &Metrics{}

	m.RecordCacheHit()
	m.RecordCacheMiss()
	m.RecordEvictions(3)
	m.RecordTimeout()
	m.RecordCancelled()

	s := m.Snapshot()
	if s.CacheHits != 1 || s.CacheMisses != 1 || s.CacheEvictions != 3 {
		t.Fatalf("cache counters: %+v", s)
	}
	if s.Timeouts != 1 || s.Cancelled != 1 {
		t.Fatalf("timeout/cancel counters: %+v", s)
	}
}
