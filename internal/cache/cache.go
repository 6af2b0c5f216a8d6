// Package cache implements the in-memory LRU+TTL store for remote sandbox
// file content. Entries are keyed by (session, path), expire lazily on
// access, and are evicted in small deferred batches so no caller ever pays
// for an unbounded eviction sweep.
package cache

import (
	"container/list"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when a key does not exist or has expired.
var ErrNotFound = errors.New("cache: key not found")

const (
	// DefaultMaxItems and DefaultMaxTotalBytes are the soft limits beyond
	// which deferred eviction kicks in.
	DefaultMaxItems      = 100
	DefaultMaxTotalBytes = 50 << 20 // 50 MiB

	// evictBatch caps evictions per scheduling tick; evictRetick is the
	// delay before another tick when the cache is still over a limit.
	evictBatch  = 5
	evictRetick = 25 * time.Millisecond
)

type lruNode struct {
	key   Key
	entry Entry
}

// FileCache is a bounded, expiring, LRU-ordered file content store.
// All operations are safe for concurrent use.
type FileCache struct {
	mu        sync.Mutex
	entries   map[Key]*list.Element // element value is *lruNode
	order     *list.List            // front = most recently used
	totalSize int64

	hits      int64
	misses    int64
	evictions int64
	expired   int64

	maxItems      int
	maxTotalBytes int64

	evictPending bool

	// now and afterFunc are injectable for deterministic tests.
	now       func() time.Time
	afterFunc func(time.Duration, func()) *time.Timer

	onEvict func(n int)
}

// Option configures a FileCache.
type Option func(*FileCache)

// WithMaxItems overrides the item count limit.
func WithMaxItems(n int) Option {
	return func(c *FileCache) { c.maxItems = n }
}

// WithMaxTotalBytes overrides the total size limit.
func WithMaxTotalBytes(n int64) Option {
	return func(c *FileCache) { c.maxTotalBytes = n }
}

// WithClock injects the time source used for timestamps and expiry.
func WithClock(now func() time.Time) Option {
	return func(c *FileCache) { c.now = now }
}

// WithAfterFunc injects the timer used to schedule eviction ticks.
func WithAfterFunc(f func(time.Duration, func()) *time.Timer) Option {
	return func(c *FileCache) { c.afterFunc = f }
}

// WithEvictionHook registers a callback invoked with the number of entries
// removed by each eviction tick. The hook must not call back into the cache.
func WithEvictionHook(f func(n int)) Option {
	return func(c *FileCache) { c.onEvict = f }
}

// New creates a FileCache with the given options.
func New(opts ...Option) *FileCache {
	c := &FileCache{
		entries:       make(map[Key]*list.Element),
		order:         list.New(),
		maxItems:      DefaultMaxItems,
		maxTotalBytes: DefaultMaxTotalBytes,
		now:           time.Now,
		afterFunc:     time.AfterFunc,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var (
	defaultCache *FileCache
	defaultOnce  sync.Once
)

// Default returns the process-wide cache instance.
func Default() *FileCache {
	defaultOnce.Do(func() {
		defaultCache = New()
	})
	return defaultCache
}

// Get returns a copy of the entry for (sessionID, path), refreshing its LRU
// position and last-access time. Expired entries are removed on the spot and
// reported as misses.
func (c *FileCache) Get(sessionID, path string) (*Entry, error) {
	key := Key{SessionID: sessionID, Path: path}

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, ErrNotFound
	}
	node := el.Value.(*lruNode)
	if node.entry.expired(c.now()) {
		c.removeLocked(key, el)
		c.misses++
		c.expired++
		return nil, ErrNotFound
	}

	node.entry.LastAccessed = c.now()
	c.order.MoveToFront(el)
	c.hits++

	cp := node.entry
	return &cp, nil
}

// Set stores content for (sessionID, path), replacing any previous entry.
// The TTL is derived from size and path unless an override is given.
// Eviction never runs inline; a Set that pushes the cache over a limit
// guarantees a pending eviction tick instead.
func (c *FileCache) Set(sessionID, path, content, lang string, ttlOverride ...time.Duration) {
	key := Key{SessionID: sessionID, Path: path}
	size := approxSize(content)

	ttl := ttlFor(path, size)
	if len(ttlOverride) > 0 && ttlOverride[0] > 0 {
		ttl = ttlOverride[0]
	}

	now := c.now()
	entry := Entry{
		Content:      content,
		Language:     lang,
		SizeBytes:    size,
		LastModified: now,
		LastAccessed: now,
		TTL:          ttl,
	}

	c.mu.Lock()
	if el, ok := c.entries[key]; ok {
		node := el.Value.(*lruNode)
		c.totalSize -= node.entry.SizeBytes
		node.entry = entry
		c.order.MoveToFront(el)
	} else {
		el := c.order.PushFront(&lruNode{key: key, entry: entry})
		c.entries[key] = el
	}
	c.totalSize += size
	c.maybeScheduleEvictionLocked()
	c.mu.Unlock()
}

// Delete removes the entry if present and reports whether it did.
func (c *FileCache) Delete(sessionID, path string) bool {
	key := Key{SessionID: sessionID, Path: path}

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeLocked(key, el)
	return true
}

// Has reports whether Get would return an entry, applying the same lazy
// expiry (an expired entry is removed and reported absent). Unlike Get it
// does not touch LRU order or the hit/miss counters.
func (c *FileCache) Has(sessionID, path string) bool {
	key := Key{SessionID: sessionID, Path: path}

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return false
	}
	node := el.Value.(*lruNode)
	if node.entry.expired(c.now()) {
		c.removeLocked(key, el)
		c.expired++
		return false
	}
	return true
}

// InvalidateSession removes every entry belonging to sessionID and returns
// the number removed. Called when the sandbox session changes identity.
func (c *FileCache) InvalidateSession(sessionID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, el := range c.entries {
		if key.SessionID == sessionID {
			c.removeLocked(key, el)
			removed++
		}
	}
	return removed
}

// Clear drops everything and resets all counters.
func (c *FileCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[Key]*list.Element)
	c.order.Init()
	c.totalSize = 0
	c.hits = 0
	c.misses = 0
	c.evictions = 0
	c.expired = 0
}

// removeLocked deletes an entry and keeps the size/count bookkeeping in step
// with the map mutation. Caller holds c.mu.
func (c *FileCache) removeLocked(key Key, el *list.Element) {
	node := el.Value.(*lruNode)
	c.order.Remove(el)
	delete(c.entries, key)
	c.totalSize -= node.entry.SizeBytes
}

// overLimitLocked reports whether either soft limit is exceeded.
func (c *FileCache) overLimitLocked() bool {
	return len(c.entries) > c.maxItems || c.totalSize > c.maxTotalBytes
}

// maybeScheduleEvictionLocked guarantees at least one eviction tick is
// pending whenever the cache is over a limit. Caller holds c.mu.
func (c *FileCache) maybeScheduleEvictionLocked() {
	if c.evictPending || !c.overLimitLocked() {
		return
	}
	c.evictPending = true
	c.afterFunc(0, c.evictTick)
}

// evictTick removes up to evictBatch least-recently-used entries. If the
// cache is still over a limit afterwards it reschedules itself rather than
// looping, trading brief over-limit periods for bounded latency per tick.
func (c *FileCache) evictTick() {
	c.mu.Lock()
	c.evictPending = false

	evicted := 0
	for evicted < evictBatch && c.overLimitLocked() {
		back := c.order.Back()
		if back == nil {
			break
		}
		node := back.Value.(*lruNode)
		c.removeLocked(node.key, back)
		c.evictions++
		evicted++
	}

	if c.overLimitLocked() {
		c.evictPending = true
		c.afterFunc(evictRetick, c.evictTick)
	}
	hook := c.onEvict
	c.mu.Unlock()

	if evicted > 0 && hook != nil {
		hook(evicted)
	}
}
