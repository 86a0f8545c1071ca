// Package cache provides the in-memory TTL/LRU store shared by the
// retrieval engine and the relational query path, plus an advisory
// access-pattern optimizer.
package cache

import (
	"container/heap"
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DefaultTTL is applied when Set is called with a non-positive TTL.
const DefaultTTL = 5 * time.Minute

// DefaultSweepInterval is how often the background sweep removes expired
// entries.
const DefaultSweepInterval = 60 * time.Second

// entry is a single cached value with its bookkeeping.
type entry struct {
	key          string
	value        any
	expiry       time.Time
	hits         int64
	created      time.Time
	lastAccessed time.Time
}

// Cache is a bounded TTL cache with LRU eviction under capacity pressure.
// Safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	capacity int

	hits   int64
	misses int64

	logger *slog.Logger
	now    func() time.Time
}

// Config configures a Cache.
type Config struct {
	Capacity int // Maximum entries before LRU eviction (default: 1000)
}

// New creates a cache.
func New(cfg Config, logger *slog.Logger) *Cache {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		entries:  make(map[string]*entry),
		capacity: cfg.Capacity,
		logger:   logger,
		now:      time.Now,
	}
}

// Get returns the value for key. An entry past its expiry is removed and
// reported as a miss. A live hit increments the hit counter and refreshes
// the last-accessed time.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if c.now().After(e.expiry) {
		delete(c.entries, key)
		c.misses++
		return nil, false
	}

	e.hits++
	e.lastAccessed = c.now()
	c.hits++
	return e.value, true
}

// Set stores value under key with the given TTL (DefaultTTL when ttl <= 0).
// If the cache is at capacity and key is new, the least-recently-accessed
// entry is evicted first.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expiry = now.Add(ttl)
		e.lastAccessed = now
		return
	}

	if len(c.entries) >= c.capacity {
		c.evictOldestLocked()
	}

	c.entries[key] = &entry{
		key:          key,
		value:        value,
		expiry:       now.Add(ttl),
		created:      now,
		lastAccessed: now,
	}
}

// Has reports whether key exists and is not expired, without counting a hit.
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	if c.now().After(e.expiry) {
		delete(c.entries, key)
		return false
	}
	return true
}

// Delete removes key. Returns true if the key existed.
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// Len returns the current number of entries, including not-yet-swept
// expired ones.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOldestLocked removes the entry with the oldest lastAccessed time.
// Caller must hold c.mu.
func (c *Cache) evictOldestLocked() {
	var oldest *entry
	for _, e := range c.entries {
		if oldest == nil || e.lastAccessed.Before(oldest.lastAccessed) {
			oldest = e
		}
	}
	if oldest != nil {
		delete(c.entries, oldest.key)
		c.logger.Debug("evicted cache entry", "key", oldest.key, "hits", oldest.hits)
	}
}

// Run blocks until ctx is canceled, sweeping expired entries on each tick.
// Callers must track the goroutine with a WaitGroup or errgroup.
func (c *Cache) Run(ctx context.Context) {
	c.RunEvery(ctx, DefaultSweepInterval)
}

// RunEvery is Run with a custom interval, used by tests.
func (c *Cache) RunEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.logger.Debug("swept expired cache entries", "count", n)
			}
		}
	}
}

// Sweep removes all expired entries and returns how many were removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if now.After(e.expiry) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// EntryStats describes one cached entry for observability.
type EntryStats struct {
	Key          string    `json:"key"`
	Hits         int64     `json:"hits"`
	Created      time.Time `json:"created"`
	LastAccessed time.Time `json:"lastAccessed"`
}

// Stats is an aggregate snapshot of the cache.
type Stats struct {
	Size       int          `json:"size"`
	Capacity   int          `json:"capacity"`
	Hits       int64        `json:"hits"`
	Misses     int64        `json:"misses"`
	HitRate    float64      `json:"hitRate"`
	TopEntries []EntryStats `json:"topEntries"`
}

// topEntriesLimit bounds the per-snapshot hot-key list.
const topEntriesLimit = 10

// Stats returns a snapshot: size, approximate hit rate, and the top entries
// by hit count.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Size:     len(c.entries),
		Capacity: c.capacity,
		Hits:     c.hits,
		Misses:   c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}

	h := &entryHeap{}
	heap.Init(h)
	for _, e := range c.entries {
		heap.Push(h, e)
		if h.Len() > topEntriesLimit {
			heap.Pop(h)
		}
	}
	top := make([]EntryStats, 0, h.Len())
	for _, e := range *h {
		top = append(top, EntryStats{
			Key:          e.key,
			Hits:         e.hits,
			Created:      e.created,
			LastAccessed: e.lastAccessed,
		})
	}
	sort.Slice(top, func(i, j int) bool { return top[i].Hits > top[j].Hits })
	s.TopEntries = top
	return s
}

// entryHeap is a min-heap by hits, used to keep the top N without sorting
// the whole map.
type entryHeap []*entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].hits < h[j].hits }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x any)         { *h = append(*h, x.(*entry)) }
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
