// Package routecache is a fixed-capacity, sharded cache from a request
// fingerprint (path[?query]) to a routing decision. It exists to keep the
// Rule Index's regex walk off the hot path for repeated requests; see
// internal/ruleindex for the thing it caches the output of.
package routecache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Entry is a cached routing decision.
type Entry struct {
	Target    string
	Backend   string
	insertedAt int64 // unix nano, used for approximate-LRU eviction
}

type shard struct {
	mu       sync.RWMutex
	entries  map[string]Entry
	capacity int
}

// Cache is a sharded, bounded map. Shard count is fixed at construction and
// must be a power of two so key hashing can mask instead of mod.
type Cache struct {
	shards []*shard
	mask   uint64

	hits   atomic.Uint64
	misses atomic.Uint64
}

// DefaultShardCount matches the teacher's recommendation of 16 shards.
const DefaultShardCount = 16

// New creates a Cache with the given total capacity split evenly across
// shardCount shards (rounded up to the next power of two).
func New(totalCapacity, shardCount int) *Cache {
	n := nextPowerOfTwo(shardCount)
	perShard := totalCapacity / n
	if perShard < 1 {
		perShard = 1
	}
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{entries: make(map[string]Entry, perShard), capacity: perShard}
	}
	return &Cache{shards: shards, mask: uint64(n - 1)}
}

func nextPowerOfTwo(n int) int {
	if n < 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func (c *Cache) shardFor(key string) *shard {
	h := xxhash.Sum64String(key)
	return c.shards[h&c.mask]
}

// Get looks up key (the path[?query] fingerprint) and records a hit or miss.
func (c *Cache) Get(key string) (Entry, bool) {
	sh := c.shardFor(key)
	sh.mu.RLock()
	e, ok := sh.entries[key]
	sh.mu.RUnlock()
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return e, ok
}

// Put inserts a decision for key. If the owning shard is at capacity, the
// oldest (by insertion time) entry is evicted first. Misses are never
// cached by callers (see internal/ruleindex usage in the connection
// handler) — Put is only called on a confirmed rule match, so transient
// fallback templates never poison the cache.
func (c *Cache) Put(key string, e Entry) {
	e.insertedAt = time.Now().UnixNano()
	sh := c.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, exists := sh.entries[key]; !exists && len(sh.entries) >= sh.capacity {
		c.evictOldestLocked(sh)
	}
	sh.entries[key] = e
}

func (c *Cache) evictOldestLocked(sh *shard) {
	var oldestKey string
	var oldestAt int64
	first := true
	for k, v := range sh.entries {
		if first || v.insertedAt < oldestAt {
			oldestKey, oldestAt = k, v.insertedAt
			first = false
		}
	}
	if !first {
		delete(sh.entries, oldestKey)
	}
}

// Stats reports cumulative hit/miss counters.
type Stats struct {
	Hits   uint64
	Misses uint64
}

func (c *Cache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Clear empties every shard. Called whenever the Rule Index is rebuilt,
// since a cached decision is only valid against the index generation that
// produced it.
func (c *Cache) Clear() {
	for _, sh := range c.shards {
		sh.mu.Lock()
		sh.entries = make(map[string]Entry, sh.capacity)
		sh.mu.Unlock()
	}
}

// Key builds the cache fingerprint from a path and optional query string.
func Key(path, query string) string {
	if query == "" {
		return path
	}
	return path + "?" + query
}
