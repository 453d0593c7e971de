// Package shadercache provides an in-memory store for compiled shader
// programs, usable as an rhi.PersistentShaderCache.
//
// MemoryCache is a sharded LRU keyed by the strings rhi.ShaderCacheKey
// produces. Each of the 16 shards has its own lock, so backends compiling on
// several goroutines rarely contend.
//
//	dev, err := rhi.NewDevice(backend,
//		rhi.WithPersistentShaderCache(shadercache.NewMemoryCache(0)),
//	)
package shadercache

import (
	"hash/fnv"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gogpu/rhi"
)

const (
	// ShardCount is the number of shards. Must be a power of 2.
	ShardCount = 16

	// DefaultCapacity is the default maximum entries per shard.
	DefaultCapacity = 64

	shardMask = ShardCount - 1
)

var _ rhi.PersistentShaderCache = (*MemoryCache)(nil)

// Stats is a snapshot of cache statistics.
type Stats struct {
	Len           int
	Bytes         int64
	Capacity      int // per shard
	TotalCapacity int
	Hits          uint64
	Misses        uint64
	HitRate       float64
	Evictions     uint64
}

// MemoryCache is a thread-safe, sharded LRU store of compiled program blobs.
type MemoryCache struct {
	shards   [ShardCount]*shard
	capacity int

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
	bytes     atomic.Int64
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
	lru     *lruList
}

type entry struct {
	blob []byte
	node *lruNode
}

// NewMemoryCache creates a cache holding up to capacity blobs per shard.
// If capacity <= 0, DefaultCapacity is used.
func NewMemoryCache(capacity int) *MemoryCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &MemoryCache{capacity: capacity}
	for i := range c.shards {
		c.shards[i] = &shard{
			entries: make(map[string]*entry),
			lru:     newLRUList(),
		}
	}
	return c
}

func hashKey(key string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key)) // fnv.Write never returns an error
	return h.Sum64()
}

func (c *MemoryCache) shardFor(key string) *shard {
	return c.shards[hashKey(key)&shardMask]
}

// Get returns the blob stored under key and marks it recently used.
// The returned slice must not be modified.
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	s := c.shardFor(key)

	s.mu.Lock()
	e, ok := s.entries[key]
	if ok {
		s.lru.MoveToFront(e.node)
	}
	s.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return e.blob, true
}

// Put stores a copy of blob under key, evicting the least recently used
// entries of the shard when it is full.
func (c *MemoryCache) Put(key string, blob []byte) {
	blob = slices.Clone(blob)
	s := c.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		c.bytes.Add(int64(len(blob) - len(e.blob)))
		e.blob = blob
		s.lru.MoveToFront(e.node)
		return
	}

	for s.lru.Len() >= c.capacity {
		oldest, ok := s.lru.RemoveOldest()
		if !ok {
			break
		}
		c.bytes.Add(-int64(len(s.entries[oldest].blob)))
		delete(s.entries, oldest)
		c.evictions.Add(1)
	}

	s.entries[key] = &entry{blob: blob, node: s.lru.PushFront(key)}
	c.bytes.Add(int64(len(blob)))
}

// Delete removes key. It reports whether the key was present.
func (c *MemoryCache) Delete(key string) bool {
	s := c.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false
	}
	s.lru.Remove(e.node)
	delete(s.entries, key)
	c.bytes.Add(-int64(len(e.blob)))
	return true
}

// Clear removes all entries. Statistics counters are kept.
func (c *MemoryCache) Clear() {
	for _, s := range c.shards {
		s.mu.Lock()
		for _, e := range s.entries {
			c.bytes.Add(-int64(len(e.blob)))
		}
		s.entries = make(map[string]*entry)
		s.lru.Clear()
		s.mu.Unlock()
	}
}

// Len returns the total number of entries across all shards.
func (c *MemoryCache) Len() int {
	total := 0
	for _, s := range c.shards {
		s.mu.Lock()
		total += len(s.entries)
		s.mu.Unlock()
	}
	return total
}

// Stats returns current cache statistics.
func (c *MemoryCache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return Stats{
		Len:           c.Len(),
		Bytes:         c.bytes.Load(),
		Capacity:      c.capacity,
		TotalCapacity: c.capacity * ShardCount,
		Hits:          hits,
		Misses:        misses,
		HitRate:       hitRate,
		Evictions:     c.evictions.Load(),
	}
}

// ResetStats resets the hit, miss and eviction counters.
func (c *MemoryCache) ResetStats() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.evictions.Store(0)
}
