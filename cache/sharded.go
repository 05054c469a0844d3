// Package cache provides a sharded LRU cache safe for concurrent use.
//
// wgcore keeps compiled shader modules in one so a WGSL source submitted to
// several devices is parsed, lowered and validated once.
package cache

import (
	"container/list"
	"hash/fnv"
	"sync"
	"sync/atomic"
)

const (
	// shardCount must be a power of two.
	shardCount = 16
	shardMask  = shardCount - 1

	// DefaultCapacity is the per-shard capacity used when none is given.
	DefaultCapacity = 64
)

// Hasher picks the shard of a key.
type Hasher[K any] func(K) uint64

// StringHasher is FNV-1a over s.
func StringHasher(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Len       int    `json:"len" yaml:"len"`
	Capacity  int    `json:"capacity" yaml:"capacity"`
	Hits      uint64 `json:"hits" yaml:"hits"`
	Misses    uint64 `json:"misses" yaml:"misses"`
	Evictions uint64 `json:"evictions" yaml:"evictions"`
}

// HitRate is Hits over all lookups, or 0 before the first lookup.
func (s Stats) HitRate() float64 {
	if total := s.Hits + s.Misses; total > 0 {
		return float64(s.Hits) / float64(total)
	}
	return 0
}

// Sharded is an LRU cache split into shards with a lock each. Each shard
// evicts its least recently used entry once it holds capacity entries.
type Sharded[K comparable, V any] struct {
	shards   [shardCount]shard[K, V]
	hasher   Hasher[K]
	capacity int

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

type shard[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*list.Element
	lru     list.List
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

// NewSharded returns a cache holding up to capacity entries per shard.
// A capacity <= 0 means DefaultCapacity.
func NewSharded[K comparable, V any](capacity int, hasher Hasher[K]) *Sharded[K, V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Sharded[K, V]{hasher: hasher, capacity: capacity}
	for i := range c.shards {
		c.shards[i].entries = make(map[K]*list.Element)
	}
	return c
}

func (c *Sharded[K, V]) shard(key K) *shard[K, V] {
	return &c.shards[c.hasher(key)&shardMask]
}

// Get returns the value cached under key and marks it recently used.
func (c *Sharded[K, V]) Get(key K) (V, bool) {
	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.entries[key]; ok {
		s.lru.MoveToFront(el)
		c.hits.Add(1)
		return el.Value.(*entry[K, V]).value, true
	}
	c.misses.Add(1)
	var zero V
	return zero, false
}

// GetOrCreate returns the value cached under key, calling create and
// caching its result on a miss. create runs with the shard locked, so
// concurrent callers for one key create it once.
func (c *Sharded[K, V]) GetOrCreate(key K, create func() V) V {
	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.entries[key]; ok {
		s.lru.MoveToFront(el)
		c.hits.Add(1)
		return el.Value.(*entry[K, V]).value
	}
	c.misses.Add(1)
	v := create()
	c.insert(s, key, v)
	return v
}

// Set caches value under key.
func (c *Sharded[K, V]) Set(key K, value V) {
	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.entries[key]; ok {
		el.Value.(*entry[K, V]).value = value
		s.lru.MoveToFront(el)
		return
	}
	c.insert(s, key, value)
}

// insert adds a new key to s, evicting from the back first. s must be
// locked.
func (c *Sharded[K, V]) insert(s *shard[K, V], key K, value V) {
	for s.lru.Len() >= c.capacity {
		oldest := s.lru.Back()
		s.lru.Remove(oldest)
		delete(s.entries, oldest.Value.(*entry[K, V]).key)
		c.evictions.Add(1)
	}
	s.entries[key] = s.lru.PushFront(&entry[K, V]{key: key, value: value})
}

// Delete removes key and reports whether it was cached.
func (c *Sharded[K, V]) Delete(key K) bool {
	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.entries[key]
	if !ok {
		return false
	}
	s.lru.Remove(el)
	delete(s.entries, key)
	return true
}

// Clear drops every entry. Counters are kept.
func (c *Sharded[K, V]) Clear() {
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		s.entries = make(map[K]*list.Element)
		s.lru.Init()
		s.mu.Unlock()
	}
}

// Len is the number of cached entries.
func (c *Sharded[K, V]) Len() int {
	n := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

// Stats snapshots the counters. Capacity is the total over all shards.
func (c *Sharded[K, V]) Stats() Stats {
	return Stats{
		Len:       c.Len(),
		Capacity:  c.capacity * shardCount,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
