package cache

import (
	"strconv"
	"sync"
	"testing"
)

// sameShard hashes every key to shard zero so eviction order is
// observable.
func sameShard(string) uint64 { return 0 }

func TestShardedGetSet(t *testing.T) {
	c := NewSharded[string, int](8, StringHasher)
	c.Set("a", 1)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v", v, ok)
	}
	c.Set("a", 2)
	if v, _ := c.Get("a"); v != 2 {
		t.Errorf("Get(a) after update = %d", v)
	}
	if _, ok := c.Get("b"); ok {
		t.Error("Get(b) found a missing key")
	}
	s := c.Stats()
	if s.Hits != 2 || s.Misses != 1 || s.Len != 1 {
		t.Errorf("Stats() = %+v", s)
	}
	if s.Capacity != 8*shardCount {
		t.Errorf("Capacity = %d", s.Capacity)
	}
}

func TestShardedGetOrCreate(t *testing.T) {
	c := NewSharded[string, int](8, StringHasher)
	calls := 0
	create := func() int { calls++; return 42 }
	for range 3 {
		if v := c.GetOrCreate("k", create); v != 42 {
			t.Fatalf("GetOrCreate = %d", v)
		}
	}
	if calls != 1 {
		t.Errorf("create called %d times", calls)
	}
	if r := c.Stats().HitRate(); r < 0.66 || r > 0.67 {
		t.Errorf("HitRate() = %v", r)
	}
}

func TestShardedEviction(t *testing.T) {
	c := NewSharded[string, int](2, sameShard)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("least recently used entry was not evicted")
	}
	for _, k := range []string{"a", "c"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("%s was evicted", k)
		}
	}
	if e := c.Stats().Evictions; e != 1 {
		t.Errorf("Evictions = %d", e)
	}
}

func TestShardedDeleteClear(t *testing.T) {
	c := NewSharded[string, int](0, StringHasher)
	c.Set("a", 1)
	c.Set("b", 2)
	if !c.Delete("a") || c.Delete("a") {
		t.Error("Delete did not report presence correctly")
	}
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d", c.Len())
	}
	if c.Stats().Capacity != DefaultCapacity*shardCount {
		t.Error("zero capacity did not fall back to DefaultCapacity")
	}
}

func TestShardedConcurrent(t *testing.T) {
	c := NewSharded[string, int](16, StringHasher)
	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				k := strconv.Itoa(i % 50)
				v := c.GetOrCreate(k, func() int { return i % 50 })
				if strconv.Itoa(v) != k {
					t.Errorf("worker %d: GetOrCreate(%s) = %d", w, k, v)
					return
				}
			}
		}()
	}
	wg.Wait()
	if c.Len() != 50 {
		t.Errorf("Len() = %d, want 50", c.Len())
	}
}

func TestStringHasher(t *testing.T) {
	if StringHasher("x") != StringHasher("x") {
		t.Error("hash is not deterministic")
	}
	if StringHasher("x") == StringHasher("y") {
		t.Error("distinct keys collide")
	}
}
