// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestLRUBasicOperations(t *testing.T) {
	t.Parallel()
	c := NewLRU[string, int64](3, time.Minute)
	c.Add("a", 1)
	c.Add("b", 2)
	c.Add("c", 3)

	for key, want := range map[string]int64{"a": 1, "b": 2, "c": 3} {
		if got, ok := c.Get(key); !ok || got != want {
			t.Errorf("Get(%q) = %d, %v; want %d, true", key, got, ok, want)
		}
	}
	if c.Len() != 3 {
		t.Errorf("got len %d, want 3", c.Len())
	}

	c.Add("a", 10)
	if got, _ := c.Get("a"); got != 10 {
		t.Errorf("got %d after update, want 10", got)
	}
	if !c.Remove("a") || c.Remove("a") {
		t.Error("Remove should report presence once")
	}
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("got len %d after Clear, want 0", c.Len())
	}
}

func TestLRUEviction(t *testing.T) {
	t.Parallel()
	c := NewLRU[string, int](3, time.Minute)
	c.Add("a", 1)
	c.Add("b", 2)
	c.Add("c", 3)
	c.Get("a")
	c.Add("d", 4)

	if _, ok := c.Get("b"); ok {
		t.Error("b was least recently used and should be evicted")
	}
	for _, key := range []string{"a", "c", "d"} {
		if _, ok := c.Get(key); !ok {
			t.Errorf("%s should still be cached", key)
		}
	}
}

func TestLRUExpiry(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRU[string, int](10, time.Minute)
	c.now = func() time.Time { return now }

	c.Add("a", 1)
	now = now.Add(59 * time.Second)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("entry expired early")
	}
	now = now.Add(2 * time.Second)
	if _, ok := c.Get("a"); ok {
		t.Error("entry should have expired")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry not removed on Get, len %d", c.Len())
	}

	hits, misses, size := c.Stats()
	if hits != 1 || misses != 1 || size != 0 {
		t.Errorf("Stats() = %d, %d, %d; want 1, 1, 0", hits, misses, size)
	}
}

func TestLRUDefaults(t *testing.T) {
	t.Parallel()
	c := NewLRU[int, int](0, 0)
	if c.capacity != DefaultCapacity || c.ttl != DefaultTTL {
		t.Errorf("got capacity %d ttl %v, want defaults", c.capacity, c.ttl)
	}
}

func TestLRUConcurrentAccess(t *testing.T) {
	t.Parallel()
	c := NewLRU[string, int](50, time.Minute)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (g*i)%100)
				c.Add(key, i)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()
	if c.Len() > 50 {
		t.Errorf("got len %d, capacity is 50", c.Len())
	}
}
