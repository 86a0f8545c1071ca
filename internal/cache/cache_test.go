package cache

import (
	"context"
	"testing"
	"time"

	"github.com/loomhq/loom/internal/log"
)

func newTestCache(capacity int) *Cache {
	return New(Config{Capacity: capacity}, log.NewNop())
}

func TestSetGet(t *testing.T) {
	c := newTestCache(10)
	c.Set("a", 42, time.Minute)

	got, ok := c.Get("a")
	if !ok {
		t.Fatal("expected hit")
	}
	if got.(int) != 42 {
		t.Errorf("got %v, want 42", got)
	}
}

func TestGetMiss(t *testing.T) {
	c := newTestCache(10)
	if _, ok := c.Get("absent"); ok {
		t.Error("expected miss for absent key")
	}
}

func TestTTLExpiry(t *testing.T) {
	c := newTestCache(10)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("a", "v", 50*time.Millisecond)

	now = now.Add(49 * time.Millisecond)
	if _, ok := c.Get("a"); !ok {
		t.Error("entry should be retrievable before TTL elapses")
	}

	now = now.Add(2 * time.Millisecond)
	if _, ok := c.Get("a"); ok {
		t.Error("entry should be absent strictly after TTL elapses")
	}
	if c.Len() != 0 {
		t.Error("expired entry should be lazily removed on read")
	}
}

func TestLRUEvictionRemovesOldestAccessed(t *testing.T) {
	c := newTestCache(3)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("a", 1, time.Minute)
	now = now.Add(time.Second)
	c.Set("b", 2, time.Minute)
	now = now.Add(time.Second)
	c.Set("c", 3, time.Minute)

	// Touch "a" so "b" becomes the least recently accessed.
	now = now.Add(time.Second)
	c.Get("a")

	now = now.Add(time.Second)
	c.Set("d", 4, time.Minute)

	if c.Has("b") {
		t.Error("expected b (oldest lastAccessed) to be evicted")
	}
	for _, key := range []string{"a", "c", "d"} {
		if !c.Has(key) {
			t.Errorf("expected %s to survive eviction", key)
		}
	}
}

func TestSetRefreshesExistingEntry(t *testing.T) {
	c := newTestCache(1)
	c.Set("a", 1, time.Minute)
	c.Set("a", 2, time.Minute) // must not trigger eviction of itself

	got, ok := c.Get("a")
	if !ok || got.(int) != 2 {
		t.Errorf("got %v %v, want 2 true", got, ok)
	}
}

func TestDeleteAndClear(t *testing.T) {
	c := newTestCache(10)
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)

	if !c.Delete("a") {
		t.Error("Delete should report true for existing key")
	}
	if c.Delete("a") {
		t.Error("Delete should report false for missing key")
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", c.Len())
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	c := newTestCache(10)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("live", 1, time.Hour)
	c.Set("dead1", 2, time.Millisecond)
	c.Set("dead2", 3, time.Millisecond)

	now = now.Add(time.Second)
	if n := c.Sweep(); n != 2 {
		t.Errorf("Sweep removed %d, want 2", n)
	}
	if !c.Has("live") {
		t.Error("live entry should survive sweep")
	}
}

func TestRunSweepsPeriodically(t *testing.T) {
	c := newTestCache(10)
	c.Set("dead", 1, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.RunEvery(ctx, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.After(time.Second)
	for c.Len() > 0 {
		select {
		case <-deadline:
			t.Fatal("background sweep did not remove expired entry")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestStats(t *testing.T) {
	c := newTestCache(10)
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)

	c.Get("a")
	c.Get("a")
	c.Get("b")
	c.Get("missing")

	s := c.Stats()
	if s.Size != 2 {
		t.Errorf("Size = %d, want 2", s.Size)
	}
	if s.Hits != 3 || s.Misses != 1 {
		t.Errorf("Hits/Misses = %d/%d, want 3/1", s.Hits, s.Misses)
	}
	if s.HitRate != 0.75 {
		t.Errorf("HitRate = %v, want 0.75", s.HitRate)
	}
	if len(s.TopEntries) != 2 || s.TopEntries[0].Key != "a" {
		t.Errorf("TopEntries = %+v, want a first", s.TopEntries)
	}
}

func TestStatsTopEntriesBounded(t *testing.T) {
	c := newTestCache(100)
	for i := 0; i < 25; i++ {
		key := string(rune('a' + i))
		c.Set(key, i, time.Minute)
		c.Get(key)
	}
	if got := len(c.Stats().TopEntries); got != topEntriesLimit {
		t.Errorf("TopEntries length = %d, want %d", got, topEntriesLimit)
	}
}
