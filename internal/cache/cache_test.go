package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rebelice/kioskquery/internal/models"
)

func result(rows ...[]string) models.QueryResult {
	return models.QueryResult{Rows: rows, Count: int64(len(rows))}
}

func TestCache_PutAndGet(t *testing.T) {
	c := New(10, time.Minute)
	c.Put("k", result([]string{"a"}))

	got, ok := c.Get("k")
	if !ok {
		t.Fatal("expected a hit")
	}
	if got.Count != 1 || got.Rows[0][0] != "a" {
		t.Errorf("unexpected value %+v", got)
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("expected a miss for an unknown key")
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	c := New(10, time.Minute)
	now := time.Date(2026, 3, 18, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Put("k", result([]string{"a"}))
	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected a hit before expiry")
	}

	now = now.Add(time.Minute + time.Second)
	if _, ok := c.Get("k"); ok {
		t.Error("expected a miss after the TTL elapsed")
	}
	if c.Size() != 0 {
		t.Errorf("expired entry should be evicted lazily, size=%d", c.Size())
	}
}

func TestCache_Invalidate(t *testing.T) {
	c := New(10, time.Minute)
	c.Put("a", result())
	c.Put("b", result())

	c.Invalidate("a")
	if _, ok := c.Get("a"); ok {
		t.Error("expected a miss after Invalidate")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("other entries should survive a scoped invalidation")
	}

	c.InvalidateAll()
	if _, ok := c.Get("b"); ok {
		t.Error("expected a miss after InvalidateAll")
	}
	if c.Size() != 0 {
		t.Errorf("expected empty cache, size=%d", c.Size())
	}
}

func TestCache_LRUEviction(t *testing.T) {
	c := New(2, time.Minute)
	c.Put("a", result())
	c.Put("b", result())

	// touch a so b becomes least recently used
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a hit")
	}

	c.Put("c", result())
	if _, ok := c.Get("b"); ok {
		t.Error("expected the LRU entry to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("recently used entry should survive eviction")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("new entry should be present")
	}
}

func TestCache_CleanExpired(t *testing.T) {
	c := New(10, time.Minute)
	now := time.Date(2026, 3, 18, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Put("a", result())
	c.PutWithTTL("b", result(), time.Hour)

	now = now.Add(2 * time.Minute)
	if removed := c.CleanExpired(); removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("entry with a longer TTL should survive")
	}
}

func TestCache_GetOrFillCoalesces(t *testing.T) {
	c := New(10, time.Minute)

	var fills int32
	fill := func() (models.QueryResult, error) {
		atomic.AddInt32(&fills, 1)
		time.Sleep(20 * time.Millisecond)
		return result([]string{"row"}), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.GetOrFill("k", fill)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if got.Count != 1 {
				t.Errorf("unexpected value %+v", got)
			}
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt32(&fills); n != 1 {
		t.Errorf("expected one shared fill, got %d", n)
	}
	if _, ok := c.Get("k"); !ok {
		t.Error("fill result should be cached")
	}
}

func TestCache_GetOrFillErrorNotCached(t *testing.T) {
	c := New(10, time.Minute)
	boom := errors.New("boom")

	_, err := c.GetOrFill("k", func() (models.QueryResult, error) {
		return models.QueryResult{}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fill error, got %v", err)
	}
	if _, ok := c.Get("k"); ok {
		t.Error("a failed fill must not populate the cache")
	}
}

func TestKey_SharedAcrossEquivalentInputs(t *testing.T) {
	a := Key("alumni", "lastName = $1", []interface{}{"Smith"})
	b := Key("alumni", "lastName = $1", []interface{}{"Smith"})
	if a != b {
		t.Error("identical inputs should share a key")
	}

	if Key("alumni", "lastName = $1", []interface{}{"Smith"}) ==
		Key("staff", "lastName = $1", []interface{}{"Smith"}) {
		t.Error("content type must discriminate keys")
	}
	if Key("alumni", "lastName = $1", []interface{}{"Smith"}) ==
		Key("alumni", "lastName = $1", []interface{}{"Jones"}) {
		t.Error("bound values must discriminate keys")
	}
}
