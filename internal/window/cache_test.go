package window

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestCacheCountSince(t *testing.T) {
	base := time.Unix(1700000000, 0)

	t.Run("counts only events inside the window", func(t *testing.T) {
		c := NewCache()
		c.Record("1.2.3.4", base)
		c.Record("1.2.3.4", base.Add(1*time.Second))
		c.Record("1.2.3.4", base.Add(2*time.Second))
		c.Record("1.2.3.4", base.Add(11*time.Second))

		// the event at exactly now-10s has aged out
		count := c.CountSince("1.2.3.4", base.Add(11*time.Second).Add(-10*time.Second))
		if count != 2 {
			t.Errorf("expected 2 events in window, got %d", count)
		}
	})

	t.Run("window boundary is exclusive", func(t *testing.T) {
		c := NewCache()
		c.Record("k", base)
		if got := c.CountSince("k", base); got != 0 {
			t.Errorf("expected event at boundary to be pruned, got %d", got)
		}
		if got := c.CountSince("k", base.Add(-time.Nanosecond)); got != 0 {
			t.Errorf("expected boundary prune to be permanent, got %d", got)
		}
	})

	t.Run("unknown key counts zero", func(t *testing.T) {
		c := NewCache()
		if got := c.CountSince("absent", base); got != 0 {
			t.Errorf("expected 0 for unknown key, got %d", got)
		}
	})

	t.Run("pruned events stay gone", func(t *testing.T) {
		c := NewCache()
		c.Record("k", base)
		c.Record("k", base.Add(time.Second))

		if got := c.CountSince("k", base.Add(time.Minute)); got != 0 {
			t.Fatalf("expected everything pruned, got %d", got)
		}
		// a later wider window must not resurrect them
		if got := c.CountSince("k", base.Add(-time.Minute)); got != 0 {
			t.Errorf("expected pruned events to stay pruned, got %d", got)
		}
	})

	t.Run("keys are independent", func(t *testing.T) {
		c := NewCache()
		c.Record("a", base)
		c.Record("b", base)
		c.Record("b", base)

		if got := c.CountSince("a", base.Add(-time.Second)); got != 1 {
			t.Errorf("key a: expected 1, got %d", got)
		}
		if got := c.CountSince("b", base.Add(-time.Second)); got != 2 {
			t.Errorf("key b: expected 2, got %d", got)
		}
	})
}

func TestCacheLast(t *testing.T) {
	base := time.Unix(1700000000, 0)

	t.Run("missing key reports not ok", func(t *testing.T) {
		c := NewCache()
		if _, ok := c.Last("nope"); ok {
			t.Error("expected no last timestamp for unknown key")
		}
	})

	t.Run("SetLast records a marker without an event", func(t *testing.T) {
		c := NewCache()
		c.SetLast("k", base)

		ts, ok := c.Last("k")
		if !ok || !ts.Equal(base) {
			t.Errorf("expected last %v, got %v ok=%v", base, ts, ok)
		}
		if got := c.CountSince("k", base.Add(-time.Hour)); got != 0 {
			t.Errorf("SetLast must not create events, got count %d", got)
		}
	})

	t.Run("Record updates last", func(t *testing.T) {
		c := NewCache()
		c.Record("k", base)
		c.Record("k", base.Add(5*time.Second))

		ts, ok := c.Last("k")
		if !ok || !ts.Equal(base.Add(5*time.Second)) {
			t.Errorf("expected last to track newest record, got %v", ts)
		}
	})
}

func TestCacheReset(t *testing.T) {
	base := time.Unix(1700000000, 0)
	c := NewCache()
	c.Record("k", base)
	c.SetLast("m", base)

	c.Reset()

	if got := c.CountSince("k", base.Add(-time.Hour)); got != 0 {
		t.Errorf("expected empty cache after reset, got %d", got)
	}
	if _, ok := c.Last("m"); ok {
		t.Error("expected last markers cleared after reset")
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := NewCache()
	base := time.Unix(1700000000, 0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("client-%d", n%4)
			for j := 0; j < 100; j++ {
				c.Record(key, base.Add(time.Duration(j+1)*time.Millisecond))
				c.CountSince(key, base)
				c.Last(key)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		key := fmt.Sprintf("client-%d", i)
		if got := c.CountSince(key, base); got != 200 {
			t.Errorf("%s: expected 200 events, got %d", key, got)
		}
	}
}
