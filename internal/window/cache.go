// Package window implements the sliding-window event cache shared by the
// rate limiter and the honeypot timing detector. Entries are pruned lazily
// on access, so memory stays bounded to currently-active keys.
package window

import (
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 16

type shard struct {
	mu     sync.Mutex
	events map[string][]time.Time
	last   map[string]time.Time
}

// Cache is a per-key time-stamped event store. It is engine-owned state,
// safe for concurrent use; locking is sharded by key to reduce contention.
type Cache struct {
	shards [shardCount]*shard
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	c := &Cache{}
	for i := range c.shards {
		c.shards[i] = &shard{
			events: make(map[string][]time.Time),
			last:   make(map[string]time.Time),
		}
	}
	return c
}

func (c *Cache) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return c.shards[h.Sum32()%shardCount]
}

// Record appends an event timestamp for key.
func (c *Cache) Record(key string, ts time.Time) {
	s := c.shardFor(key)
	s.mu.Lock()
	s.events[key] = append(s.events[key], ts)
	s.last[key] = ts
	s.mu.Unlock()
}

// CountSince prunes events at or before since and returns how many remain.
// The window is half-open: an event recorded exactly at since has aged out.
// Pruning happens in place so repeated bursts don't grow the slice forever.
func (c *Cache) CountSince(key string, since time.Time) int {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.events[key]
	if len(events) == 0 {
		return 0
	}
	kept := events[:0]
	for _, ts := range events {
		if ts.After(since) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(s.events, key)
		return 0
	}
	s.events[key] = kept
	return len(kept)
}

// Last returns the most recently recorded timestamp for key, if any.
func (c *Cache) Last(key string) (time.Time, bool) {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.last[key]
	return ts, ok
}

// SetLast records only a marker timestamp for key without appending to the
// event list. The honeypot detector uses this for GET baselines.
func (c *Cache) SetLast(key string, ts time.Time) {
	s := c.shardFor(key)
	s.mu.Lock()
	s.last[key] = ts
	s.mu.Unlock()
}

// Reset drops all state. Tests and engine re-initialization use this.
func (c *Cache) Reset() {
	for _, s := range c.shards {
		s.mu.Lock()
		s.events = make(map[string][]time.Time)
		s.last = make(map[string]time.Time)
		s.mu.Unlock()
	}
}
