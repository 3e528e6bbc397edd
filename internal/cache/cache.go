// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package cache implements the bounded, time-aware Decision Cache that
// sits in front of classification: a fingerprint of (device, protocol,
// endpoint, exe) maps to the (rule index, target) the indexed rule
// table produced for it, never to the final accept boolean. It is
// backed by groupcache's size-bounded LRU, which has no notion of time,
// wrapped here with a per-entry TTL checked on Get.
package cache

import (
	"sync"
	"time"

	lru "github.com/golang/groupcache/lru"
	"github.com/perimeterd/perimeterd/internal/clock"
	"github.com/perimeterd/perimeterd/internal/policy"
)

// Capacity is the maximum number of distinct fingerprints retained.
const Capacity = 2048

// TTL bounds how long a cached decision is trusted before a classifier
// must recompute it, even if it has not been evicted for size.
const TTL = 30 * time.Second

// Entry is the cached classification result for one fingerprint.
type Entry struct {
	RuleIndex *int // nil means "no rule matched, default applied"
	Target    policy.Target
}

type entryWithDeadline struct {
	entry    Entry
	deadline time.Time
}

// Cache is the Decision Cache. The zero value is not usable; construct
// with New. A Cache is safe for concurrent use.
type Cache struct {
	mu    sync.Mutex
	clock clock.Clock
	lru   *lru.Cache
}

// New returns an empty Cache bounded at Capacity entries, using the
// real wall clock.
func New() *Cache {
	return NewWithClock(clock.Real)
}

// NewWithClock is New with an injectable clock, for deterministic TTL tests.
func NewWithClock(c clock.Clock) *Cache {
	return &Cache{
		clock: c,
		lru:   lru.New(Capacity),
	}
}

// Get returns the cached entry for key, if present and not expired. A
// stale entry is evicted on the way out so it does not linger as dead
// weight in the LRU.
func (c *Cache) Get(key uint64) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.lru.Get(lru.Key(key))
	if !ok {
		return Entry{}, false
	}
	wrapped := v.(entryWithDeadline)
	if c.clock.Now().After(wrapped.deadline) {
		c.lru.Remove(lru.Key(key))
		return Entry{}, false
	}
	return wrapped.entry, true
}

// Insert stores entry under key with a fresh TTL, evicting the least
// recently used entry if the cache is already at Capacity.
func (c *Cache) Insert(key uint64, entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Add(lru.Key(key), entryWithDeadline{
		entry:    entry,
		deadline: c.clock.Now().Add(TTL),
	})
}

// Len reports the current number of entries, including any not yet
// lazily expired.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
