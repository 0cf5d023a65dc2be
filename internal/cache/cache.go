// Package cache provides the process-wide, in-memory entity snapshot store
// used by the sync repository.
//
// A [Cache] maps an entity id to the last snapshot written for it. Writes are
// ordered by sequence numbers handed out by [Cache.Begin] when the remote call
// that produces the write is issued: a write carrying a lower sequence than
// the entry's current one arrives late and is discarded. Removals leave a
// tombstone with their sequence so that a late read cannot resurrect a
// deleted entry.
//
// There is no TTL and no size-based eviction. The cached datasets are small
// (hundreds of entries) and only explicit invalidation drops entries.
package cache

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Seq orders writes issued against a cache.
type Seq uint64

type entry[T any] struct {
	value   T
	seq     Seq
	stale   bool
	removed bool // tombstone
}

// Cache is a concurrency-safe id → snapshot map. The zero value is not usable;
// create one with [New].
type Cache[T any] struct {
	next atomic.Uint64

	mu      sync.RWMutex
	entries map[string]*entry[T]

	// complete is set when the entries hold a full listing of the
	// collection, fetched by a call issued at completeSeq.
	complete    bool
	completeSeq Seq
}

// New returns an empty cache.
func New[T any]() *Cache[T] {
	return &Cache[T]{entries: make(map[string]*entry[T])}
}

// Begin returns a fresh sequence number. Call it before issuing the remote
// call whose result will be written, and pass it to Put or Remove.
func (c *Cache[T]) Begin() Seq {
	return Seq(c.next.Add(1))
}

// Get returns the cached value for id if present and not stale.
func (c *Cache[T]) Get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[id]
	if !ok || e.removed || e.stale {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Peek returns the cached value for id even when it is stale.
func (c *Cache[T]) Peek(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[id]
	if !ok || e.removed {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Put stores v under id unless a write with a higher sequence number has
// already been applied. It reports whether v was stored.
func (c *Cache[T]) Put(id string, seq Seq, v T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.putLocked(id, seq, v)
}

func (c *Cache[T]) putLocked(id string, seq Seq, v T) bool {
	if e, ok := c.entries[id]; ok && e.seq > seq {
		return false
	}
	c.entries[id] = &entry[T]{value: v, seq: seq}
	return true
}

// Remove deletes the entry for id unless a newer write exists, leaving a
// tombstone at seq. It reports whether the removal was applied.
func (c *Cache[T]) Remove(id string, seq Seq) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[id]; ok && e.seq > seq {
		return false
	}
	c.entries[id] = &entry[T]{seq: seq, removed: true}
	return true
}

// Fill applies a full listing fetched by a call issued at seq. Every value is
// written with Put semantics, entries absent from the listing are removed
// unless they were written after seq, and the cache is marked complete.
func (c *Cache[T]) Fill(seq Seq, values map[string]T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, v := range values {
		c.putLocked(id, seq, v)
	}
	for id, e := range c.entries {
		if _, ok := values[id]; ok || e.removed || e.seq > seq {
			continue
		}
		c.entries[id] = &entry[T]{seq: seq, removed: true}
	}
	for _, e := range c.entries {
		// A newer entry invalidated after this listing was issued keeps
		// the collection incomplete.
		if e.stale && !e.removed {
			return
		}
	}
	if seq >= c.completeSeq {
		c.complete = true
		c.completeSeq = seq
	}
}

// Complete reports whether the cache holds a fresh full listing.
func (c *Cache[T]) Complete() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.complete
}

// Values returns the live, non-stale values ordered by id.
func (c *Cache[T]) Values() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.entries))
	for id, e := range c.entries {
		if !e.removed && !e.stale {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.entries[id].value)
	}
	return out
}

// Len returns the number of live entries, stale or not.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, e := range c.entries {
		if !e.removed {
			n++
		}
	}
	return n
}

// Invalidate marks the entry for id stale. Missing ids are ignored.
// The collection is no longer considered complete.
func (c *Cache[T]) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[id]; ok {
		e.stale = true
	}
	c.complete = false
}

// InvalidateAll marks every entry stale and clears the complete marker.
func (c *Cache[T]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		e.stale = true
	}
	c.complete = false
}
