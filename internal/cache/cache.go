// Package cache provides the bounded single-flight cache backing the
// navigator's three tiers (validation, selection, transformed output).
//
// Lookup hits return immediately; on a miss the first caller computes while
// concurrent callers for the same key wait on its in-flight slot, so one
// expensive selection never runs twice. Values expire by TTL and evict LRU
// when the bound is reached. Errors are never cached.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/fyrsmithlabs/corpusd/internal/fault"
)

type entry struct {
	key       string
	value     any
	expiresAt time.Time
}

type call struct {
	done  chan struct{}
	value any
	err   error
}

// Cache is a bounded LRU with TTL expiry and per-key in-flight deduplication.
type Cache struct {
	capacity int
	ttl      time.Duration

	mu       sync.Mutex
	ll       *list.List
	items    map[string]*list.Element
	inflight map[string]*call

	// now is swappable for deterministic tests.
	now func() time.Time
}

// New creates a cache. capacity <= 0 disables storage (single-flight still
// deduplicates); ttl <= 0 means entries never expire.
func New(capacity int, ttl time.Duration) *Cache {
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
		inflight: make(map[string]*call),
		now:      time.Now,
	}
}

// Get returns the cached value for key when present and fresh.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key)
}

func (c *Cache) getLocked(key string) (any, bool) {
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	ent := el.Value.(*entry)
	if c.ttl > 0 && c.now().After(ent.expiresAt) {
		c.ll.Remove(el)
		delete(c.items, key)
		return nil, false
	}
	c.ll.MoveToFront(el)
	return ent.value, true
}

// Put stores a value under key, evicting the least recently used entry when
// over capacity.
func (c *Cache) Put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(key, value)
}

func (c *Cache) putLocked(key string, value any) {
	if c.capacity <= 0 {
		return
	}
	if el, ok := c.items[key]; ok {
		ent := el.Value.(*entry)
		ent.value = value
		ent.expiresAt = c.now().Add(c.ttl)
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&entry{key: key, value: value, expiresAt: c.now().Add(c.ttl)})
	c.items[key] = el
	for c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*entry).key)
	}
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Do returns the cached value for key or computes it once. Concurrent calls
// for the same key wait for the first computation; a computation error is
// returned to every waiter and not cached.
func (c *Cache) Do(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, error) {
	c.mu.Lock()
	if v, ok := c.getLocked(key); ok {
		c.mu.Unlock()
		return v, nil
	}
	if inflight, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		select {
		case <-inflight.done:
			return inflight.value, inflight.err
		case <-ctx.Done():
			return nil, fault.FromContext(ctx)
		}
	}

	cl := &call{done: make(chan struct{})}
	c.inflight[key] = cl
	c.mu.Unlock()

	cl.value, cl.err = fn(ctx)

	c.mu.Lock()
	delete(c.inflight, key)
	if cl.err == nil {
		c.putLocked(key, cl.value)
	}
	c.mu.Unlock()
	close(cl.done)

	return cl.value, cl.err
}
