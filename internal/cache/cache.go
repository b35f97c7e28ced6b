// Package cache is the in-process result cache for assembled feed
// responses. Entries expire by TTL and the least recently used entry
// is evicted when a new key would exceed capacity.
package cache

import (
	"container/list"
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"trendfeed/pkg/content"
)

type entry struct {
	key       string
	value     any
	expiresAt time.Time
}

// Cache is safe for concurrent use. Construct one per process and
// inject it; callers share hits only through the same instance.
type Cache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]*list.Element
	lru        *list.List // front = most recently used
	log        *slog.Logger

	now func() time.Time
}

// New creates a cache. Zero ttl defaults to 5 minutes, zero
// maxEntries to 256.
func New(ttl time.Duration, maxEntries int, log *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 256
	}
	if log == nil {
		log = slog.Default()
	}
	return &Cache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]*list.Element),
		lru:        list.New(),
		log:        log,
		now:        time.Now,
	}
}

// Get returns the live value for key. Expired entries are evicted on
// read and count as a miss.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	ent := el.Value.(*entry)
	if c.now().After(ent.expiresAt) {
		c.removeLocked(el)
		return nil, false
	}
	c.lru.MoveToFront(el)
	return ent.value, true
}

// Set stores value under key with a fresh TTL. Inserting a new key at
// capacity evicts the least recently used entry; updating an existing
// key never evicts.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		ent := el.Value.(*entry)
		ent.value = value
		ent.expiresAt = c.now().Add(c.ttl)
		c.lru.MoveToFront(el)
		return
	}

	if len(c.entries) >= c.maxEntries {
		if oldest := c.lru.Back(); oldest != nil {
			c.log.Debug("cache evicting lru entry", "key", oldest.Value.(*entry).key)
			c.removeLocked(oldest)
		}
	}

	el := c.lru.PushFront(&entry{key: key, value: value, expiresAt: c.now().Add(c.ttl)})
	c.entries[key] = el
}

// Invalidate drops a single key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
}

// Clear drops everything.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.lru.Init()
}

// Len reports the number of entries, expired ones included until a
// read or sweep removes them.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep removes all expired entries and reports how many went.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.lru.Back(); el != nil; {
		prev := el.Prev()
		if now.After(el.Value.(*entry).expiresAt) {
			c.removeLocked(el)
			removed++
		}
		el = prev
	}
	return removed
}

// Run sweeps periodically until the context is cancelled.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.log.Debug("cache sweep", "expired", n)
			}
		}
	}
}

func (c *Cache) removeLocked(el *list.Element) {
	c.lru.Remove(el)
	delete(c.entries, el.Value.(*entry).key)
}

// Key builds the canonical cache key for a feed query. Source order
// does not matter.
func Key(sourceIDs []string, rng content.TimeRange, mode content.FeedMode) string {
	ids := make([]string, len(sourceIDs))
	copy(ids, sourceIDs)
	sort.Strings(ids)
	return strings.Join(ids, ",") + "|" + string(rng) + "|" + string(mode)
}
