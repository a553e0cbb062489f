package mqttclient

import (
	"container/list"
	"sync"
	"time"
)

// dedupCache is an insertion-ordered, TTL-bounded LRU cache of
// envelope ids used to drop at-most-once duplicates. Deduplication is
// disabled when either bound is zero (spec §3 Dedup Cache Entry).
type dedupCache struct {
	mu        sync.Mutex
	ttl       time.Duration
	maxEntries int
	order     *list.List // front = most recently inserted
	index     map[string]*list.Element
}

type dedupElement struct {
	id        string
	insertedAt time.Time
}

func newDedupCache(ttl time.Duration, maxEntries int) *dedupCache {
	return &dedupCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		order:      list.New(),
		index:      make(map[string]*list.Element),
	}
}

// enabled reports whether deduplication is active at all.
func (c *dedupCache) enabled() bool {
	return c != nil && c.ttl > 0 && c.maxEntries > 0
}

// seen records id if it hasn't been seen within the TTL, returning
// true if the message is a duplicate and should be dropped.
func (c *dedupCache) seen(id string) bool {
	if !c.enabled() || id == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.evictExpiredLocked(now)

	if el, ok := c.index[id]; ok {
		entry := el.Value.(*dedupElement)
		if now.Sub(entry.insertedAt) <= c.ttl {
			return true
		}
		// Expired entry for this id; treat as fresh below.
		c.order.Remove(el)
		delete(c.index, id)
	}

	el := c.order.PushFront(&dedupElement{id: id, insertedAt: now})
	c.index[id] = el

	for c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.index, oldest.Value.(*dedupElement).id)
	}

	return false
}

func (c *dedupCache) evictExpiredLocked(now time.Time) {
	for {
		oldest := c.order.Back()
		if oldest == nil {
			return
		}
		entry := oldest.Value.(*dedupElement)
		if now.Sub(entry.insertedAt) <= c.ttl {
			return
		}
		c.order.Remove(oldest)
		delete(c.index, entry.id)
	}
}
