// Package cache provides a TTL-bounded, cost-bounded LRU cache of
// serialized values.
package cache

import (
	"container/list"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Default cache values.
const (
	DefaultTTL      = 5 * time.Minute
	DefaultCapacity = 32 << 20 // total cost, bytes by convention
)

// Config configures a Cache.
type Config struct {
	// TTL is how long an entry stays valid. Zero uses DefaultTTL.
	TTL time.Duration

	// Capacity bounds the sum of entry costs. Zero uses DefaultCapacity.
	Capacity int64
}

// entry is a single cached value.
type entry struct {
	key       string
	value     []byte
	expiresAt time.Time
	cost      int64
}

// Cache is safe for concurrent use.
type Cache struct {
	ttl      time.Duration
	capacity int64
	now      func() time.Time

	mu    sync.Mutex
	order *list.List // front is most recently used
	items map[string]*list.Element
	used  int64

	hits   uint64
	misses uint64
}

// New creates an empty cache.
func New(cfg Config) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	return &Cache{
		ttl:      cfg.TTL,
		capacity: cfg.Capacity,
		now:      time.Now,
		order:    list.New(),
		items:    make(map[string]*list.Element),
	}
}

// Get returns a copy of the value stored under key. Expired entries are
// removed and reported as misses.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	e := el.Value.(*entry)
	if !c.now().Before(e.expiresAt) {
		c.remove(el)
		c.misses++
		return nil, false
	}
	c.order.MoveToFront(el)
	c.hits++
	return append([]byte(nil), e.value...), true
}

// Set stores value under key with the given cost. A cost <= 0 is replaced
// by len(value). Values costing more than the capacity are not stored.
// Least recently used entries are evicted until the new entry fits.
func (c *Cache) Set(key string, value []byte, cost int64) bool {
	if cost <= 0 {
		cost = int64(len(value))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.remove(el)
	}
	if cost > c.capacity {
		return false
	}

	for c.used+cost > c.capacity {
		back := c.order.Back()
		if back == nil {
			break
		}
		c.remove(back)
	}

	e := &entry{
		key:       key,
		value:     append([]byte(nil), value...),
		expiresAt: c.now().Add(c.ttl),
		cost:      cost,
	}
	c.items[key] = c.order.PushFront(e)
	c.used += cost
	return true
}

// Delete removes key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.remove(el)
	}
}

// DeletePrefix removes every key starting with prefix and returns the count.
func (c *Cache) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key, el := range c.items {
		if strings.HasPrefix(key, prefix) {
			c.remove(el)
			n++
		}
	}
	return n
}

// Purge removes every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.items = make(map[string]*list.Element)
	c.used = 0
}

// Len returns the number of entries, including expired ones not yet evicted.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats reports cache usage.
type Stats struct {
	Entries  int
	Cost     int64
	Capacity int64
	Hits     uint64
	Misses   uint64
}

// Stats returns a snapshot of cache usage.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:  len(c.items),
		Cost:     c.used,
		Capacity: c.capacity,
		Hits:     c.hits,
		Misses:   c.misses,
	}
}

// remove unlinks el (caller must hold lock).
func (c *Cache) remove(el *list.Element) {
	e := c.order.Remove(el).(*entry)
	delete(c.items, e.key)
	c.used -= e.cost
}

// GetJSON decodes the value stored under key into v.
func (c *Cache) GetJSON(key string, v any) (bool, error) {
	data, ok := c.Get(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		c.Delete(key)
		return false, fmt.Errorf("decode cached %q: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key, costing its encoded size.
func (c *Cache) SetJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cached %q: %w", key, err)
	}
	c.Set(key, data, 0)
	return nil
}
