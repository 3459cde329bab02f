package cache

import "sync"

// CostFunc returns the cost of a value. Negative costs count as zero.
type CostFunc[V any] func(V) int64

// Cache is a thread-safe LRU cache bounded by total cost.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*lruNode[K, V]
	order   lruList[K, V]
	cost    CostFunc[V]
	maxCost int64
	used    int64

	hits      uint64
	misses    uint64
	evictions uint64
}

// New creates a cache holding at most maxCost worth of values.
// A maxCost of 0 means unlimited. A nil cost function counts every value as 1,
// which turns maxCost into an entry limit.
func New[K comparable, V any](maxCost int64, cost CostFunc[V]) *Cache[K, V] {
	if cost == nil {
		cost = func(V) int64 { return 1 }
	}
	return &Cache[K, V]{
		entries: make(map[K]*lruNode[K, V]),
		cost:    cost,
		maxCost: maxCost,
	}
}

// Get retrieves a value and marks it most recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.entries[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	c.order.MoveToFront(node)
	return node.value, true
}

// Set stores a value, replacing any previous value for key, and evicts the
// least recently used entries while the budget is exceeded.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(key, value)
}

// Delete removes an entry. It reports whether the entry existed.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.entries[key]
	if !ok {
		return false
	}
	c.remove(node)
	return true
}

// Stats returns cache statistics.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Len:       len(c.entries),
		Cost:      c.used,
		MaxCost:   c.maxCost,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// Caller must hold c.mu.
func (c *Cache[K, V]) set(key K, value V) {
	cost := max(c.cost(value), 0)
	if node, ok := c.entries[key]; ok {
		c.used += cost - node.cost
		node.value = value
		node.cost = cost
		c.order.MoveToFront(node)
	} else {
		node := &lruNode[K, V]{key: key, value: value, cost: cost}
		c.entries[key] = node
		c.order.pushFront(node)
		c.used += cost
	}
	c.evict()
}

// evict drops the oldest entries until the budget fits, never evicting the
// newest entry. Caller must hold c.mu.
func (c *Cache[K, V]) evict() {
	if c.maxCost <= 0 {
		return
	}
	for c.used > c.maxCost && c.order.Len() > 1 {
		c.remove(c.order.Oldest())
		c.evictions++
	}
}

// Caller must hold c.mu.
func (c *Cache[K, V]) remove(node *lruNode[K, V]) {
	c.order.Remove(node)
	delete(c.entries, node.key)
	c.used -= node.cost
}

// Stats contains cache statistics.
type Stats struct {
	// Len is the current number of entries.
	Len int
	// Cost is the summed cost of all entries.
	Cost int64
	// MaxCost is the budget, 0 when unlimited.
	MaxCost int64
	// Hits is the number of successful lookups.
	Hits uint64
	// Misses is the number of failed lookups.
	Misses uint64
	// HitRate is Hits / (Hits + Misses), 0.0 to 1.0.
	HitRate float64
	// Evictions is the number of entries dropped to fit the budget.
	Evictions uint64
}
