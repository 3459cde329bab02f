// Package cache provides a generic cost-bounded LRU cache.
//
// Every entry carries a cost computed by a caller-supplied function (for
// decoded mip chains, their size in bytes). When the total cost exceeds the
// budget, least recently used entries are evicted until it fits again. An
// entry whose own cost exceeds the budget is still stored, alone.
//
//	c := cache.New[string, *Chain](64<<20, func(ch *Chain) int64 { return ch.Bytes() })
//	c.Set("albedo.png", chain)
//	chain, ok := c.Get("albedo.png")
//
// Cache is safe for concurrent use and must not be copied after creation.
package cache
