package lru

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/famfilter/internal/policy/domain"
	"github.com/haukened/famfilter/internal/policy/repos/categories"
)

// matchCache is an LRU-backed implementation of categories.MatchCache.
// It tracks basic metrics: hits, misses, and evictions.
type matchCache struct {
	lru       *lru.Cache[string, domain.CategoryMatch]
	capacity  int
	hits      uint64
	misses    uint64
	evictions uint64
}

// disabledCache is a no-op MatchCache used when size <= 0.
type disabledCache struct{}

// New creates a MatchCache with the given capacity. If size <= 0, a disabled
// no-op cache is returned that always misses and tracks no metrics.
func New(size int) (categories.MatchCache, error) {
	if size <= 0 {
		return &disabledCache{}, nil
	}

	mc := &matchCache{capacity: size}
	// NewWithEvict observes evictions, including Purge-induced ones.
	cache, err := lru.NewWithEvict(size, func(_ string, _ domain.CategoryMatch) {
		atomic.AddUint64(&mc.evictions, 1)
	})
	if err != nil {
		return nil, err
	}
	mc.lru = cache
	return mc, nil
}

// Get looks up a match by name, counting hits and misses.
func (c *matchCache) Get(name string) (domain.CategoryMatch, bool) {
	if val, ok := c.lru.Get(name); ok {
		atomic.AddUint64(&c.hits, 1)
		return val, true
	}
	atomic.AddUint64(&c.misses, 1)
	return domain.CategoryMatch{}, false
}

func (c *matchCache) Put(name string, m domain.CategoryMatch) {
	c.lru.Add(name, m)
}

func (c *matchCache) Len() int { return c.lru.Len() }

// Purge clears all entries. Evictions are counted via the eviction callback.
func (c *matchCache) Purge() { c.lru.Purge() }

func (c *matchCache) Stats() categories.CacheStats {
	return categories.CacheStats{
		Capacity:  c.capacity,
		Size:      c.lru.Len(),
		Hits:      atomic.LoadUint64(&c.hits),
		Misses:    atomic.LoadUint64(&c.misses),
		Evictions: atomic.LoadUint64(&c.evictions),
	}
}

// disabledCache implementation

func (d *disabledCache) Get(string) (domain.CategoryMatch, bool) {
	return domain.CategoryMatch{}, false
}

func (d *disabledCache) Put(string, domain.CategoryMatch) {}

func (d *disabledCache) Len() int { return 0 }

func (d *disabledCache) Purge() {}

func (d *disabledCache) Stats() categories.CacheStats { return categories.CacheStats{} }

var _ categories.MatchCache = (*matchCache)(nil)
var _ categories.MatchCache = (*disabledCache)(nil)
