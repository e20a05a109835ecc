package categories

import "github.com/haukened/famfilter/internal/policy/domain"

// BloomSizer computes Bloom filter parameters from capacity (n) and target FP rate (p).
// It returns m (number of bits) and k (number of hash functions).
type BloomSizer interface {
	Size(n uint64, p float64) (m uint64, k uint8)
}

// BloomFilter is the minimal interface the repository needs from Bloom filters.
type BloomFilter interface {
	Add(key []byte)
	MightContain(key []byte) bool
	Clear()
}

// BloomFactory builds filters sized for a dataset.
type BloomFactory interface {
	New(capacity uint64, fpRate float64) BloomFilter
}

// MatchCache caches category matches by canonical name with basic metrics.
type MatchCache interface {
	Get(name string) (domain.CategoryMatch, bool)
	Put(name string, m domain.CategoryMatch)
	Len() int
	Purge()
	Stats() CacheStats
}

// Store is the persistent domain → category index.
// GetFirstMatch returns the most specific rule covering name: an exact entry
// first, then suffix anchors from the name itself up to the TLD.
type Store interface {
	RebuildAll(rules []domain.CategoryRule, version uint64, updatedUnix int64) error
	GetFirstMatch(name string) (domain.CategoryRule, bool, error)
	Stats() StoreStats
	Close() error
}

// Repository is the composition layer that wires bloom → cache → store.
type Repository interface {
	// Lookup returns the category match for a domain. Internal errors yield no category.
	Lookup(name string) domain.CategoryMatch
	// Categorize is Lookup reduced to the slug.
	Categorize(name string) (string, bool)
	// UpdateAll rebuilds the store, refreshes the Bloom filter and clears the cache.
	UpdateAll(rules []domain.CategoryRule, version uint64, updatedUnix int64) error
	Stats() RepoStats
}
