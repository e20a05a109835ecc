package categories

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/haukened/famfilter/internal/policy/common/log"
	"github.com/haukened/famfilter/internal/policy/common/utils"
	"github.com/haukened/famfilter/internal/policy/domain"
	"github.com/haukened/famfilter/internal/policy/services/evaluator"
)

// repository implements Repository by composing a Store, a Bloom filter (via
// factory), and a MatchCache. Reads go bloom → cache → store; writes swap a
// fresh snapshot in atomically.
type repository struct {
	mu      sync.RWMutex
	store   Store
	cache   MatchCache
	bloom   BloomFilter
	factory BloomFactory
	fpRate  float64
	logger  log.Logger

	bloomSkips  uint64
	storeErrors uint64
}

type RepositoryOptions struct {
	Store   Store
	Cache   MatchCache
	Factory BloomFactory
	// FPRate is the target false-positive rate for the Bloom filter when rebuilding.
	FPRate float64
	Logger log.Logger
}

// NewRepository constructs a Repository. Until the first UpdateAll no Bloom
// filter is loaded and every lookup consults the store.
func NewRepository(opts RepositoryOptions) Repository {
	r := &repository{
		store:   opts.Store,
		cache:   opts.Cache,
		factory: opts.Factory,
		fpRate:  opts.FPRate,
		logger:  opts.Logger,
	}
	if r.logger == nil {
		r.logger = log.NewNoopLogger()
	}
	return r
}

// Lookup returns the category for name. On internal errors it returns no
// category, so a broken index never blocks anything by itself.
func (r *repository) Lookup(name string) domain.CategoryMatch {
	cn := utils.CanonicalDomainName(name)
	if cn == "" {
		return domain.NoCategory()
	}
	if !r.checkBloom(cn) {
		atomic.AddUint64(&r.bloomSkips, 1)
		return domain.NoCategory()
	}
	if m, ok := r.cache.Get(cn); ok {
		return m
	}
	m := r.checkStore(cn)
	r.cache.Put(cn, m)
	return m
}

func (r *repository) Categorize(name string) (string, bool) {
	m := r.Lookup(name)
	return m.Category, m.Found
}

// UpdateAll performs an atomic snapshot update across store, bloom, and cache.
func (r *repository) UpdateAll(rules []domain.CategoryRule, version uint64, updatedUnix int64) error {
	if err := r.store.RebuildAll(rules, version, updatedUnix); err != nil {
		return err
	}

	bf := r.factory.New(uint64(len(rules)), r.fpRate)
	for _, ru := range rules {
		switch ru.Kind {
		case domain.CategoryRuleExact:
			bf.Add([]byte(ru.Name))
		case domain.CategoryRuleSuffix:
			bf.Add([]byte(ReverseName(ru.Name)))
		}
	}

	r.mu.Lock()
	r.bloom = bf
	r.cache.Purge()
	r.mu.Unlock()

	r.logger.Info(map[string]any{"rules": len(rules), "version": version}, "category index updated")
	return nil
}

func (r *repository) Stats() RepoStats {
	return RepoStats{
		Cache:       r.cache.Stats(),
		Store:       r.store.Stats(),
		BloomSkips:  atomic.LoadUint64(&r.bloomSkips),
		StoreErrors: atomic.LoadUint64(&r.storeErrors),
	}
}

// ReverseName reverses the bytes of a name. The store keys suffix anchors the
// same way, so Bloom keys stay aligned with store keys.
func ReverseName(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}

// checkBloom returns true if the store must be consulted, false when the
// name is definitely in no list. With no filter loaded it returns true.
func (r *repository) checkBloom(cn string) bool {
	r.mu.RLock()
	bf := r.bloom
	r.mu.RUnlock()
	if bf == nil {
		return true
	}
	if bf.MightContain([]byte(cn)) {
		return true
	}
	a := cn
	for {
		if bf.MightContain([]byte(ReverseName(a))) {
			return true
		}
		i := strings.IndexByte(a, '.')
		if i < 0 {
			return false
		}
		a = a[i+1:]
	}
}

func (r *repository) checkStore(cn string) domain.CategoryMatch {
	rule, ok, err := r.store.GetFirstMatch(cn)
	if err != nil {
		atomic.AddUint64(&r.storeErrors, 1)
		r.logger.Warn(map[string]any{"domain": cn, "error": err.Error()}, "category store lookup failed")
		return domain.NoCategory()
	}
	if !ok {
		return domain.NoCategory()
	}
	return domain.CategoryMatch{Found: true, Category: rule.Category, MatchedRule: rule.Name, Kind: rule.Kind}
}

var _ evaluator.Categorizer = (Repository)(nil)
