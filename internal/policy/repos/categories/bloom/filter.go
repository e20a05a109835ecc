package bloom

import (
	"sync"

	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/haukened/famfilter/internal/policy/repos/categories"
)

// filter wraps a bits-and-blooms BloomFilter. Reads may run concurrently;
// Add and Clear take the write lock.
type filter struct {
	mu sync.RWMutex
	bf *bitsbloom.BloomFilter
}

func (f *filter) Add(key []byte) {
	f.mu.Lock()
	f.bf.Add(key)
	f.mu.Unlock()
}

func (f *filter) MightContain(key []byte) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.bf.Test(key)
}

func (f *filter) Clear() {
	f.mu.Lock()
	f.bf.ClearAll()
	f.mu.Unlock()
}

var _ categories.BloomFilter = (*filter)(nil)
