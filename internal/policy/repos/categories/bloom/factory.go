package bloom

import (
	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/haukened/famfilter/internal/policy/repos/categories"
)

// factory implements categories.BloomFactory using the sizer's formulas.
type factory struct {
	sizer categories.BloomSizer
}

// NewFactory returns a BloomFactory that sizes filters from capacity and FP rate.
func NewFactory() categories.BloomFactory { return factory{sizer: NewSizer()} }

// New constructs a filter sized for the given dataset capacity and target
// false-positive rate.
func (f factory) New(capacity uint64, fpRate float64) categories.BloomFilter {
	m, k := f.sizer.Size(capacity, fpRate)
	return &filter{bf: bitsbloom.New(uint(m), uint(k))}
}
