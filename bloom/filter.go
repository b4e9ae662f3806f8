// Package bloom de-duplicates discovered URLs with a Bloom filter.
package bloom

import (
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/fwojciec/autofetch"
)

var _ autofetch.SeenSet = (*Filter)(nil)

// Filter is a Bloom-filter backed set of visited URLs.
// It is safe for concurrent use.
//
// A false positive means a URL is never fetched; there are no false
// negatives, so nothing is fetched twice.
type Filter struct {
	mu sync.Mutex
	f  *bloom.BloomFilter
}

// NewFilter creates a new Bloom filter sized for n expected URLs
// with the given false positive rate.
func NewFilter(n uint, fpRate float64) *Filter {
	return &Filter{
		f: bloom.NewWithEstimates(n, fpRate),
	}
}

// Visit marks the URL as seen and reports whether it was new.
// URL fragments are ignored, since they never change what is fetched.
func (f *Filter) Visit(url string) bool {
	key := stripFragment(url)

	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.f.TestAndAddString(key)
}

// Seen reports whether the URL might have been visited.
func (f *Filter) Seen(url string) bool {
	key := stripFragment(url)

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.f.TestString(key)
}

// EstimatedCount returns the approximate number of visited URLs.
func (f *Filter) EstimatedCount() uint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint(f.f.ApproximatedSize())
}

func stripFragment(url string) string {
	if idx := strings.Index(url, "#"); idx != -1 {
		return url[:idx]
	}
	return url
}
