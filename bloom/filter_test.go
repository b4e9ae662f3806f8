package bloom_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/fwojciec/autofetch/bloom"
	"github.com/stretchr/testify/assert"
)

func TestFilter_Visit(t *testing.T) {
	t.Parallel()

	f := bloom.NewFilter(1000, 0.01)

	assert.False(t, f.Seen("https://example.com/a.jpg"))
	assert.True(t, f.Visit("https://example.com/a.jpg"))
	assert.True(t, f.Seen("https://example.com/a.jpg"))

	assert.False(t, f.Visit("https://example.com/a.jpg"), "second visit must report seen")
	assert.True(t, f.Visit("https://example.com/b.jpg"))
}

func TestFilter_IgnoresFragments(t *testing.T) {
	t.Parallel()

	f := bloom.NewFilter(1000, 0.01)

	assert.True(t, f.Visit("https://example.com/sprite.svg#icon-a"))
	assert.False(t, f.Visit("https://example.com/sprite.svg#icon-b"))
	assert.True(t, f.Seen("https://example.com/sprite.svg"))
}

func TestFilter_EstimatedCount(t *testing.T) {
	t.Parallel()

	f := bloom.NewFilter(1000, 0.01)

	assert.Equal(t, uint(0), f.EstimatedCount())

	f.Visit("https://example.com/1.jpg")
	f.Visit("https://example.com/2.jpg")
	f.Visit("https://example.com/3.jpg")
	f.Visit("https://example.com/3.jpg")

	count := f.EstimatedCount()
	assert.True(t, count >= 2 && count <= 4, "expected count near 3, got %d", count)
}

func TestFilter_ConcurrentVisit(t *testing.T) {
	t.Parallel()

	f := bloom.NewFilter(1000, 0.01)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if f.Visit("https://example.com/hero.webp") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestFilter_FalsePositiveRate(t *testing.T) {
	t.Parallel()

	const (
		numItems   = 10000
		fpRate     = 0.01
		testProbes = 10000
	)

	f := bloom.NewFilter(numItems, fpRate)

	for i := range numItems {
		f.Visit(fmt.Sprintf("https://example.com/added/%d.png", i))
	}

	falsePositives := 0
	for i := range testProbes {
		if f.Seen(fmt.Sprintf("https://example.com/notadded/%d.png", i)) {
			falsePositives++
		}
	}

	// Allow up to 2% for statistical variance.
	actualRate := float64(falsePositives) / float64(testProbes)
	assert.Less(t, actualRate, 0.02, "false positive rate %f exceeds 2%%", actualRate)
}
