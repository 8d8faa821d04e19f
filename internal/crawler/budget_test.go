package crawler

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBudgetConcurrentTake(t *testing.T) {
	t.Parallel()

	b := NewBudget(50)
	var granted atomic.Int64
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				if b.Take() {
					granted.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), granted.Load())
	assert.True(t, b.Exhausted())
	assert.Equal(t, 50, b.Used())
}

func TestBudgetUnlimited(t *testing.T) {
	t.Parallel()

	for _, b := range []*Budget{nil, NewBudget(0), NewBudget(-1)} {
		for range 100 {
			assert.True(t, b.Take())
		}
		assert.False(t, b.Exhausted())
	}
}
