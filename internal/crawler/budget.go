package crawler

import "sync/atomic"

// Budget caps the number of freelancer candidates dispatched across every
// engine of a run. A zero or negative limit means unlimited.
type Budget struct {
	limit int64
	used  atomic.Int64
}

// NewBudget returns a Budget allowing limit dispatches.
func NewBudget(limit int) *Budget {
	return &Budget{limit: int64(limit)}
}

// Take reserves one dispatch. It returns false once the limit is reached.
func (b *Budget) Take() bool {
	if b == nil || b.limit <= 0 {
		return true
	}
	for {
		used := b.used.Load()
		if used >= b.limit {
			return false
		}
		if b.used.CompareAndSwap(used, used+1) {
			return true
		}
	}
}

// Exhausted reports whether no further dispatch is allowed.
func (b *Budget) Exhausted() bool {
	if b == nil || b.limit <= 0 {
		return false
	}
	return b.used.Load() >= b.limit
}

// Used returns the number of dispatches taken so far.
func (b *Budget) Used() int {
	if b == nil {
		return 0
	}
	return int(b.used.Load())
}
