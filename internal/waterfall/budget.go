package waterfall

import "sync"

// costEpsilon absorbs float rounding in cap comparisons.
const costEpsilon = 1e-9

// jobBudget serialises spend across the concurrent fields of one job. A
// zero limit is unbounded.
type jobBudget struct {
	mu    sync.Mutex
	limit float64
	spent float64
}

func newJobBudget(limit float64) *jobBudget {
	return &jobBudget{limit: limit}
}

// reserve claims cost ahead of a call and reports whether it fits.
func (b *jobBudget) reserve(cost float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.limit > 0 && b.spent+cost > b.limit+costEpsilon {
		return false
	}
	b.spent += cost
	return true
}

// settle replaces a reservation with what the call actually charged.
func (b *jobBudget) settle(reserved, charged float64) {
	b.mu.Lock()
	b.spent += charged - reserved
	b.mu.Unlock()
}
