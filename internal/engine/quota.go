package engine

// DefaultMaxCycles bounds how many cycles Settle runs before giving up.
// Handlers that write a status on every cycle would otherwise never settle.
const DefaultMaxCycles = 1000

// cycleQuota counts the cycles of one Settle call.
//
// A cycle is charged before it runs; Check fails once the count passes
// the limit, so Settle runs at most maxCycles cycles.
type cycleQuota struct {
	maxCycles int
	current   int
}

func newCycleQuota(maxCycles int) *cycleQuota {
	return &cycleQuota{maxCycles: maxCycles}
}

// Check charges one cycle. Returns a CYCLE_LIMIT_EXCEEDED RuntimeError if
// the limit is passed.
func (q *cycleQuota) Check(runID string, pending int) error {
	q.current++
	if q.current > q.maxCycles {
		return NewCycleLimitError(runID, q.current-1, q.maxCycles, pending)
	}
	return nil
}

// Current returns the number of cycles charged.
func (q *cycleQuota) Current() int {
	return q.current
}
