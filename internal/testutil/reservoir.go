package testutil

import (
	"github.com/roach88/rulecore/internal/status"
)

// MapReservoir is an in-memory status store for tests.
//
// It implements the write and transition queries the modifier and the
// expression evaluator consume, without bit packing. Every accepted write
// is recorded in Writes, including writes that left the value unchanged.
type MapReservoir struct {
	values  map[status.Key]status.Value
	changed map[status.Key]bool
	reject  map[status.Key]bool

	Writes []status.Assignment
}

// NewMapReservoir creates an empty reservoir.
func NewMapReservoir() *MapReservoir {
	return &MapReservoir{
		values:  make(map[status.Key]status.Value),
		changed: make(map[status.Key]bool),
		reject:  make(map[status.Key]bool),
	}
}

// Register adds a status with an initial value. The status starts
// unchanged.
func (r *MapReservoir) Register(key status.Key, v status.Value) {
	r.values[key] = v
}

// Reject makes every later write to key fail.
func (r *MapReservoir) Reject(key status.Key) {
	r.reject[key] = true
}

// MarkChanged sets the transition flag of key.
func (r *MapReservoir) MarkChanged(key status.Key) {
	r.changed[key] = true
}

// GetValue returns the stored value, or Empty for an unknown key.
func (r *MapReservoir) GetValue(key status.Key) status.Value {
	return r.values[key]
}

// Transition returns 1 if key changed since the last reset, 0 if not, and
// -1 if key is unknown.
func (r *MapReservoir) Transition(key status.Key) int8 {
	if _, ok := r.values[key]; !ok {
		return -1
	}
	if r.changed[key] {
		return 1
	}
	return 0
}

// AssignStatus applies a write.
func (r *MapReservoir) AssignStatus(a status.Assignment) bool {
	old, ok := r.values[a.Key]
	if !ok || r.reject[a.Key] {
		return false
	}
	v, ok := old.Assign(a.Operator, a.Value)
	if !ok {
		return false
	}
	r.Writes = append(r.Writes, a)
	if v != old {
		r.values[a.Key] = v
		r.changed[a.Key] = true
	}
	return true
}

// CompareStatus evaluates "key op value".
func (r *MapReservoir) CompareStatus(key status.Key, op status.Comparison, v status.Value) status.Evaluation {
	old, ok := r.values[key]
	if !ok {
		return status.Failed
	}
	return old.Evaluate(op, v)
}

// ResetTransitions clears every transition flag.
func (r *MapReservoir) ResetTransitions() {
	clear(r.changed)
}
