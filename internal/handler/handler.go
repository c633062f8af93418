package handler

import (
	"slices"

	"github.com/roach88/rulecore/internal/status"
)

// Condition is a bitmask of evaluation transitions.
//
//	bit 0  now failed     bit 3  last failed
//	bit 1  now false      bit 4  last false
//	bit 2  now true       bit 5  last true
type Condition uint8

// ConditionInvalid is the reserved code that never matches.
const ConditionInvalid Condition = 0

const conditionBitWidth = 3

// MakeCondition builds a mask from the accepted now/last states.
func MakeCondition(nowTrue, nowFalse, nowFailed, lastTrue, lastFalse, lastFailed bool) Condition {
	return bit(nowFailed, 0) |
		bit(nowFalse, 1) |
		bit(nowTrue, 2) |
		bit(lastFailed, conditionBitWidth) |
		bit(lastFalse, conditionBitWidth+1) |
		bit(lastTrue, conditionBitWidth+2)
}

func bit(set bool, shift uint) Condition {
	if set {
		return 1 << shift
	}
	return 0
}

// evaluationShift maps failed/false/true to 0/1/2.
func evaluationShift(e status.Evaluation) uint {
	var s uint
	if e >= 0 {
		s++
	}
	if e > 0 {
		s++
	}
	return s
}

// TransitionCode encodes the (last -> now) pair observed for an expression.
// Returns ConditionInvalid when nothing changed.
func TransitionCode(now, last status.Evaluation) Condition {
	if now == last {
		return ConditionInvalid
	}
	return 1<<evaluationShift(now) | (1<<conditionBitWidth)<<evaluationShift(last)
}

// Priority orders handler calls; lower values run first.
type Priority int32

// Handler binds a Condition and Priority to a Target.
type Handler struct {
	Condition Condition
	Priority  Priority
	Target    Target
}

// New creates a handler.
func New(condition Condition, priority Priority, target Target) Handler {
	return Handler{Condition: condition, Priority: priority, Target: target}
}

// IsMatched reports whether every bit of code is accepted by the handler.
func (h Handler) IsMatched(code Condition) bool {
	if code == ConditionInvalid {
		return false
	}
	return code&h.Condition == code
}

// RegisterFunction inserts h into handlers, keeping them sorted by
// priority. Handlers with equal priority keep registration order.
//
// Fails when the condition is invalid, the target is dead, or the native
// callback is already registered.
func RegisterFunction(handlers []Handler, h Handler) ([]Handler, bool) {
	if h.Condition == ConditionInvalid || !h.Target.Live() {
		return handlers, false
	}
	if cb := h.Target.Native(); cb != nil {
		for _, existing := range handlers {
			if existing.Target.Native() == cb {
				return handlers, false
			}
		}
	}
	i := upperBound(handlers, h.Priority)
	return slices.Insert(handlers, i, h), true
}

// UnregisterFunction removes the handler bound to cb.
func UnregisterFunction(handlers []Handler, cb *Callback) ([]Handler, bool) {
	i := slices.IndexFunc(handlers, func(h Handler) bool {
		return cb != nil && h.Target.Native() == cb
	})
	if i < 0 {
		return handlers, false
	}
	return slices.Delete(handlers, i, i+1), true
}

// PruneExpired drops handlers whose target is no longer live.
func PruneExpired(handlers []Handler) []Handler {
	return slices.DeleteFunc(handlers, func(h Handler) bool {
		return !h.Target.Live()
	})
}

func upperBound(handlers []Handler, p Priority) int {
	i, _ := slices.BinarySearchFunc(handlers, p, func(h Handler, p Priority) int {
		if h.Priority <= p {
			return -1
		}
		return 1
	})
	return i
}
