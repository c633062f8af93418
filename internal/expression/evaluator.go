// Package expression evaluates condition expressions over reservoir
// statuses.
//
// An expression joins a list of elements with AND or OR. All elements of
// one expression are the same kind:
//
//   - StatusComparison: "status op value" or "status op status"
//   - StatusTransition: true when the status changed this cycle
//   - SubExpression: another expression's result compared to a bool
//
// Elements are stored per chunk, and an expression refers to a contiguous
// range of its chunk's elements. Erasing a chunk removes its elements and
// every expression that used them.
package expression

import (
	"slices"

	"github.com/roach88/rulecore/internal/sorted"
	"github.com/roach88/rulecore/internal/status"
)

// Kind is the element kind of an expression.
type Kind uint8

const (
	SubExpression Kind = iota
	StatusTransition
	StatusComparison
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case SubExpression:
		return "sub_expression"
	case StatusTransition:
		return "status_transition"
	case StatusComparison:
		return "status_comparison"
	default:
		return "unknown"
	}
}

// Logic joins an expression's elements.
type Logic uint8

const (
	And Logic = iota
	Or
)

// ParseLogic accepts "and"/"or" in any case; empty is And.
func ParseLogic(s string) (Logic, bool) {
	switch s {
	case "", "and", "AND":
		return And, true
	case "or", "OR":
		return Or, true
	}
	return And, false
}

// Comparison compares a status against a value, or against another status
// when Right is set.
type Comparison struct {
	Status   status.Key
	Operator status.Comparison
	Value    status.Value
	Right    status.Key
}

// Transition tests whether a status changed this cycle.
type Transition struct {
	Status status.Key
}

// Sub tests another expression's result against Condition.
type Sub struct {
	Expression status.Key
	Condition  bool
}

// Expression is a registered expression.
type Expression struct {
	ChunkKey status.Key
	Logic    Logic
	Kind     Kind
	begin    int
	end      int
}

type chunk struct {
	subs        []Sub
	transitions []Transition
	comparisons []Comparison
}

// Reservoir is the status source expressions read.
type Reservoir interface {
	Transition(key status.Key) int8
	CompareStatus(key status.Key, op status.Comparison, v status.Value) status.Evaluation
	CompareStatuses(left status.Key, op status.Comparison, right status.Key) status.Evaluation
}

// Evaluator owns registered expressions.
//
// Not safe for concurrent use.
type Evaluator struct {
	expressions sorted.Map[status.Key, Expression]
	chunks      sorted.Map[status.Key, chunk]
}

// New creates an empty evaluator.
func New() *Evaluator {
	return &Evaluator{}
}

func (e *Evaluator) canRegister(key status.Key, n int) bool {
	return key != status.NoKey && n > 0 && e.expressions.Find(key) == nil
}

func (e *Evaluator) add(key, chunkKey status.Key, logic Logic, kind Kind, begin, end int) {
	x, _ := e.expressions.Equip(key)
	*x = Expression{ChunkKey: chunkKey, Logic: logic, Kind: kind, begin: begin, end: end}
}

// RegisterComparisons registers a status comparison expression.
// Fails on a duplicate key or an empty element list.
func (e *Evaluator) RegisterComparisons(chunkKey, key status.Key, logic Logic, elems []Comparison) bool {
	if !e.canRegister(key, len(elems)) {
		return false
	}
	c, _ := e.chunks.Equip(chunkKey)
	begin := len(c.comparisons)
	c.comparisons = append(c.comparisons, elems...)
	e.add(key, chunkKey, logic, StatusComparison, begin, len(c.comparisons))
	return true
}

// RegisterTransitions registers a status transition expression.
func (e *Evaluator) RegisterTransitions(chunkKey, key status.Key, logic Logic, elems []Transition) bool {
	if !e.canRegister(key, len(elems)) {
		return false
	}
	c, _ := e.chunks.Equip(chunkKey)
	begin := len(c.transitions)
	c.transitions = append(c.transitions, elems...)
	e.add(key, chunkKey, logic, StatusTransition, begin, len(c.transitions))
	return true
}

// RegisterSubExpressions registers an expression over other expressions.
// Every referenced expression must already be registered, which rules out
// cycles.
func (e *Evaluator) RegisterSubExpressions(chunkKey, key status.Key, logic Logic, elems []Sub) bool {
	if !e.canRegister(key, len(elems)) {
		return false
	}
	for _, s := range elems {
		if s.Expression == key || e.expressions.Find(s.Expression) == nil {
			return false
		}
	}
	c, _ := e.chunks.Equip(chunkKey)
	begin := len(c.subs)
	c.subs = append(c.subs, elems...)
	e.add(key, chunkKey, logic, SubExpression, begin, len(c.subs))
	return true
}

// Find returns the expression registered under key.
func (e *Evaluator) Find(key status.Key) (Expression, bool) {
	x := e.expressions.Find(key)
	if x == nil {
		return Expression{}, false
	}
	return *x, true
}

// Keys returns registered expression keys in ascending order.
func (e *Evaluator) Keys() []status.Key {
	return e.expressions.Keys()
}

// Evaluate computes an expression. Returns Failed for an unknown key or
// when any element fails before the result is decided.
func (e *Evaluator) Evaluate(key status.Key, r Reservoir) status.Evaluation {
	x := e.expressions.Find(key)
	if x == nil {
		return status.Failed
	}
	c := e.chunks.Find(x.ChunkKey)
	if c == nil {
		return status.Failed
	}

	switch x.Kind {
	case SubExpression:
		return combine(x, c.subs, func(s Sub) status.Evaluation {
			v := e.Evaluate(s.Expression, r)
			if v < 0 {
				return status.Failed
			}
			if (v > 0) == s.Condition {
				return status.True
			}
			return status.False
		})
	case StatusTransition:
		return combine(x, c.transitions, func(t Transition) status.Evaluation {
			return status.Evaluation(r.Transition(t.Status))
		})
	case StatusComparison:
		return combine(x, c.comparisons, func(cmp Comparison) status.Evaluation {
			if cmp.Right != status.NoKey {
				return r.CompareStatuses(cmp.Status, cmp.Operator, cmp.Right)
			}
			return r.CompareStatus(cmp.Status, cmp.Operator, cmp.Value)
		})
	default:
		return status.Failed
	}
}

func combine[T any](x *Expression, elems []T, eval func(T) status.Evaluation) status.Evaluation {
	if x.begin >= len(elems) || x.end > len(elems) {
		return status.Failed
	}
	and := x.Logic == And
	for _, el := range elems[x.begin:x.end] {
		v := eval(el)
		switch {
		case v < 0:
			return status.Failed
		case v > 0:
			if !and {
				return status.True
			}
		default:
			if and {
				return status.False
			}
		}
	}
	if and {
		return status.True
	}
	return status.False
}

// StatusKeys returns the statuses an expression reads, following
// sub-expressions, sorted and without duplicates.
func (e *Evaluator) StatusKeys(key status.Key) []status.Key {
	var keys []status.Key
	e.collectStatusKeys(key, &keys)
	slices.Sort(keys)
	return slices.Compact(keys)
}

func (e *Evaluator) collectStatusKeys(key status.Key, out *[]status.Key) {
	x := e.expressions.Find(key)
	if x == nil {
		return
	}
	c := e.chunks.Find(x.ChunkKey)
	if c == nil {
		return
	}
	switch x.Kind {
	case SubExpression:
		for _, s := range c.subs[x.begin:x.end] {
			e.collectStatusKeys(s.Expression, out)
		}
	case StatusTransition:
		for _, t := range c.transitions[x.begin:x.end] {
			*out = append(*out, t.Status)
		}
	case StatusComparison:
		for _, cmp := range c.comparisons[x.begin:x.end] {
			*out = append(*out, cmp.Status)
			if cmp.Right != status.NoKey {
				*out = append(*out, cmp.Right)
			}
		}
	}
}

// EraseChunk removes a chunk's elements and the expressions using them.
func (e *Evaluator) EraseChunk(chunkKey status.Key) bool {
	if _, ok := e.chunks.Erase(chunkKey); !ok {
		return false
	}
	e.expressions.EraseFunc(func(_ status.Key, x *Expression) bool {
		return x.ChunkKey == chunkKey
	})
	return true
}
