// Package dispatcher calls handlers when expression evaluations change.
//
// DISPATCH CYCLE:
//
//  1. Expressions with newly registered handlers are indexed by the
//     statuses they read and queued for evaluation.
//  2. Every indexed status that changed since the last dispatch queues
//     the expressions reading it.
//  3. Queued expressions are evaluated in key order. When the result
//     differs from the previous dispatch, the transition code is matched
//     against each handler and matches are cached in priority order.
//  4. Reservoir transition flags are reset.
//  5. Cached calls run. Handlers may queue new writes; those apply on the
//     next cycle, never during this one.
//
// A change that reverts within one cycle (true, false, true between two
// dispatches) is not observed.
package dispatcher

import (
	"log/slog"
	"slices"

	"github.com/roach88/rulecore/internal/expression"
	"github.com/roach88/rulecore/internal/handler"
	"github.com/roach88/rulecore/internal/sorted"
	"github.com/roach88/rulecore/internal/status"
)

// Reservoir is the status storage a dispatch reads and resets.
type Reservoir interface {
	expression.Reservoir
	ResetTransitions()
}

type monitor struct {
	handlers   []handler.Handler
	last       status.Evaluation
	registered bool
	request    bool
	invalid    bool
}

// Dispatcher owns expression monitors.
//
// Not safe for concurrent use.
type Dispatcher struct {
	monitors sorted.Map[status.Key, monitor]
	statuses sorted.Map[status.Key, []status.Key]
	caches   []handler.Cache
	locked   bool
	logger   *slog.Logger
}

// New creates a Dispatcher. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{logger: logger}
}

// RegisterHandler binds h to an expression. The expression does not need
// to exist yet; it is resolved at dispatch time.
func (d *Dispatcher) RegisterHandler(exprKey status.Key, h handler.Handler) bool {
	m, inserted := d.monitors.Equip(exprKey)
	if inserted {
		m.last = status.Failed
	}
	handlers, ok := handler.RegisterFunction(m.handlers, h)
	if !ok {
		if inserted {
			d.monitors.Erase(exprKey)
		}
		return false
	}
	m.handlers = handlers
	return true
}

// UnregisterHandler removes the handler bound to cb from one expression.
func (d *Dispatcher) UnregisterHandler(exprKey status.Key, cb *handler.Callback) bool {
	m := d.monitors.Find(exprKey)
	if m == nil {
		return false
	}
	handlers, ok := handler.UnregisterFunction(m.handlers, cb)
	m.handlers = handlers
	return ok
}

// UnregisterExpression removes every handler bound to an expression.
func (d *Dispatcher) UnregisterExpression(exprKey status.Key) bool {
	_, ok := d.monitors.Erase(exprKey)
	return ok
}

// Refresh makes the next dispatch re-resolve an expression and evaluate
// it, as after the expression was replaced.
func (d *Dispatcher) Refresh(exprKey status.Key) {
	if m := d.monitors.Find(exprKey); m != nil {
		m.registered = false
	}
}

// HandlerCount returns the number of handlers bound to an expression.
func (d *Dispatcher) HandlerCount(exprKey status.Key) int {
	m := d.monitors.Find(exprKey)
	if m == nil {
		return 0
	}
	return len(m.handlers)
}

// LastEvaluation returns the evaluation observed by the previous dispatch.
func (d *Dispatcher) LastEvaluation(exprKey status.Key) (status.Evaluation, bool) {
	m := d.monitors.Find(exprKey)
	if m == nil {
		return status.Failed, false
	}
	return m.last, true
}

// Dispatch runs one dispatch cycle and returns the calls it made, in call
// order.
func (d *Dispatcher) Dispatch(ev *expression.Evaluator, r Reservoir) []handler.Cache {
	if d.locked {
		d.logger.Warn("dispatch re-entered; ignoring nested call")
		return nil
	}
	d.locked = true
	defer func() { d.locked = false }()

	d.registerExpressions(ev)
	d.detectTransitions(r)

	d.caches = d.caches[:0]
	for key, m := range d.monitors.All() {
		if m.request {
			d.cacheMatches(key, m, ev, r)
		}
	}

	r.ResetTransitions()

	fired := slices.Clone(d.caches)
	for _, c := range fired {
		c.CallFunction()
	}
	d.caches = d.caches[:0]

	d.monitors.EraseFunc(func(_ status.Key, m *monitor) bool {
		return len(m.handlers) == 0
	})
	return fired
}

// registerExpressions indexes monitors whose expression now exists. A
// refreshed monitor whose expression is gone is queued as Failed, even when
// every status it read is still loaded.
func (d *Dispatcher) registerExpressions(ev *expression.Evaluator) {
	for key, m := range d.monitors.All() {
		if m.registered {
			continue
		}
		if _, ok := ev.Find(key); !ok {
			if m.last != status.Failed {
				m.request = true
				m.invalid = true
			}
			continue
		}
		for _, s := range ev.StatusKeys(key) {
			exprs, _ := d.statuses.Equip(s)
			if !slices.Contains(*exprs, key) {
				*exprs = append(*exprs, key)
			}
		}
		m.registered = true
		m.request = true
	}
}

// detectTransitions queues monitors reading a changed or missing status
// and drops index entries for monitors that no longer exist.
func (d *Dispatcher) detectTransitions(r Reservoir) {
	d.statuses.EraseFunc(func(s status.Key, exprs *[]status.Key) bool {
		t := r.Transition(s)
		*exprs = slices.DeleteFunc(*exprs, func(key status.Key) bool {
			m := d.monitors.Find(key)
			if m == nil {
				return true
			}
			if t != 0 {
				m.request = true
				m.invalid = m.invalid || t < 0
			}
			return false
		})
		return len(*exprs) == 0
	})
}

func (d *Dispatcher) cacheMatches(key status.Key, m *monitor, ev *expression.Evaluator, r Reservoir) {
	now := status.Failed
	if !m.invalid {
		now = ev.Evaluate(key, r)
	}
	last := m.last
	m.last = now
	m.request = false
	m.invalid = false

	code := handler.TransitionCode(now, last)
	if code == handler.ConditionInvalid {
		return
	}

	m.handlers = handler.PruneExpired(m.handlers)
	for _, h := range m.handlers {
		if !h.IsMatched(code) {
			continue
		}
		i, _ := slices.BinarySearchFunc(d.caches, h.Priority, func(c handler.Cache, p handler.Priority) int {
			if c.Handler.Priority <= p {
				return -1
			}
			return 1
		})
		d.caches = slices.Insert(d.caches, i, handler.NewCache(h, key, now, last))
	}
}
