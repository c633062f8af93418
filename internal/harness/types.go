package harness

import (
	"github.com/roach88/rulecore/internal/store"
)

// Trace event types.
const (
	EventWrite = "write"
	EventFire  = "fire"
)

// TraceEvent is one write attempt or handler call, as read back from the
// trace store.
type TraceEvent struct {
	Type  string `json:"type"` // "write" or "fire"
	Cycle int64  `json:"cycle"`
	Seq   int64  `json:"seq"`

	// Write fields.
	Status   string `json:"status,omitempty"`
	Operator string `json:"operator,omitempty"`
	Value    string `json:"value,omitempty"`
	Applied  *bool  `json:"applied,omitempty"`

	// Fire fields.
	Expression string `json:"expression,omitempty"`
	Handler    string `json:"handler,omitempty"`
	Priority   int32  `json:"priority,omitempty"`
	Now        string `json:"now,omitempty"`
	Last       string `json:"last,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step ran and every assertion held.
	Pass bool `json:"pass"`

	// RunID is the id the trace was recorded under.
	RunID string `json:"run_id"`

	// Cycles is the number of cycles the engine ran.
	Cycles int64 `json:"cycles"`

	// Trace contains all writes and fires in (cycle, seq) order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains step and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Warnings contains static analysis findings, such as handler write
	// loops. Warnings never fail a scenario.
	Warnings []string `json:"warnings,omitempty"`

	// State maps every loaded status to its final value.
	State map[string]string `json:"state,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]string),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddRecord appends a trace record to the result.
func (r *Result) AddRecord(rec store.Record) {
	switch rec.Kind {
	case store.RecordWrite:
		applied := rec.Write.Applied
		r.Trace = append(r.Trace, TraceEvent{
			Type:     EventWrite,
			Cycle:    rec.Cycle,
			Seq:      rec.Seq,
			Status:   rec.Write.Status,
			Operator: rec.Write.Operator,
			Value:    rec.Write.Value,
			Applied:  &applied,
		})
	case store.RecordFire:
		r.Trace = append(r.Trace, TraceEvent{
			Type:       EventFire,
			Cycle:      rec.Cycle,
			Seq:        rec.Seq,
			Expression: rec.Fire.Expression,
			Handler:    rec.Fire.Handler,
			Priority:   rec.Fire.Priority,
			Now:        rec.Fire.Now,
			Last:       rec.Fire.Last,
		})
	}
}

// Fires returns the fire events of the trace in order.
func (r *Result) Fires() []TraceEvent {
	var fires []TraceEvent
	for _, e := range r.Trace {
		if e.Type == EventFire {
			fires = append(fires, e)
		}
	}
	return fires
}
