package engine

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/roach88/rulecore/internal/dispatcher"
	"github.com/roach88/rulecore/internal/expression"
	"github.com/roach88/rulecore/internal/handler"
	"github.com/roach88/rulecore/internal/modifier"
	"github.com/roach88/rulecore/internal/reservoir"
	"github.com/roach88/rulecore/internal/sorted"
	"github.com/roach88/rulecore/internal/status"
	"github.com/roach88/rulecore/internal/store"
)

// Recorder receives the trace of a run. Implemented by *store.Store.
type Recorder interface {
	BeginRun(ctx context.Context, run store.Run) error
	RecordWrite(ctx context.Context, w store.Write) error
	RecordFire(ctx context.Context, f store.Fire) error
}

// Cycle summarizes one Tick.
type Cycle struct {
	Number  int64
	Applied int
	Pending int
	Writes  []store.Write
	Fires   []store.Fire
}

// Engine drives the reservoir, expressions, handlers and modifier through
// update cycles.
//
// CRITICAL: Everything except Submit and Stop must be called from one
// goroutine. Handlers run on that goroutine, inside Tick, and may call
// Write or Accumulate; their writes apply on the next cycle.
type Engine struct {
	reservoir  *reservoir.Reservoir
	evaluator  *expression.Evaluator
	dispatcher *dispatcher.Dispatcher
	modifier   *modifier.Modifier
	handlers   handler.Chunks
	chunks     sorted.Map[status.Key, loadedChunk]

	clock     *Clock
	queue     *submitQueue
	logger    *slog.Logger
	recorder  Recorder
	runIDs    RunIDGenerator
	runID     string
	run       store.Run
	begun     bool
	ticking   bool
	maxCycles int

	names        map[status.Key]string
	handlerNames map[*handler.Callback]string
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRecorder sends the run trace to r.
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithRunID fixes the run id instead of generating one.
func WithRunID(id string) EngineOption {
	return func(e *Engine) {
		e.runID = id
	}
}

// WithRunIDGenerator sets the run id generator. Default: UUIDv7Generator.
func WithRunIDGenerator(gen RunIDGenerator) EngineOption {
	return func(e *Engine) {
		e.runIDs = gen
	}
}

// WithRunInfo names the run in the trace log.
func WithRunInfo(name, source string, labels map[string]string) EngineOption {
	return func(e *Engine) {
		e.run.Name = name
		e.run.Source = source
		e.run.Labels = labels
	}
}

// WithClock resumes cycle numbering from c.
func WithClock(c *Clock) EngineOption {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithMaxCycles bounds Settle. Default: DefaultMaxCycles.
func WithMaxCycles(n int) EngineOption {
	return func(e *Engine) {
		e.maxCycles = n
	}
}

// New creates an empty Engine.
func New(opts ...EngineOption) *Engine {
	e := &Engine{
		reservoir:    reservoir.New(),
		evaluator:    expression.New(),
		clock:        NewClock(),
		queue:        newSubmitQueue(),
		logger:       slog.Default(),
		runIDs:       UUIDv7Generator{},
		maxCycles:    DefaultMaxCycles,
		names:        make(map[status.Key]string),
		handlerNames: make(map[*handler.Callback]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.runID == "" {
		e.runID = e.runIDs.Generate()
	}
	e.run.ID = e.runID
	e.dispatcher = dispatcher.New(e.logger)
	e.modifier = modifier.New(e.logger)
	return e
}

// RunID returns the id this engine records its trace under.
func (e *Engine) RunID() string {
	return e.runID
}

// Cycle returns the number of the last completed cycle.
func (e *Engine) Cycle() int64 {
	return e.clock.Current()
}

// Tick runs one update cycle: drain submissions, apply queued writes, then
// dispatch handlers on the resulting transitions.
//
// Calling Tick from inside a handler returns a DISPATCH_REENTERED error.
// Recorder failures are logged and the cycle still completes.
func (e *Engine) Tick(ctx context.Context) (Cycle, error) {
	if err := ctx.Err(); err != nil {
		return Cycle{}, err
	}
	if e.ticking {
		e.logger.Warn("tick re-entered from a handler", "run_id", e.runID)
		return Cycle{}, newRuntimeError(ErrCodeDispatchReentered, e.runID, "", "tick called while a cycle is running")
	}
	e.ticking = true
	defer func() { e.ticking = false }()

	for _, s := range e.queue.Drain() {
		e.modifier.AccumulateAssignment(s.Assignment, s.Delay)
	}
	e.beginRun(ctx)

	cycle := Cycle{Number: e.clock.Next()}
	var seq int64

	rec := &recordingReservoir{Reservoir: e.reservoir}
	cycle.Applied = e.modifier.Modify(rec)
	for _, at := range rec.attempts {
		seq++
		cycle.Writes = append(cycle.Writes, store.Write{
			RunID:    e.runID,
			Cycle:    cycle.Number,
			Seq:      seq,
			Status:   e.nameOf(at.assignment.Key),
			Operator: at.assignment.Operator.String(),
			Value:    at.assignment.Value.String(),
			Applied:  at.applied,
		})
	}

	for _, c := range e.dispatcher.Dispatch(e.evaluator, e.reservoir) {
		seq++
		cycle.Fires = append(cycle.Fires, store.Fire{
			RunID:      e.runID,
			Cycle:      cycle.Number,
			Seq:        seq,
			Expression: e.nameOf(c.Key),
			Handler:    e.handlerName(c.Handler.Target),
			Priority:   int32(c.Handler.Priority),
			Now:        c.Now.String(),
			Last:       c.Last.String(),
		})
	}
	cycle.Pending = e.modifier.Len()

	e.record(ctx, cycle)

	e.logger.Debug("cycle complete",
		"run_id", e.runID,
		"cycle", cycle.Number,
		"applied", cycle.Applied,
		"fired", len(cycle.Fires),
		"pending", cycle.Pending,
	)
	return cycle, nil
}

// Settle ticks until no writes are pending, running at least one cycle.
// Returns the cycles run. Fails with CYCLE_LIMIT_EXCEEDED when writes are
// still pending after the configured maximum.
func (e *Engine) Settle(ctx context.Context) ([]Cycle, error) {
	quota := newCycleQuota(e.maxCycles)
	var cycles []Cycle
	for {
		if err := quota.Check(e.runID, e.Pending()); err != nil {
			e.logger.Error("run did not settle",
				"run_id", e.runID,
				"cycles", len(cycles),
				"limit", e.maxCycles,
				"pending", e.Pending(),
			)
			return cycles, err
		}
		c, err := e.Tick(ctx)
		if err != nil {
			return cycles, fmt.Errorf("tick: %w", err)
		}
		cycles = append(cycles, c)
		if e.Pending() == 0 {
			return cycles, nil
		}
	}
}

// Run is the single-writer loop: it waits for submissions and settles the
// engine after each batch. Blocks until ctx is cancelled or Stop is called.
//
// A batch that fails to settle is logged and the loop continues.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting", "run_id", e.runID)
	for {
		if e.queue.Len() > 0 {
			if _, err := e.Settle(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				e.logger.Error("settle failed", "run_id", e.runID, "error", err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled", "run_id", e.runID)
			e.queue.Close()
			return ctx.Err()
		case _, ok := <-e.queue.Wait():
			if !ok && e.queue.Len() == 0 {
				e.logger.Info("engine stopping: queue closed", "run_id", e.runID)
				return nil
			}
		}
	}
}

// Stop closes the submission queue; Run returns once it is drained.
// Safe to call from any goroutine.
func (e *Engine) Stop() {
	e.queue.Close()
}

// Submit queues a write from any goroutine. It is applied by the next
// Tick. Returns false once the engine is stopped.
func (e *Engine) Submit(name string, op status.Operator, v status.Value, delay modifier.Delay) bool {
	return e.queue.Enqueue(Submission{
		Assignment: status.Assignment{Key: status.MakeKey(name), Operator: op, Value: v},
		Delay:      delay,
	})
}

// Write queues "name op= v" for the next cycle.
// Fails with UNKNOWN_STATUS when no loaded chunk defines name.
func (e *Engine) Write(name string, op status.Operator, v status.Value, delay modifier.Delay) error {
	key := status.MakeKey(name)
	if _, ok := e.reservoir.Descriptor(key); !ok {
		return newRuntimeError(ErrCodeUnknownStatus, e.runID, name, "status is not registered")
	}
	e.modifier.AccumulateAssignment(status.Assignment{Key: key, Operator: op, Value: v}, delay)
	return nil
}

// Accumulate queues "key := v" without checking the key.
func (e *Engine) Accumulate(key status.Key, v status.Value, delay modifier.Delay) {
	e.modifier.Accumulate(key, v, delay)
}

// Pending returns the number of writes waiting for a cycle.
func (e *Engine) Pending() int {
	return e.modifier.Len() + e.queue.Len()
}

// Value returns the current value of a status.
func (e *Engine) Value(name string) (status.Value, error) {
	v := e.reservoir.GetValue(status.MakeKey(name))
	if v.IsEmpty() {
		return v, newRuntimeError(ErrCodeUnknownStatus, e.runID, name, "status is not registered")
	}
	return v, nil
}

// Evaluate computes an expression against current values.
func (e *Engine) Evaluate(name string) (status.Evaluation, error) {
	key := status.MakeKey(name)
	if _, ok := e.evaluator.Find(key); !ok {
		return status.Failed, newRuntimeError(ErrCodeUnknownExpression, e.runID, name, "expression is not registered")
	}
	return e.evaluator.Evaluate(key, e.reservoir), nil
}

// Statuses iterates every loaded status by name, in key order.
func (e *Engine) Statuses() iter.Seq2[string, status.Value] {
	return func(yield func(string, status.Value) bool) {
		for key, v := range e.reservoir.Statuses() {
			if !yield(e.nameOf(key), v) {
				return
			}
		}
	}
}

func (e *Engine) nameOf(key status.Key) string {
	if name, ok := e.names[key]; ok {
		return name
	}
	return fmt.Sprintf("#%08x", uint32(key))
}

func (e *Engine) beginRun(ctx context.Context) {
	if e.begun || e.recorder == nil {
		return
	}
	e.begun = true
	if err := e.recorder.BeginRun(ctx, e.run); err != nil {
		e.logger.Error("begin run failed", "run_id", e.runID, "error", err)
	}
}

// record sends a cycle to the recorder. Failures are logged and dropped;
// the trace is a side channel and never changes engine state.
func (e *Engine) record(ctx context.Context, c Cycle) {
	if e.recorder == nil {
		return
	}
	for _, w := range c.Writes {
		if err := e.recorder.RecordWrite(ctx, w); err != nil {
			e.logger.Error("record write failed",
				"run_id", e.runID, "cycle", w.Cycle, "seq", w.Seq, "status", w.Status, "error", err)
		}
	}
	for _, f := range c.Fires {
		if err := e.recorder.RecordFire(ctx, f); err != nil {
			e.logger.Error("record fire failed",
				"run_id", e.runID, "cycle", f.Cycle, "seq", f.Seq, "expression", f.Expression, "error", err)
		}
	}
}

type attempt struct {
	assignment status.Assignment
	applied    bool
}

// recordingReservoir notes every write the modifier attempts.
type recordingReservoir struct {
	*reservoir.Reservoir
	attempts []attempt
}

func (r *recordingReservoir) AssignStatus(a status.Assignment) bool {
	ok := r.Reservoir.AssignStatus(a)
	r.attempts = append(r.attempts, attempt{assignment: a, applied: ok})
	return ok
}
