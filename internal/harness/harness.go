package harness

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/rulecore/internal/compiler"
	"github.com/roach88/rulecore/internal/engine"
	"github.com/roach88/rulecore/internal/modifier"
	"github.com/roach88/rulecore/internal/status"
	"github.com/roach88/rulecore/internal/store"
)

// DefaultRunID is the run id used when a scenario does not set one.
const DefaultRunID = "test-run-default"

// Harness is the test execution engine.
// It runs one scenario against a fresh engine, recording the trace to a
// store and reading it back for assertions.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	logger *slog.Logger
}

// Option configures a scenario run.
type Option func(*options)

type options struct {
	store  *store.Store
	logger *slog.Logger
	runIDs engine.RunIDGenerator
}

// WithStore records the trace into st instead of a private in-memory
// database. The caller keeps ownership of st.
func WithStore(st *store.Store) Option {
	return func(o *options) {
		o.store = st
	}
}

// WithLogger sets the logger for the harness and its engine.
// Default: logs are discarded.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRunIDGenerator overrides the scenario's run id. Use a unique
// generator when several runs share one store.
func WithRunIDGenerator(gen engine.RunIDGenerator) Option {
	return func(o *options) {
		o.runIDs = gen
	}
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh engine; without WithStore the trace goes to
// a fresh in-memory database. Deterministic run ids and the engine's
// logical clock make traces reproducible.
//
// Execution flow:
//  1. Compile spec files and merge inline chunks and handlers
//  2. Validate cross references; report handler write loops as warnings
//  3. Load chunks and register handlers
//  4. Execute steps
//  5. Read the trace back from the store and evaluate assertions
//
// Step failures (a run that does not settle) fail the result. Malformed
// scenarios return an error.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := &options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(o)
	}

	spec, err := scenarioSpec(scenario)
	if err != nil {
		return nil, err
	}
	if verrs := compiler.ValidateSpec(spec); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, e := range verrs {
			errs[i] = e
		}
		return nil, fmt.Errorf("invalid rules: %w", stderrors.Join(errs...))
	}

	st := o.store
	if st == nil {
		st, err = store.Open(":memory:")
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		defer st.Close()
	}

	runIDs := o.runIDs
	if runIDs == nil {
		runID := scenario.RunID
		if runID == "" {
			runID = DefaultRunID
		}
		runIDs = engine.NewFixedGenerator(runID)
	}

	engineOpts := []engine.EngineOption{
		engine.WithLogger(o.logger),
		engine.WithRecorder(st),
		engine.WithRunIDGenerator(runIDs),
		engine.WithRunInfo(scenario.Name, scenario.source, map[string]string{"kind": "scenario"}),
	}
	if scenario.MaxCycles > 0 {
		engineOpts = append(engineOpts, engine.WithMaxCycles(scenario.MaxCycles))
	}

	h := &Harness{
		store:  st,
		engine: engine.New(engineOpts...),
		logger: o.logger,
	}

	if err := h.load(spec); err != nil {
		return nil, err
	}

	result := NewResult()
	result.RunID = h.engine.RunID()
	for _, w := range compiler.AnalyzeCycles(spec) {
		result.Warnings = append(result.Warnings, w.Message)
	}

	if err := h.executeSteps(ctx, scenario.Steps, result); err != nil {
		return nil, fmt.Errorf("failed to execute steps: %w", err)
	}

	if err := h.collect(ctx, result); err != nil {
		return nil, err
	}

	actx := &AssertionContext{Engine: h.engine}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// scenarioSpec compiles the scenario's spec files and appends its inline
// chunks and handlers.
func scenarioSpec(scenario *Scenario) (*compiler.Spec, error) {
	spec, err := compiler.LoadFiles(scenario.Specs...)
	if err != nil {
		return nil, fmt.Errorf("failed to load specs: %w", err)
	}
	spec.Merge(&compiler.Spec{Chunks: scenario.Chunks, Handlers: scenario.Handlers})
	return spec, nil
}

// load loads chunks in order, then registers every handler with a script
// target that queues the handler's writes.
func (h *Harness) load(spec *compiler.Spec) error {
	for _, c := range spec.Chunks {
		if err := h.engine.LoadChunk(c); err != nil {
			return fmt.Errorf("failed to load chunk %s: %w", c.Name, err)
		}
	}
	for _, hs := range spec.Handlers {
		def, err := hs.Def()
		if err != nil {
			return err
		}
		script, err := newScriptHandler(h.engine, hs, h.logger)
		if err != nil {
			return fmt.Errorf("handler %s: %w", hs.Name, err)
		}
		if err := h.engine.RegisterHandler(hs.Chunk, def, nil, script); err != nil {
			return fmt.Errorf("failed to register handler %s: %w", hs.Name, err)
		}
	}
	return nil
}

// executeSteps runs all steps in order.
//
// A step that fails to settle is recorded on the result and the next step
// still runs.
func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) error {
	for i, step := range steps {
		for _, name := range step.Unload {
			if err := h.engine.UnloadChunk(name); err != nil {
				return fmt.Errorf("step %d: unload %s: %w", i, name, err)
			}
		}

		for _, w := range step.Writes {
			op, v, delay, err := w.Parse()
			if err != nil {
				return fmt.Errorf("step %d: write %s: %w", i, w.Status, err)
			}
			if err := h.engine.Write(w.Status, op, v, delay); err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
		}

		if step.Ticks > 0 {
			for range step.Ticks {
				if _, err := h.engine.Tick(ctx); err != nil {
					return fmt.Errorf("step %d: %w", i, err)
				}
			}
		} else if _, err := h.engine.Settle(ctx); err != nil {
			if !engine.IsCycleLimitError(err) {
				return fmt.Errorf("step %d: %w", i, err)
			}
			result.AddError(fmt.Sprintf("step %d: %v", i, err))
		}

		h.logger.Info("step completed",
			"step", i,
			"writes", len(step.Writes),
			"unloaded", len(step.Unload),
			"cycle", h.engine.Cycle(),
		)
	}
	return nil
}

// collect reads the recorded trace and the final statuses into result.
func (h *Harness) collect(ctx context.Context, result *Result) error {
	_, records, err := h.store.ReadRun(ctx, h.engine.RunID())
	if err != nil {
		return fmt.Errorf("failed to read trace: %w", err)
	}
	for _, rec := range records {
		result.AddRecord(rec)
	}
	result.Cycles = h.engine.Cycle()
	for name, v := range h.engine.Statuses() {
		result.State[name] = v.String()
	}
	return nil
}

// scriptHandler is the script target of a scenario handler. Each call
// queues the handler's writes for the next cycle.
type scriptHandler struct {
	engine *engine.Engine
	name   string
	writes []queuedWrite
	logger *slog.Logger
}

type queuedWrite struct {
	status string
	op     status.Operator
	value  status.Value
	delay  modifier.Delay
}

func newScriptHandler(eng *engine.Engine, hs compiler.HandlerSpec, logger *slog.Logger) (*scriptHandler, error) {
	sh := &scriptHandler{engine: eng, name: hs.Name, logger: logger}
	for _, w := range hs.Writes {
		op, v, delay, err := w.Parse()
		if err != nil {
			return nil, fmt.Errorf("write %s: %w", w.Status, err)
		}
		sh.writes = append(sh.writes, queuedWrite{status: w.Status, op: op, value: v, delay: delay})
	}
	return sh, nil
}

// Call implements handler.Delegate.
func (s *scriptHandler) Call(_ status.Key, now, last status.Evaluation) {
	for _, w := range s.writes {
		if err := s.engine.Write(w.status, w.op, w.value, w.delay); err != nil {
			s.logger.Warn("handler write dropped",
				"handler", s.name,
				"status", w.status,
				"now", now.String(),
				"last", last.String(),
				"error", err,
			)
		}
	}
}
