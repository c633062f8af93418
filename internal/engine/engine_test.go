package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulecore/internal/expression"
	"github.com/roach88/rulecore/internal/handler"
	"github.com/roach88/rulecore/internal/modifier"
	"github.com/roach88/rulecore/internal/reservoir"
	"github.com/roach88/rulecore/internal/status"
	"github.com/roach88/rulecore/internal/store"
)

var (
	anyChange  = handler.MakeCondition(true, true, true, true, true, true)
	becameTrue = handler.MakeCondition(true, false, false, false, true, true)
	nowFailed  = handler.MakeCondition(false, false, true, true, true, false)
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func heroChunk() ChunkDef {
	return ChunkDef{
		Name: "hero",
		Statuses: []reservoir.Row{
			{Name: "hp", Kind: "UNSIGNED_8", Value: "100"},
			{Name: "alive", Kind: "BOOL", Value: "true"},
		},
		Expressions: []expression.Row{
			{Name: "low_hp", Comparisons: []expression.ComparisonRow{{Status: "hp", Op: "<", Value: "30"}}},
			{Name: "dead", Comparisons: []expression.ComparisonRow{{Status: "hp", Op: "==", Value: "0"}}},
		},
	}
}

func makeTestEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	opts = append([]EngineOption{
		WithLogger(discardLogger()),
		WithRunIDGenerator(NewFixedGenerator("run-1")),
	}, opts...)
	e := New(opts...)
	require.NoError(t, e.LoadChunk(heroChunk()))
	return e
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type fireLog struct {
	names []string
}

func (l *fireLog) fn(name string) handler.Func {
	return func(key status.Key, now, last status.Evaluation) {
		l.names = append(l.names, name+":"+last.String()+"->"+now.String())
	}
}

func TestEngine_LoadChunk_Errors(t *testing.T) {
	e := makeTestEngine(t)

	err := e.LoadChunk(heroChunk())
	assert.True(t, HasCode(err, ErrCodeDuplicateChunk))

	err = e.LoadChunk(ChunkDef{Name: "other", Statuses: []reservoir.Row{{Name: "hp", Kind: "BOOL"}}})
	assert.True(t, HasCode(err, ErrCodeDuplicateStatus))

	err = e.LoadChunk(ChunkDef{Name: "bad", Statuses: []reservoir.Row{
		{Name: "ok", Kind: "BOOL"},
		{Name: "broken", Kind: "UNSIGNED_4", Value: "99"},
	}})
	require.True(t, HasCode(err, ErrCodeInvalidFormat))
	assert.Contains(t, err.Error(), "broken")
	_, err = e.Value("ok")
	assert.True(t, IsUnknownError(err), "failed load is rolled back")

	err = e.LoadChunk(ChunkDef{
		Name:        "exprs",
		Statuses:    []reservoir.Row{{Name: "mana", Kind: "UNSIGNED"}},
		Expressions: []expression.Row{{Name: "no_mana", Comparisons: []expression.ComparisonRow{{Status: "mana", Op: "??", Value: "0"}}}},
	})
	assert.True(t, HasCode(err, ErrCodeInvalidExpression))
	_, err = e.Value("mana")
	assert.True(t, HasCode(err, ErrCodeUnknownStatus))

	assert.True(t, HasCode(e.LoadChunk(ChunkDef{}), ErrCodeInvalidFormat))
	assert.Equal(t, []string{"hero"}, e.Chunks())
}

func TestEngine_TickAppliesWritesThenFires(t *testing.T) {
	e := makeTestEngine(t)
	log := &fireLog{}
	require.NoError(t, e.RegisterHandler("ui", HandlerDef{Name: "warn", Expression: "low_hp", Condition: becameTrue}, log.fn("warn"), nil))

	c, err := e.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Number)
	assert.Empty(t, c.Fires, "failed -> false does not match")

	require.NoError(t, e.Write("hp", status.Copy, status.Unsigned(10), modifier.NonBlock))
	c, err = e.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, c.Applied)
	require.Len(t, c.Writes, 1)
	assert.Equal(t, store.Write{RunID: "run-1", Cycle: 2, Seq: 1, Status: "hp", Operator: ":=", Value: "10", Applied: true}, c.Writes[0])
	require.Len(t, c.Fires, 1)
	assert.Equal(t, store.Fire{RunID: "run-1", Cycle: 2, Seq: 2, Expression: "low_hp", Handler: "warn", Now: "true", Last: "false"}, c.Fires[0])
	assert.Equal(t, []string{"warn:false->true"}, log.names)
}

func TestEngine_FreshStatusDefersFirstWrite(t *testing.T) {
	e := makeTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.Write("hp", status.Copy, status.Unsigned(50), modifier.NonBlock))

	c, err := e.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Applied, "a freshly loaded status counts as changed")
	assert.Equal(t, 1, c.Pending)

	c, err = e.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Applied)
}

func TestEngine_SecondWriteWaitsForNextCycle(t *testing.T) {
	e := makeTestEngine(t)
	ctx := context.Background()
	_, err := e.Tick(ctx)
	require.NoError(t, err)

	require.NoError(t, e.Write("hp", status.Copy, status.Unsigned(50), modifier.NonBlock))
	require.NoError(t, e.Write("hp", status.Copy, status.Unsigned(20), modifier.NonBlock))

	c, err := e.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Applied)
	assert.Equal(t, 1, c.Pending)
	v, _ := e.Value("hp")
	assert.Equal(t, status.Unsigned(50), v)

	_, err = e.Tick(ctx)
	require.NoError(t, err)
	v, _ = e.Value("hp")
	assert.Equal(t, status.Unsigned(20), v)
	assert.Equal(t, 0, e.Pending())
}

func TestEngine_RejectedWriteIsRecorded(t *testing.T) {
	e := makeTestEngine(t)
	_, err := e.Tick(context.Background())
	require.NoError(t, err)
	require.NoError(t, e.Write("hp", status.Copy, status.Unsigned(300), modifier.NonBlock))

	c, err := e.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, c.Applied)
	require.Len(t, c.Writes, 1)
	assert.False(t, c.Writes[0].Applied)

	v, _ := e.Value("hp")
	assert.Equal(t, status.Unsigned(100), v)
}

func TestEngine_SettleRunsHandlerWrites(t *testing.T) {
	e := makeTestEngine(t)
	fn := func(status.Key, status.Evaluation, status.Evaluation) {
		require.NoError(t, e.Write("alive", status.Copy, status.Bool(false), modifier.NonBlock))
	}
	require.NoError(t, e.RegisterHandler("rules", HandlerDef{Name: "die", Expression: "dead", Condition: becameTrue}, fn, nil))
	_, err := e.Tick(context.Background())
	require.NoError(t, err)

	require.NoError(t, e.Write("hp", status.Sub, status.Unsigned(100), modifier.NonBlock))
	cycles, err := e.Settle(context.Background())
	require.NoError(t, err)
	assert.Len(t, cycles, 2)

	alive, err := e.Value("alive")
	require.NoError(t, err)
	assert.Equal(t, status.Bool(false), alive)
	assert.Equal(t, int64(3), e.Cycle())
}

func TestEngine_SettleCycleLimit(t *testing.T) {
	e := makeTestEngine(t, WithMaxCycles(5))
	require.NoError(t, e.LoadChunk(ChunkDef{
		Name:        "blink",
		Statuses:    []reservoir.Row{{Name: "lamp", Kind: "BOOL", Value: "true"}},
		Expressions: []expression.Row{{Name: "lamp_on", Comparisons: []expression.ComparisonRow{{Status: "lamp", Op: "==", Value: "true"}}}},
	}))
	toggle := func(_ status.Key, now, _ status.Evaluation) {
		e.Accumulate(status.MakeKey("lamp"), status.Bool(now != status.True), modifier.NonBlock)
	}
	require.NoError(t, e.RegisterHandler("blink", HandlerDef{Name: "toggle", Expression: "lamp_on", Condition: anyChange}, toggle, nil))

	cycles, err := e.Settle(context.Background())
	require.Error(t, err)
	assert.True(t, IsCycleLimitError(err))
	assert.Len(t, cycles, 5)
}

func TestEngine_UnloadChunk(t *testing.T) {
	e := makeTestEngine(t)
	ctx := context.Background()
	ui := &fireLog{}
	watch := &fireLog{}
	require.NoError(t, e.RegisterHandler("ui", HandlerDef{Name: "ui", Expression: "low_hp", Condition: anyChange}, ui.fn("ui"), nil))
	require.NoError(t, e.RegisterHandler("watch", HandlerDef{Name: "watch", Expression: "low_hp", Condition: nowFailed}, watch.fn("watch"), nil))

	_, err := e.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ui:failed->false"}, ui.names)

	require.NoError(t, e.UnloadChunk("ui"))
	require.NoError(t, e.Write("hp", status.Copy, status.Unsigned(5), modifier.NonBlock))
	_, err = e.Tick(ctx)
	require.NoError(t, err)
	assert.Len(t, ui.names, 1, "revoked handler is not called")

	require.NoError(t, e.UnloadChunk("hero"))
	c, err := e.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"watch:true->failed"}, watch.names)
	require.Len(t, c.Fires, 1)
	assert.Equal(t, "low_hp", c.Fires[0].Expression)

	assert.True(t, HasCode(e.UnloadChunk("hero"), ErrCodeUnknownChunk))
	_, err = e.Evaluate("low_hp")
	assert.True(t, HasCode(err, ErrCodeUnknownExpression))
}

func TestEngine_UnloadExpressionChunkKeepsStatuses(t *testing.T) {
	e := makeTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.LoadChunk(ChunkDef{
		Name:        "derived",
		Expressions: []expression.Row{{Name: "healthy", Comparisons: []expression.ComparisonRow{{Status: "hp", Op: ">", Value: "50"}}}},
	}))
	watch := &fireLog{}
	require.NoError(t, e.RegisterHandler("ui", HandlerDef{Name: "watch", Expression: "healthy", Condition: anyChange}, watch.fn("watch"), nil))

	_, err := e.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"watch:failed->true"}, watch.names)

	require.NoError(t, e.UnloadChunk("derived"))
	c, err := e.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"watch:failed->true", "watch:true->failed"}, watch.names)
	require.Len(t, c.Fires, 1)
	assert.Equal(t, "healthy", c.Fires[0].Expression)

	_, err = e.Tick(ctx)
	require.NoError(t, err)
	assert.Len(t, watch.names, 2)

	v, err := e.Value("hp")
	require.NoError(t, err)
	assert.Equal(t, status.Unsigned(100), v)
}

type countingDelegate struct {
	calls int
}

func (d *countingDelegate) Call(status.Key, status.Evaluation, status.Evaluation) { d.calls++ }

func TestEngine_ScriptHandlers(t *testing.T) {
	e := makeTestEngine(t)
	script := &countingDelegate{}
	both := &countingDelegate{}
	native := &fireLog{}
	require.NoError(t, e.RegisterHandler("mods", HandlerDef{Name: "script", Expression: "low_hp", Condition: anyChange, Priority: 2}, nil, script))
	require.NoError(t, e.RegisterHandler("mods", HandlerDef{Name: "both", Expression: "low_hp", Condition: anyChange, Priority: 1}, native.fn("both"), both))

	c, err := e.Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, c.Fires, 2)
	assert.Equal(t, "both", c.Fires[0].Handler)
	assert.Equal(t, "script", c.Fires[1].Handler)
	assert.Equal(t, 1, script.calls)
	assert.Equal(t, 1, both.calls)
	assert.Len(t, native.names, 1)

	require.NoError(t, e.UnloadChunk("mods"))
	require.NoError(t, e.Write("hp", status.Copy, status.Unsigned(1), modifier.NonBlock))
	_, err = e.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, script.calls, "script handler revoked with its chunk")
	assert.Equal(t, 1, both.calls)
}

func TestEngine_RegisterHandler_Errors(t *testing.T) {
	e := makeTestEngine(t)
	log := &fireLog{}

	err := e.RegisterHandler("", HandlerDef{Expression: "low_hp", Condition: anyChange}, log.fn("x"), nil)
	assert.True(t, HasCode(err, ErrCodeInvalidHandler))
	err = e.RegisterHandler("ui", HandlerDef{Condition: anyChange}, log.fn("x"), nil)
	assert.True(t, HasCode(err, ErrCodeInvalidHandler))
	err = e.RegisterHandler("ui", HandlerDef{Expression: "low_hp", Condition: anyChange}, nil, nil)
	assert.True(t, HasCode(err, ErrCodeInvalidHandler))
	err = e.RegisterHandler("ui", HandlerDef{Expression: "low_hp", Condition: handler.ConditionInvalid}, log.fn("x"), nil)
	assert.True(t, HasCode(err, ErrCodeInvalidHandler))
}

func TestEngine_TickReentered(t *testing.T) {
	e := makeTestEngine(t)
	var nested error
	fn := func(status.Key, status.Evaluation, status.Evaluation) {
		_, nested = e.Tick(context.Background())
	}
	require.NoError(t, e.RegisterHandler("ui", HandlerDef{Expression: "low_hp", Condition: anyChange}, fn, nil))

	_, err := e.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, HasCode(nested, ErrCodeDispatchReentered))
}

func TestEngine_TickCancelled(t *testing.T) {
	e := makeTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Tick(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), e.Cycle())
}

func TestEngine_UnknownNames(t *testing.T) {
	e := makeTestEngine(t)

	err := e.Write("mana", status.Copy, status.Unsigned(1), modifier.NonBlock)
	assert.True(t, HasCode(err, ErrCodeUnknownStatus))

	var re *RuntimeError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "mana", re.Name)
	assert.Equal(t, "run-1", re.RunID)

	_, err = e.Evaluate("nope")
	assert.True(t, IsUnknownError(err))

	got, err := e.Evaluate("low_hp")
	require.NoError(t, err)
	assert.Equal(t, status.False, got)
}

func TestEngine_Statuses(t *testing.T) {
	e := makeTestEngine(t)
	got := map[string]status.Value{}
	for name, v := range e.Statuses() {
		got[name] = v
	}
	assert.Equal(t, map[string]status.Value{
		"hp":    status.Unsigned(100),
		"alive": status.Bool(true),
	}, got)
}

func TestEngine_RecordsToStore(t *testing.T) {
	s := setupTestStore(t)
	e := makeTestEngine(t, WithRecorder(s), WithRunInfo("hero-test", "hero.yaml", map[string]string{"suite": "unit"}))
	log := &fireLog{}
	require.NoError(t, e.RegisterHandler("ui", HandlerDef{Name: "warn", Expression: "low_hp", Condition: becameTrue}, log.fn("warn"), nil))

	ctx := context.Background()
	require.NoError(t, e.Write("hp", status.Copy, status.Unsigned(10), modifier.NonBlock))
	_, err := e.Settle(ctx)
	require.NoError(t, err)

	run, records, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "hero-test", run.Name)
	assert.Equal(t, "unit", run.Labels["suite"])
	require.Len(t, records, 2)
	assert.Equal(t, store.RecordWrite, records[0].Kind)
	assert.Equal(t, "hp", records[0].Write.Status)
	assert.Equal(t, store.RecordFire, records[1].Kind)
	assert.Equal(t, "warn", records[1].Fire.Handler)
}

type failingRecorder struct {
	calls int
}

func (r *failingRecorder) BeginRun(context.Context, store.Run) error {
	r.calls++
	return errors.New("disk full")
}

func (r *failingRecorder) RecordWrite(context.Context, store.Write) error {
	r.calls++
	return errors.New("disk full")
}

func (r *failingRecorder) RecordFire(context.Context, store.Fire) error {
	r.calls++
	return errors.New("disk full")
}

func TestEngine_RecorderFailureDoesNotStopCycle(t *testing.T) {
	rec := &failingRecorder{}
	e := makeTestEngine(t, WithRecorder(rec))
	_, err := e.Tick(context.Background())
	require.NoError(t, err)
	require.NoError(t, e.Write("hp", status.Copy, status.Unsigned(10), modifier.NonBlock))

	c, err := e.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, c.Applied)
	assert.Equal(t, 2, rec.calls, "begin run + one write")
}

func TestEngine_RunProcessesSubmissions(t *testing.T) {
	e := makeTestEngine(t)
	log := &fireLog{}
	require.NoError(t, e.RegisterHandler("ui", HandlerDef{Name: "warn", Expression: "low_hp", Condition: becameTrue}, log.fn("warn"), nil))

	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(context.Background()) }()

	require.True(t, e.Submit("hp", status.Copy, status.Unsigned(10), modifier.NonBlock))
	e.Stop()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}

	v, err := e.Value("hp")
	require.NoError(t, err)
	assert.Equal(t, status.Unsigned(10), v)
	assert.Equal(t, []string{"warn:false->true"}, log.names)
	assert.False(t, e.Submit("hp", status.Copy, status.Unsigned(1), modifier.NonBlock), "stopped engine rejects submissions")
}

func TestEngine_RunStopsOnCancel(t *testing.T) {
	e := makeTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
