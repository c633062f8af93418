package dispatcher

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulecore/internal/expression"
	"github.com/roach88/rulecore/internal/handler"
	"github.com/roach88/rulecore/internal/reservoir"
	"github.com/roach88/rulecore/internal/status"
)

var (
	chunkMain = status.MakeKey("main")
	hp        = status.MakeKey("hp")
	lowHP     = status.MakeKey("low_hp")
)

type fixture struct {
	r  *reservoir.Reservoir
	ev *expression.Evaluator
	d  *Dispatcher
}

func makeTestFixture(t *testing.T) *fixture {
	t.Helper()
	r := reservoir.New()
	require.True(t, r.RegisterUnsigned(chunkMain, hp, 100, 8))
	ev := expression.New()
	require.True(t, ev.RegisterComparisons(chunkMain, lowHP, expression.And, []expression.Comparison{
		{Status: hp, Operator: status.Less, Value: status.Unsigned(30)},
	}))
	return &fixture{r: r, ev: ev, d: New(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))}
}

func (f *fixture) dispatch() []handler.Cache {
	return f.d.Dispatch(f.ev, f.r)
}

type recorder struct {
	names []string
}

func (rec *recorder) callback(name string) *handler.Callback {
	return handler.NewCallback(func(status.Key, status.Evaluation, status.Evaluation) {
		rec.names = append(rec.names, name)
	})
}

var (
	anyChange   = handler.MakeCondition(true, true, true, true, true, true)
	becameTrue  = handler.MakeCondition(true, false, false, false, true, true)
	becameFalse = handler.MakeCondition(false, true, false, true, false, false)
)

func TestDispatch_FirstDispatchReportsInitialEvaluation(t *testing.T) {
	f := makeTestFixture(t)
	rec := &recorder{}
	require.True(t, f.d.RegisterHandler(lowHP, handler.New(anyChange, 0, handler.NativeTarget(rec.callback("any")))))

	fired := f.dispatch()
	require.Len(t, fired, 1)
	assert.Equal(t, status.False, fired[0].Now)
	assert.Equal(t, status.Failed, fired[0].Last)
	assert.Equal(t, []string{"any"}, rec.names)

	assert.Empty(t, f.dispatch(), "no change, no call")
	assert.Equal(t, int8(0), f.r.Transition(hp), "dispatch resets transitions")
}

func TestDispatch_FiresOnlyOnMatchingTransition(t *testing.T) {
	f := makeTestFixture(t)
	rec := &recorder{}
	require.True(t, f.d.RegisterHandler(lowHP, handler.New(becameTrue, 0, handler.NativeTarget(rec.callback("low")))))
	require.True(t, f.d.RegisterHandler(lowHP, handler.New(becameFalse, 0, handler.NativeTarget(rec.callback("recovered")))))
	f.dispatch()
	rec.names = nil

	require.True(t, f.r.SetValue(hp, status.Unsigned(10)))
	f.dispatch()
	assert.Equal(t, []string{"low"}, rec.names)

	require.True(t, f.r.SetValue(hp, status.Unsigned(20)))
	f.dispatch()
	assert.Equal(t, []string{"low"}, rec.names, "still true, no transition")

	require.True(t, f.r.SetValue(hp, status.Unsigned(90)))
	f.dispatch()
	assert.Equal(t, []string{"low", "recovered"}, rec.names)
}

func TestDispatch_RevertWithinCycleIsNotObserved(t *testing.T) {
	f := makeTestFixture(t)
	rec := &recorder{}
	require.True(t, f.d.RegisterHandler(lowHP, handler.New(anyChange, 0, handler.NativeTarget(rec.callback("any")))))
	f.dispatch()
	rec.names = nil

	require.True(t, f.r.SetValue(hp, status.Unsigned(10)))
	require.True(t, f.r.SetValue(hp, status.Unsigned(100)))
	f.dispatch()
	assert.Empty(t, rec.names)
}

func TestDispatch_PriorityOrderAcrossExpressions(t *testing.T) {
	f := makeTestFixture(t)
	highHP := status.MakeKey("high_hp")
	require.True(t, f.ev.RegisterComparisons(chunkMain, highHP, expression.And, []expression.Comparison{
		{Status: hp, Operator: status.GreaterEqual, Value: status.Unsigned(50)},
	}))

	rec := &recorder{}
	require.True(t, f.d.RegisterHandler(lowHP, handler.New(anyChange, 5, handler.NativeTarget(rec.callback("low/5")))))
	require.True(t, f.d.RegisterHandler(highHP, handler.New(anyChange, 1, handler.NativeTarget(rec.callback("high/1")))))
	require.True(t, f.d.RegisterHandler(highHP, handler.New(anyChange, 5, handler.NativeTarget(rec.callback("high/5")))))
	require.True(t, f.d.RegisterHandler(lowHP, handler.New(anyChange, -1, handler.NativeTarget(rec.callback("low/-1")))))

	f.dispatch()

	// Ties keep expression key order, then registration order.
	first, second := "low/5", "high/5"
	if highHP < lowHP {
		first, second = second, first
	}
	assert.Equal(t, []string{"low/-1", "high/1", first, second}, rec.names)
}

func TestDispatch_HandlerBeforeExpression(t *testing.T) {
	f := makeTestFixture(t)
	later := status.MakeKey("later")
	rec := &recorder{}
	require.True(t, f.d.RegisterHandler(later, handler.New(anyChange, 0, handler.NativeTarget(rec.callback("later")))))

	assert.Empty(t, f.dispatch(), "expression not registered yet")

	require.True(t, f.ev.RegisterComparisons(chunkMain, later, expression.And, []expression.Comparison{
		{Status: hp, Operator: status.Equal, Value: status.Unsigned(100)},
	}))
	fired := f.dispatch()
	require.Len(t, fired, 1)
	assert.Equal(t, status.True, fired[0].Now)
}

func TestDispatch_RemovedStatusFailsExpression(t *testing.T) {
	f := makeTestFixture(t)
	rec := &recorder{}
	failed := handler.MakeCondition(false, false, true, true, true, false)
	require.True(t, f.d.RegisterHandler(lowHP, handler.New(failed, 0, handler.NativeTarget(rec.callback("failed")))))
	f.dispatch()

	require.True(t, f.r.EraseChunk(chunkMain))
	fired := f.dispatch()
	require.Len(t, fired, 1)
	assert.Equal(t, status.Failed, fired[0].Now)
	assert.Equal(t, status.False, fired[0].Last)
	assert.Equal(t, []string{"failed"}, rec.names)
}

func TestDispatch_RemovedExpressionFailsWithStatusesLoaded(t *testing.T) {
	f := makeTestFixture(t)
	chunkDerived := status.MakeKey("derived")
	healthy := status.MakeKey("healthy")
	require.True(t, f.ev.RegisterComparisons(chunkDerived, healthy, expression.And, []expression.Comparison{
		{Status: hp, Operator: status.Greater, Value: status.Unsigned(50)},
	}))
	rec := &recorder{}
	require.True(t, f.d.RegisterHandler(healthy, handler.New(anyChange, 0, handler.NativeTarget(rec.callback("watch")))))

	fired := f.dispatch()
	require.Len(t, fired, 1)
	assert.Equal(t, status.True, fired[0].Now)

	require.True(t, f.ev.EraseChunk(chunkDerived))
	f.d.Refresh(healthy)
	fired = f.dispatch()
	require.Len(t, fired, 1)
	assert.Equal(t, status.Failed, fired[0].Now)
	assert.Equal(t, status.True, fired[0].Last)

	assert.Empty(t, f.dispatch(), "failure is reported once")
	assert.Equal(t, []string{"watch", "watch"}, rec.names)
}

func TestDispatch_RevokedCallbacksArePruned(t *testing.T) {
	f := makeTestFixture(t)
	rec := &recorder{}
	cb := rec.callback("gone")
	require.True(t, f.d.RegisterHandler(lowHP, handler.New(anyChange, 0, handler.NativeTarget(cb))))
	cb.Revoke()

	assert.Empty(t, f.dispatch())
	assert.Empty(t, rec.names)
	assert.Equal(t, 0, f.d.HandlerCount(lowHP))
}

func TestDispatch_NestedDispatchIsRefused(t *testing.T) {
	f := makeTestFixture(t)
	var nested []handler.Cache
	ran := false
	cb := handler.NewCallback(func(status.Key, status.Evaluation, status.Evaluation) {
		ran = true
		nested = f.dispatch()
	})
	require.True(t, f.d.RegisterHandler(lowHP, handler.New(anyChange, 0, handler.NativeTarget(cb))))

	f.dispatch()
	assert.True(t, ran)
	assert.Nil(t, nested)
}

func TestRegisterHandler_Rejects(t *testing.T) {
	f := makeTestFixture(t)
	rec := &recorder{}
	cb := rec.callback("x")

	assert.False(t, f.d.RegisterHandler(lowHP, handler.New(handler.ConditionInvalid, 0, handler.NativeTarget(cb))))
	assert.Equal(t, 0, f.d.HandlerCount(lowHP))
	_, ok := f.d.LastEvaluation(lowHP)
	assert.False(t, ok, "failed registration leaves no monitor")

	require.True(t, f.d.RegisterHandler(lowHP, handler.New(anyChange, 0, handler.NativeTarget(cb))))
	assert.False(t, f.d.RegisterHandler(lowHP, handler.New(anyChange, 0, handler.NativeTarget(cb))), "duplicate")

	assert.True(t, f.d.UnregisterHandler(lowHP, cb))
	assert.False(t, f.d.UnregisterHandler(lowHP, cb))
	assert.False(t, f.d.UnregisterExpression(status.MakeKey("none")))
}
