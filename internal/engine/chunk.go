package engine

import (
	"fmt"

	"github.com/roach88/rulecore/internal/expression"
	"github.com/roach88/rulecore/internal/handler"
	"github.com/roach88/rulecore/internal/reservoir"
	"github.com/roach88/rulecore/internal/status"
)

// ChunkDef is a unit of statuses and expressions that load and unload
// together. Handlers join a chunk through RegisterHandler.
type ChunkDef struct {
	Name        string           `yaml:"name" json:"name"`
	Statuses    []reservoir.Row  `yaml:"statuses,omitempty" json:"statuses,omitempty"`
	Expressions []expression.Row `yaml:"expressions,omitempty" json:"expressions,omitempty"`
}

// HandlerDef binds a handler to an expression.
type HandlerDef struct {
	Name       string
	Expression string
	Condition  handler.Condition
	Priority   handler.Priority
}

type loadedChunk struct {
	name        string
	expressions []status.Key
}

// LoadChunk registers a chunk's statuses and expressions.
//
// Loading is all or nothing: on error, everything the chunk registered is
// removed again. Expressions may reference statuses and expressions of
// chunks loaded earlier.
func (e *Engine) LoadChunk(def ChunkDef) error {
	if def.Name == "" {
		return newRuntimeError(ErrCodeInvalidFormat, e.runID, "", "chunk name is required")
	}
	chunkKey := status.MakeKey(def.Name)
	if e.chunks.Find(chunkKey) != nil {
		return newRuntimeError(ErrCodeDuplicateChunk, e.runID, def.Name, "chunk is already loaded")
	}

	seen := make(map[status.Key]bool, len(def.Statuses))
	for _, row := range def.Statuses {
		key := status.MakeKey(row.Name)
		if _, loaded := e.reservoir.Descriptor(key); loaded || seen[key] {
			return newRuntimeError(ErrCodeDuplicateStatus, e.runID, row.Name, "status is defined twice")
		}
		seen[key] = true
	}

	if _, err := reservoir.BuildStatuses(e.reservoir, chunkKey, def.Statuses); err != nil {
		e.reservoir.EraseChunk(chunkKey)
		re := newRuntimeError(ErrCodeInvalidFormat, e.runID, def.Name, "invalid status table")
		re.Err = err
		return re
	}

	if _, err := expression.BuildExpressions(e.evaluator, chunkKey, def.Expressions); err != nil {
		e.evaluator.EraseChunk(chunkKey)
		e.reservoir.EraseChunk(chunkKey)
		re := newRuntimeError(ErrCodeInvalidExpression, e.runID, def.Name, "invalid expression table")
		re.Err = err
		return re
	}

	lc := loadedChunk{name: def.Name}
	e.names[chunkKey] = def.Name
	for _, row := range def.Statuses {
		e.names[status.MakeKey(row.Name)] = row.Name
	}
	for _, row := range def.Expressions {
		key := status.MakeKey(row.Name)
		e.names[key] = row.Name
		lc.expressions = append(lc.expressions, key)
		e.dispatcher.Refresh(key)
	}
	c, _ := e.chunks.Equip(chunkKey)
	*c = lc

	e.logger.Debug("chunk loaded",
		"run_id", e.runID,
		"chunk", def.Name,
		"statuses", len(def.Statuses),
		"expressions", len(def.Expressions),
	)
	return nil
}

// UnloadChunk removes a chunk's statuses and expressions and revokes its
// handlers. Handlers of other chunks watching the removed expressions see
// them turn Failed on the next cycle.
func (e *Engine) UnloadChunk(name string) error {
	chunkKey := status.MakeKey(name)
	lc, loaded := e.chunks.Erase(chunkKey)
	if hc := e.handlers.Find(chunkKey); hc != nil {
		for _, cb := range hc.Callbacks {
			delete(e.handlerNames, cb)
		}
	}
	revoked := e.handlers.Erase(chunkKey)
	if !loaded && !revoked {
		return newRuntimeError(ErrCodeUnknownChunk, e.runID, name, "chunk is not loaded")
	}

	e.evaluator.EraseChunk(chunkKey)
	e.reservoir.EraseChunk(chunkKey)
	for _, key := range lc.expressions {
		e.dispatcher.Refresh(key)
	}

	e.logger.Debug("chunk unloaded", "run_id", e.runID, "chunk", name, "handlers_revoked", revoked)
	return nil
}

// Chunks returns the names of loaded chunks in key order.
func (e *Engine) Chunks() []string {
	var names []string
	for _, lc := range e.chunks.All() {
		names = append(names, lc.name)
	}
	return names
}

// RegisterHandler binds fn and/or script to an expression on behalf of a
// chunk. Unloading the chunk revokes both. The expression does not need to
// be loaded yet.
func (e *Engine) RegisterHandler(chunk string, def HandlerDef, fn handler.Func, script handler.Delegate) error {
	if chunk == "" {
		return newRuntimeError(ErrCodeInvalidHandler, e.runID, def.Name, "handler chunk is required")
	}
	if def.Expression == "" {
		return newRuntimeError(ErrCodeInvalidHandler, e.runID, def.Name, "handler expression is required")
	}

	// guard is owned by the chunk. It is the native target when fn is
	// set, and gates the script delegate either way.
	guard := handler.NewCallback(fn)
	if guard == nil {
		guard = handler.NewCallback(func(status.Key, status.Evaluation, status.Evaluation) {})
	}
	var target handler.Target
	switch {
	case fn != nil && script != nil:
		target = handler.BothTargets(guard, &guardedDelegate{guard: guard, d: script})
	case fn != nil:
		target = handler.NativeTarget(guard)
	case script != nil:
		target = handler.ScriptTarget(&guardedDelegate{guard: guard, d: script})
	default:
		return newRuntimeError(ErrCodeInvalidHandler, e.runID, def.Name, "handler has no target")
	}

	exprKey := status.MakeKey(def.Expression)
	if !e.dispatcher.RegisterHandler(exprKey, handler.New(def.Condition, def.Priority, target)) {
		return newRuntimeError(ErrCodeInvalidHandler, e.runID, def.Name,
			fmt.Sprintf("cannot bind handler to %s (invalid condition)", def.Expression))
	}
	e.handlers.Extend(status.MakeKey(chunk), guard)
	if _, ok := e.names[exprKey]; !ok {
		e.names[exprKey] = def.Expression
	}
	e.handlerNames[guard] = def.Name
	return nil
}

func (e *Engine) handlerName(t handler.Target) string {
	if cb := t.Native(); cb != nil {
		return e.handlerNames[cb]
	}
	if gd, ok := t.Script().(*guardedDelegate); ok {
		return e.handlerNames[gd.guard]
	}
	return ""
}

// guardedDelegate expires with its chunk's guard callback.
type guardedDelegate struct {
	guard *handler.Callback
	d     handler.Delegate
}

func (g *guardedDelegate) Call(key status.Key, now, last status.Evaluation) {
	g.d.Call(key, now, last)
}

func (g *guardedDelegate) Live() bool {
	return g.guard.Live()
}
