package compiler

import (
	"fmt"

	"github.com/roach88/rulecore/internal/engine"
	"github.com/roach88/rulecore/internal/handler"
	"github.com/roach88/rulecore/internal/modifier"
	"github.com/roach88/rulecore/internal/status"
)

// Spec is the compiled content of one or more rule files.
type Spec struct {
	Chunks   []engine.ChunkDef `yaml:"chunks,omitempty" json:"chunks,omitempty"`
	Handlers []HandlerSpec     `yaml:"handlers,omitempty" json:"handlers,omitempty"`
}

// HandlerSpec binds a scripted handler to an expression.
//
// When the handler fires, its Writes are queued in order and apply on the
// next cycle.
type HandlerSpec struct {
	Name       string      `yaml:"name" json:"name"`
	Chunk      string      `yaml:"chunk" json:"chunk"`
	Expression string      `yaml:"expression" json:"expression"`
	Now        []string    `yaml:"now,omitempty" json:"now,omitempty"`
	Last       []string    `yaml:"last,omitempty" json:"last,omitempty"`
	Priority   int32       `yaml:"priority,omitempty" json:"priority,omitempty"`
	Writes     []WriteSpec `yaml:"writes,omitempty" json:"writes,omitempty"`
}

// WriteSpec is "status op value" with a modifier delay.
type WriteSpec struct {
	Status string `yaml:"status" json:"status"`
	Op     string `yaml:"op,omitempty" json:"op,omitempty"`
	Value  string `yaml:"value" json:"value"`
	Delay  string `yaml:"delay,omitempty" json:"delay,omitempty"`
}

// Def converts the handler into an engine handler definition.
func (h HandlerSpec) Def() (engine.HandlerDef, error) {
	cond, err := handler.ParseCondition(h.Now, h.Last)
	if err != nil {
		return engine.HandlerDef{}, fmt.Errorf("handler %s: %w", h.Name, err)
	}
	return engine.HandlerDef{
		Name:       h.Name,
		Expression: h.Expression,
		Condition:  cond,
		Priority:   handler.Priority(h.Priority),
	}, nil
}

// Parse resolves the operator, value and delay of a write.
// An empty Op is ":=".
func (w WriteSpec) Parse() (status.Operator, status.Value, modifier.Delay, error) {
	op := status.Copy
	if w.Op != "" {
		var ok bool
		if op, ok = status.ParseOperator(w.Op); !ok {
			return op, status.Empty(), modifier.NonBlock, fmt.Errorf("unknown operator %q", w.Op)
		}
	}
	v := status.Make(w.Value, status.KindEmpty)
	if v.IsEmpty() {
		return op, v, modifier.NonBlock, fmt.Errorf("invalid value %q", w.Value)
	}
	delay, ok := modifier.ParseDelay(w.Delay)
	if !ok {
		return op, v, delay, fmt.Errorf("unknown delay %q", w.Delay)
	}
	return op, v, delay, nil
}
