package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulecore/internal/engine"
	"github.com/roach88/rulecore/internal/expression"
	"github.com/roach88/rulecore/internal/reservoir"
)

func validChunk() engine.ChunkDef {
	return engine.ChunkDef{
		Name: "hero",
		Statuses: []reservoir.Row{
			{Name: "hp", Kind: "UNSIGNED_8", Value: "100"},
			{Name: "alive", Kind: "BOOL", Value: "true"},
		},
		Expressions: []expression.Row{
			{Name: "low_hp", Comparisons: []expression.ComparisonRow{{Status: "hp", Op: "<", Value: "30"}}},
			{Name: "dying", Subs: []expression.SubRow{{Expression: "low_hp"}}},
		},
	}
}

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidateChunkValid(t *testing.T) {
	assert.Empty(t, Validate(validChunk()))
	c := validChunk()
	assert.Empty(t, Validate(&c))
}

func TestValidateChunkErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*engine.ChunkDef)
		code   string
	}{
		{"empty name", func(c *engine.ChunkDef) { c.Name = "  " }, ErrChunkNameEmpty},
		{"empty chunk", func(c *engine.ChunkDef) { c.Statuses, c.Expressions = nil, nil }, ErrChunkEmpty},
		{"bad kind", func(c *engine.ChunkDef) { c.Statuses[0].Kind = "UNSIGNED_99" }, ErrInvalidStatusKind},
		{"bad value", func(c *engine.ChunkDef) { c.Statuses[1].Value = "maybe" }, ErrInvalidStatusValue},
		{"duplicate status", func(c *engine.ChunkDef) { c.Statuses[1].Name = "hp" }, ErrDuplicateName},
		{"duplicate expression", func(c *engine.ChunkDef) {
			c.Expressions[1] = c.Expressions[0]
		}, ErrDuplicateName},
		{"bad logic", func(c *engine.ChunkDef) { c.Expressions[0].Logic = "xor" }, ErrInvalidLogic},
		{"two element lists", func(c *engine.ChunkDef) {
			c.Expressions[0].Transitions = []string{"hp"}
		}, ErrInvalidElements},
		{"no element list", func(c *engine.ChunkDef) { c.Expressions[1].Subs = nil }, ErrInvalidElements},
		{"bad comparison", func(c *engine.ChunkDef) { c.Expressions[0].Comparisons[0].Op = "=~" }, ErrInvalidComparison},
		{"value and right", func(c *engine.ChunkDef) { c.Expressions[0].Comparisons[0].Right = "alive" }, ErrInvalidComparison},
		{"bad comparison value", func(c *engine.ChunkDef) { c.Expressions[0].Comparisons[0].Value = "x" }, ErrInvalidComparison},
		{"self reference", func(c *engine.ChunkDef) { c.Expressions[1].Subs[0].Expression = "dying" }, ErrForwardReference},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validChunk()
			tt.mutate(&c)
			errs := Validate(c)
			require.NotEmpty(t, errs)
			assert.Contains(t, codes(errs), tt.code)
		})
	}
}

func TestValidateHandlerErrors(t *testing.T) {
	h := HandlerSpec{
		Now:    []string{"sometimes"},
		Writes: []WriteSpec{{Value: "1", Op: "??"}},
	}
	errs := Validate(&h)
	assert.ElementsMatch(t, []string{
		ErrHandlerNameEmpty,
		ErrHandlerChunkEmpty,
		ErrHandlerNoExpr,
		ErrInvalidCondition,
		ErrInvalidWrite,
		ErrInvalidWrite,
	}, codes(errs))

	valid := HandlerSpec{Name: "h", Chunk: "ui", Expression: "low_hp", Writes: []WriteSpec{{Status: "hp", Value: "1"}}}
	assert.Empty(t, Validate(valid))
}

func TestValidateUnsupportedType(t *testing.T) {
	errs := Validate(42)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnsupportedType, errs[0].Code)
}

func TestValidateSpecReferences(t *testing.T) {
	spec := &Spec{
		Chunks: []engine.ChunkDef{
			{
				Name: "early",
				Expressions: []expression.Row{
					{Name: "uses_later", Subs: []expression.SubRow{{Expression: "low_hp"}}},
					{Name: "watch_mana", Transitions: []string{"mana"}},
				},
			},
			validChunk(),
		},
		Handlers: []HandlerSpec{
			{Name: "ok", Chunk: "ui", Expression: "dying", Writes: []WriteSpec{{Status: "alive", Value: "false"}}},
			{Name: "bad", Chunk: "ui", Expression: "nope", Writes: []WriteSpec{{Status: "mana", Value: "1"}}},
		},
	}

	errs := ValidateSpec(spec)
	require.Len(t, errs, 4)
	assert.Equal(t, ErrForwardReference, errs[0].Code)
	assert.Equal(t, "chunks[0].expressions[0].subs", errs[0].Field)
	assert.Equal(t, ErrUndefinedReference, errs[1].Code)
	assert.Contains(t, errs[1].Message, "mana")
	assert.Equal(t, ErrUndefinedReference, errs[2].Code)
	assert.Contains(t, errs[2].Message, "nope")
	assert.Equal(t, ErrUndefinedReference, errs[3].Code)
	assert.Equal(t, "handlers[1].writes", errs[3].Field)
}

func TestValidationErrorFormat(t *testing.T) {
	e := ValidationError{Field: "name", Message: "required", Code: ErrChunkNameEmpty}
	assert.Equal(t, "[E101] name: required", e.Error())
	e.Line = 4
	assert.Equal(t, "[E101] line 4: name: required", e.Error())
}
