package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulecore/internal/engine"
	"github.com/roach88/rulecore/internal/expression"
	"github.com/roach88/rulecore/internal/reservoir"
)

func loopChunk() engine.ChunkDef {
	return engine.ChunkDef{
		Name: "lights",
		Statuses: []reservoir.Row{
			{Name: "red", Kind: "BOOL"},
			{Name: "green", Kind: "BOOL"},
			{Name: "log", Kind: "UNSIGNED"},
		},
		Expressions: []expression.Row{
			{Name: "red_on", Comparisons: []expression.ComparisonRow{{Status: "red", Op: "==", Value: "true"}}},
			{Name: "green_on", Comparisons: []expression.ComparisonRow{{Status: "green", Op: "==", Value: "true"}}},
			{Name: "any_on", Logic: "or", Subs: []expression.SubRow{{Expression: "red_on"}, {Expression: "green_on"}}},
			{Name: "logged", Transitions: []string{"log"}},
		},
	}
}

func TestAnalyzeCycles_Empty(t *testing.T) {
	assert.Empty(t, AnalyzeCycles(nil))
	assert.Empty(t, AnalyzeCycles(&Spec{Chunks: []engine.ChunkDef{loopChunk()}}))
}

func TestAnalyzeCycles_DAG(t *testing.T) {
	spec := &Spec{
		Chunks: []engine.ChunkDef{loopChunk()},
		Handlers: []HandlerSpec{
			{Name: "a", Expression: "red_on", Writes: []WriteSpec{{Status: "log", Value: "1"}}},
			{Name: "b", Expression: "logged"},
		},
	}
	assert.Empty(t, AnalyzeCycles(spec))
}

func TestAnalyzeCycles_SelfLoop(t *testing.T) {
	spec := &Spec{
		Chunks: []engine.ChunkDef{loopChunk()},
		Handlers: []HandlerSpec{
			{Name: "blink", Expression: "red_on", Writes: []WriteSpec{{Status: "red", Value: "false"}}},
		},
	}

	warnings := AnalyzeCycles(spec)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"blink", "blink"}, warnings[0].Path)
	assert.Equal(t, "warning", warnings[0].Level)
	assert.Contains(t, warnings[0].Message, "blink")
}

func TestAnalyzeCycles_TwoHandlersThroughSubExpression(t *testing.T) {
	spec := &Spec{
		Chunks: []engine.ChunkDef{loopChunk()},
		Handlers: []HandlerSpec{
			{Name: "to_green", Expression: "red_on", Writes: []WriteSpec{{Status: "green", Value: "true"}}},
			{Name: "to_red", Expression: "any_on", Writes: []WriteSpec{{Status: "log", Value: "1"}, {Status: "red", Value: "true"}}},
			{Name: "audit", Expression: "logged"},
		},
	}

	warnings := AnalyzeCycles(spec)
	require.Len(t, warnings, 1)
	path := warnings[0].Path
	require.Len(t, path, 3)
	assert.Equal(t, path[0], path[2], "path closes the loop")
	assert.ElementsMatch(t, []string{"to_green", "to_red"}, path[:2])
	assert.Contains(t, warnings[0].Message, "write loop")
}
