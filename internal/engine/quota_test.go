package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCycleQuota_AllowsUpToLimit(t *testing.T) {
	q := newCycleQuota(3)
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Check("run-1", 1))
	}
	assert.Equal(t, 3, q.Current())

	err := q.Check("run-1", 2)
	require.Error(t, err)
	assert.True(t, IsCycleLimitError(err))

	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "run-1", re.RunID)
	assert.Equal(t, "3", re.Details["cycles"])
	assert.Equal(t, "2", re.Details["pending"])
}

func TestCycleQuota_ZeroLimit(t *testing.T) {
	q := newCycleQuota(0)
	assert.True(t, IsCycleLimitError(q.Check("run-1", 0)))
}

func TestIsCycleLimitError_Wrapped(t *testing.T) {
	err := fmt.Errorf("settle: %w", NewCycleLimitError("run-1", 5, 5, 1))
	assert.True(t, IsCycleLimitError(err))
	assert.False(t, IsUnknownError(err))
	assert.False(t, IsCycleLimitError(fmt.Errorf("plain")))
}
