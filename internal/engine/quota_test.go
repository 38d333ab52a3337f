package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/viewsync/internal/ident"
)

// TestQuotaEnforcer_WithinLimit tests normal operation within quota.
func TestQuotaEnforcer_WithinLimit(t *testing.T) {
	q := NewQuotaEnforcer(10)

	for i := 0; i < 10; i++ {
		err := q.Check("flow-1")
		assert.NoError(t, err, "step %d should be allowed", i+1)
	}

	assert.Equal(t, 10, q.Current())
	assert.Equal(t, 10, q.MaxSteps())
}

// TestQuotaEnforcer_ExceedsLimit tests quota exceeded error.
func TestQuotaEnforcer_ExceedsLimit(t *testing.T) {
	q := NewQuotaEnforcer(5)

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Check("flow-1"))
	}

	err := q.Check("flow-1")
	require.Error(t, err)

	var stepsErr *StepsExceededError
	require.ErrorAs(t, err, &stepsErr)
	assert.Equal(t, "flow-1", stepsErr.FlowToken)
	assert.Equal(t, 6, stepsErr.Steps)
	assert.Equal(t, 5, stepsErr.Limit)
}

func TestStepsExceededError_Error(t *testing.T) {
	err := &StepsExceededError{
		FlowToken: "flow-abc",
		Steps:     1001,
		Limit:     1000,
	}

	msg := err.Error()
	assert.Contains(t, msg, "flow-abc")
	assert.Contains(t, msg, "1001")
	assert.Contains(t, msg, "1000")
}

func TestIsStepsExceededError(t *testing.T) {
	stepsErr := &StepsExceededError{FlowToken: "flow-1", Steps: 10, Limit: 5}

	assert.True(t, IsStepsExceededError(stepsErr))
	assert.True(t, IsStepsExceededError(fmt.Errorf("wrapped: %w", stepsErr)))
	assert.False(t, IsStepsExceededError(nil))
	assert.False(t, IsStepsExceededError(assert.AnError))
}

func TestEngine_WithMaxSteps(t *testing.T) {
	e1, err := New()
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxSteps, e1.maxSteps)

	e2, err := New(WithMaxSteps(500))
	require.NoError(t, err)
	assert.Equal(t, 500, e2.maxSteps)

	_, err = New(WithMaxSteps(0))
	assert.Error(t, err)
}

// TestFlow_StepIsSticky tests that an exhausted flow keeps failing.
func TestFlow_StepIsSticky(t *testing.T) {
	e, err := New(WithMaxSteps(2), WithFlowGenerator(ident.Constant("flow-q")))
	require.NoError(t, err)

	err = e.withFlow(context.Background(), func(ctx context.Context) error {
		f := flowFrom(ctx)
		require.NoError(t, f.step())
		require.NoError(t, f.step())

		first := f.step()
		require.Error(t, first)
		assert.Same(t, first, f.step())
		return first
	})
	assert.True(t, IsStepsExceededError(err))
}

// TestFlow_NestedSharesQuota tests that withFlow inside a flow reuses it.
func TestFlow_NestedSharesQuota(t *testing.T) {
	e, err := New(WithMaxSteps(3), WithFlowGenerator(ident.NewFixed("outer")))
	require.NoError(t, err)

	err = e.withFlow(context.Background(), func(ctx context.Context) error {
		assert.Equal(t, "outer", FlowToken(ctx))
		require.NoError(t, flowFrom(ctx).step())

		return e.withFlow(ctx, func(inner context.Context) error {
			assert.Equal(t, "outer", FlowToken(inner))
			assert.Same(t, flowFrom(ctx), flowFrom(inner))
			assert.Equal(t, 1, flowFrom(inner).quota.Current())
			return nil
		})
	})
	require.NoError(t, err)

	assert.Equal(t, "", FlowToken(context.Background()))
}

// TestFlow_ClearsCycleHistory tests that a finished flow forgets its writes.
func TestFlow_ClearsCycleHistory(t *testing.T) {
	e, err := New(WithFlowGenerator(ident.Constant("flow-c")))
	require.NoError(t, err)

	err = e.withFlow(context.Background(), func(ctx context.Context) error {
		e.cycles.Record(FlowToken(ctx), "def", "doc", "hash")
		assert.Equal(t, 1, e.cycles.historySize())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, e.cycles.historySize())
}
