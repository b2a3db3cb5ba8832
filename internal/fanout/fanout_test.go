package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func task(v int) func(context.Context) (int, error) {
	return func(context.Context) (int, error) { return v, nil }
}

func failing(err error) func(context.Context) (int, error) {
	return func(context.Context) (int, error) { return 0, err }
}

func TestAllSettlesEveryTask(t *testing.T) {
	boom := errors.New("task 3 boom")
	tasks := []func(context.Context) (int, error){
		task(1), task(2), failing(boom), task(4), task(5),
	}

	results := All(context.Background(), tasks)
	require.Len(t, results, 5)

	for i, r := range results {
		assert.Equal(t, i, r.Index, "results keep task order")
	}
	assert.Equal(t, 1, results[0].Value)
	assert.Equal(t, 2, results[1].Value)
	assert.Equal(t, boom, results[2].Err)
	assert.Equal(t, 4, results[3].Value)
	assert.Equal(t, 5, results[4].Value)
	for _, i := range []int{0, 1, 3, 4} {
		assert.NoError(t, results[i].Err, "task %d unaffected by sibling failure", i)
	}
}

func TestAllEmpty(t *testing.T) {
	assert.Empty(t, All[int](context.Background(), nil))
}

func TestAllSlowFailureDoesNotAffectSiblings(t *testing.T) {
	tasks := []func(context.Context) (int, error){
		task(1),
		func(context.Context) (int, error) {
			time.Sleep(50 * time.Millisecond)
			return 0, errors.New("late failure")
		},
		task(3),
	}

	results := All(context.Background(), tasks)
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
}

func TestAllBatchedLimitsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	tasks := make([]func(context.Context) (int, error), 6)
	for i := range tasks {
		i := i
		tasks[i] = func(context.Context) (int, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			inFlight.Add(-1)
			return i, nil
		}
	}

	results := AllBatched(context.Background(), tasks, 2, 0)
	require.Len(t, results, 6)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, i, r.Value)
	}
}

func TestAllBatchedPausesBetweenBatches(t *testing.T) {
	tasks := make([]func(context.Context) (int, error), 4)
	for i := range tasks {
		tasks[i] = task(i)
	}

	start := time.Now()
	AllBatched(context.Background(), tasks, 2, 30*time.Millisecond)
	// One pause between the two batches; none after the last.
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestAllBatchedCancelledMidway(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tasks := make([]func(context.Context) (int, error), 5)
	for i := range tasks {
		i := i
		tasks[i] = func(context.Context) (int, error) {
			if i == 1 {
				cancel()
			}
			return i, nil
		}
	}

	results := AllBatched(ctx, tasks, 2, time.Hour)
	require.Len(t, results, 5, "cancelled tasks still settle")
	for i := 2; i < 5; i++ {
		assert.ErrorIs(t, results[i].Err, context.Canceled, "task %d", i)
	}
}

func TestResultsSortedRegardlessOfCompletionOrder(t *testing.T) {
	tasks := make([]func(context.Context) (string, error), 8)
	for i := range tasks {
		i := i
		tasks[i] = func(context.Context) (string, error) {
			// Later tasks finish first.
			time.Sleep(time.Duration(8-i) * time.Millisecond)
			return fmt.Sprintf("v%d", i), nil
		}
	}

	results := All(context.Background(), tasks)
	require.Len(t, results, 8)
	for i, r := range results {
		assert.Equal(t, fmt.Sprintf("v%d", i), r.Value)
	}
}
