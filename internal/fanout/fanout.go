// Package fanout runs independent tasks concurrently and merges their
// individually-settled outcomes. One task's failure never cancels or
// corrupts its siblings; callers substitute per-item fallbacks instead of
// dropping items, which is what keeps the dashboard cardinality bounds
// intact under partial failure.
package fanout

import (
	"context"
	"sort"
	"time"

	"github.com/alitto/pond/v2"
)

// Result is one task's settled outcome, tagged with the index of the task
// that produced it so merges re-associate by origin, not completion order.
type Result[T any] struct {
	Index int
	Value T
	Err   error
}

// All runs every task concurrently and waits for all of them to settle.
// The returned slice has one entry per task, in task order.
func All[T any](ctx context.Context, tasks []func(context.Context) (T, error)) []Result[T] {
	return run(ctx, tasks, len(tasks))
}

// AllBatched runs tasks in batches of at most batchSize in-flight, pausing
// between batches. This is deliberate backpressure for rate-limited
// providers, distinct from per-call retry.
func AllBatched[T any](ctx context.Context, tasks []func(context.Context) (T, error), batchSize int, pause time.Duration) []Result[T] {
	if batchSize < 1 {
		batchSize = 1
	}
	results := make([]Result[T], 0, len(tasks))
	for start := 0; start < len(tasks); start += batchSize {
		end := start + batchSize
		if end > len(tasks) {
			end = len(tasks)
		}
		batch := run(ctx, tasks[start:end], batchSize)
		for _, r := range batch {
			r.Index += start
			results = append(results, r)
		}
		if end < len(tasks) && pause > 0 {
			select {
			case <-ctx.Done():
				// Remaining tasks settle as canceled rather than vanishing,
				// so the result slice keeps one entry per task.
				for i := end; i < len(tasks); i++ {
					results = append(results, Result[T]{Index: i, Err: ctx.Err()})
				}
				return results
			case <-time.After(pause):
			}
		}
	}
	return results
}

func run[T any](ctx context.Context, tasks []func(context.Context) (T, error), workers int) []Result[T] {
	if len(tasks) == 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	pool := pond.NewResultPool[Result[T]](workers)
	defer pool.StopAndWait()

	group := pool.NewGroup()
	for i, task := range tasks {
		i, task := i, task
		group.SubmitErr(func() (Result[T], error) {
			v, err := task(ctx)
			// Errors are captured in the result, never returned to the
			// group, so a failing task cannot abort its siblings.
			return Result[T]{Index: i, Value: v, Err: err}, nil
		})
	}
	results, _ := group.Wait()
	sort.Slice(results, func(a, b int) bool { return results[a].Index < results[b].Index })
	return results
}
