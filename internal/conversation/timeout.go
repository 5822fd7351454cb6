package conversation

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when a raced call loses against its budget.
var ErrTimeout = errors.New("conversation: call timed out")

// raceWithTimeout runs fn against a fixed budget. The loser keeps running
// in the background with a cancelled context; its result is discarded.
func raceWithTimeout[T any](ctx context.Context, budget time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if budget <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		val, err := fn(callCtx)
		done <- result{val: val, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && callCtx.Err() != nil && ctx.Err() == nil {
			var zero T
			return zero, ErrTimeout
		}
		return r.val, r.err
	case <-callCtx.Done():
		var zero T
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, ErrTimeout
	}
}
