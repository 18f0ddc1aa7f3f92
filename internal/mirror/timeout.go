package mirror

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// WithTimeout runs op under a deadline. If the deadline passes before op
// returns, WithTimeout returns ErrTimeout and abandons the result; op's
// context is cancelled so the abandoned operation unwinds instead of
// leaking. The goroutine running op always drains into a buffered channel,
// so it never blocks after abandonment.
func WithTimeout[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		value, err := op(opCtx)
		done <- result{value: value, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-opCtx.Done():
		var zero T
		if ctx.Err() != nil {
			// The caller was cancelled, not the deadline.
			return zero, ctx.Err()
		}
		return zero, errors.Wrapf(ErrTimeout, "after %v", timeout)
	}
}
