// Package async adapts blocking SDK calls that take no context.
package async

import "context"

type result[T any] struct {
	v   T
	err error
}

// Do runs fn on its own goroutine and returns when fn finishes or ctx is
// done, whichever comes first. A call abandoned on ctx completes in the
// background and its result is dropped.
func Do[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	ch := make(chan result[T], 1)
	go func() {
		v, err := fn()
		ch <- result[T]{v: v, err: err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
