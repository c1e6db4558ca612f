// Package retry provides a bounded retry combinator for operations whose
// failures are expected to be rare and independent between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrAgain marks an attempt as retryable. Wrap it to carry detail.
	ErrAgain = errors.New("retry: try again")
	// ErrExhausted is returned once every permitted attempt asked to retry.
	ErrExhausted = errors.New("retry: attempts exhausted")
)

// Func is a single attempt. n counts from 1.
type Func[T any] func(ctx context.Context, n int) (T, error)

// Attempt calls fn until it succeeds, returns an error that does not wrap
// ErrAgain, or maxTries attempts have been made. Retryable failures are not
// delayed between attempts.
func Attempt[T any](ctx context.Context, maxTries int, fn Func[T]) (T, error) {
	var zero T
	if maxTries < 1 {
		return zero, fmt.Errorf("retry: invalid attempt bound %d", maxTries)
	}

	var last error
	for n := 1; n <= maxTries; n++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := fn(ctx, n)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrAgain) {
			return zero, err
		}
		last = err
	}

	return zero, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, maxTries, last)
}
