package retry

import (
	"context"
)

// Do calls fn until it succeeds, fails with an error cfg does not consider
// retryable, or runs out of attempts. Retries are immediate; a cancelled
// ctx stops them and its error is returned.
func Do[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := max(cfg.MaxAttempts, 1)
	for attempt := 0; attempt < attempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		lastErr = err

		if !cfg.retryable(err) {
			return zero, err
		}

		// Don't retry into a cancelled context
		if err := ctx.Err(); err != nil {
			return zero, err
		}
	}

	return zero, lastErr
}
