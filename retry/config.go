// Package retry runs an operation again when it fails with an error the
// caller considers retryable.
package retry

// Config holds retry configuration parameters.
type Config struct {
	// MaxAttempts is the maximum number of attempts.
	// The initial call counts as attempt 1.
	MaxAttempts int

	// Retryable decides whether an error warrants another attempt.
	// A nil Retryable never retries.
	Retryable func(error) bool
}

// Once returns a configuration allowing a single immediate retry for
// errors matching retryable.
func Once(retryable func(error) bool) Config {
	return Config{
		MaxAttempts: 2,
		Retryable:   retryable,
	}
}

func (c Config) retryable(err error) bool {
	return c.Retryable != nil && c.Retryable(err)
}
