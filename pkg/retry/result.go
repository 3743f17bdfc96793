package retry

import "github.com/crawlkit/engine/pkg/failure"

// Result is the outcome of a Retry call: either a value produced by some
// attempt, or the error that ended retrying (either a non-retryable
// failure.ClassifiedError from fn, or a *RetryError once MaxAttempts is
// exhausted).
type Result[T any] struct {
	value    T
	err      failure.ClassifiedError
	attempts int
}

// NewSuccessResult wraps a successful value produced after the given
// number of attempts.
func NewSuccessResult[T any](value T, attempts int) Result[T] {
	return Result[T]{value: value, attempts: attempts}
}

// IsFailure reports whether the retry loop ended in error.
func (r Result[T]) IsFailure() bool {
	return r.err != nil
}

// IsSuccess reports whether some attempt produced a value.
func (r Result[T]) IsSuccess() bool {
	return r.err == nil
}

// Value returns the produced value. Its zero value when IsFailure.
func (r Result[T]) Value() T {
	return r.value
}

// Err returns the terminal error, nil on success.
func (r Result[T]) Err() failure.ClassifiedError {
	return r.err
}

// Attempts returns how many times fn was invoked.
func (r Result[T]) Attempts() int {
	return r.attempts
}
