package bookmark

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrInvalidInput    = errors.New("invalid input")
	ErrRateLimited     = errors.New("rate limit exceeded")
)

// ValidationError describes a rejected field of a create request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// RateLimitError is returned when a write is refused by the limiter.
type RateLimitError struct {
	RetryAfterSeconds int64
	// Unavailable is set when the limiter store was unreachable and the
	// fail-closed policy refused the write.
	Unavailable bool
}

func (e *RateLimitError) Error() string {
	if e.Unavailable {
		return fmt.Sprintf("rate limiter unavailable, retry after %ds", e.RetryAfterSeconds)
	}

	return fmt.Sprintf("rate limit exceeded, retry after %ds", e.RetryAfterSeconds)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}
