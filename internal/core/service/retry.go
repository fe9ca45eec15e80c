package service

import (
	"context"
	"fmt"
	"time"
)

// RetryError is returned once every attempt has failed. Err is the last failure.
type RetryError struct {
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error {
	return e.Err
}

// Retry calls fn up to maxAttempts times, sleeping backoff*attempt between
// tries. It stops early when ctx is done.
func Retry[T any](ctx context.Context, maxAttempts int, backoff time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if attempt == maxAttempts {
			break
		}

		t := time.NewTimer(backoff * time.Duration(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, &RetryError{Attempts: attempt, Err: ctx.Err()}
		case <-t.C:
		}
	}
	return zero, &RetryError{Attempts: maxAttempts, Err: lastErr}
}
