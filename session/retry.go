package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/AntonStoeckl/live-selectors-go/feed"
)

const (
	defaultMaxAttempts  = 6
	defaultBaseDelay    = 10 * time.Millisecond
	defaultJitterFactor = 0.3
)

// retryConfig holds configuration for exponential backoff retry logic.
type retryConfig struct {
	maxAttempts  int
	baseDelay    time.Duration
	jitterFactor float64
}

func defaultRetryConfig() retryConfig {
	return retryConfig{
		maxAttempts:  defaultMaxAttempts,
		baseDelay:    defaultBaseDelay,
		jitterFactor: defaultJitterFactor,
	}
}

// retryWithExponentialBackoff runs attempt until it succeeds, fails with a non-retryable error,
// or maxAttempts is reached.
//
// Retry Schedule (default): 0 ms, 10 ms, 20 ms, 40 ms, 80 ms, 160 ms (with 30% jitter)
//
// Only feed.ErrConcurrencyConflict is retried. All other errors fail fast.
func (s *Session) retryWithExponentialBackoff(ctx context.Context, attempt func(ctx context.Context) error) error {
	var lastErr error

	for i := 0; i < s.retry.maxAttempts; i++ {
		if i > 0 {
			delay := s.retry.baseDelay * time.Duration(1<<(i-1))
			jitter := rand.Float64() * float64(delay) * s.retry.jitterFactor //nolint:gosec // math/rand is sufficient for jitter
			backoffDelay := delay + time.Duration(jitter)

			s.recordRetryDelay(ctx, i, backoffDelay)

			select {
			case <-time.After(backoffDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = attempt(ctx)
		if lastErr == nil {
			return nil
		}

		if !isRetryableError(lastErr) {
			return lastErr
		}

		if i < s.retry.maxAttempts-1 {
			s.recordRetryAttempt(ctx, i+1, lastErr)
		}
	}

	s.recordMaxRetriesReached(ctx, lastErr)

	return lastErr
}

// isRetryableError reports whether err is worth another attempt.
// A context.DeadlineExceeded is NOT retryable, timeouts fail fast.
func isRetryableError(err error) bool {
	return errors.Is(err, feed.ErrConcurrencyConflict)
}

// getErrorType extracts a string representation of the error type for metrics labeling.
func getErrorType(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, feed.ErrConcurrencyConflict):
		return "concurrency_conflict"
	case errors.Is(err, context.Canceled):
		return "context_canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "context_deadline_exceeded"
	default:
		return "other"
	}
}

func attemptLabel(attempt int) string {
	return fmt.Sprintf("%d", attempt)
}
