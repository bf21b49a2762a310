// Package retry re-runs operations that fail transiently, backing off
// exponentially between attempts.
//
// Callers mark failures that must never be retried with Permanent. The HTTP
// adapters use it for client errors and undecodable replies.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// Config holds configuration for retry behavior.
type Config struct {
	// MaxRetries is the number of attempts after the first one.
	// Zero runs the operation exactly once.
	MaxRetries int

	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential growth.
	MaxBackoff time.Duration

	// BackoffFactor multiplies the wait after every retry. Default: 2.0
	BackoffFactor float64

	// Jitter adds rand(0, backoff) to every wait.
	Jitter bool
}

// DefaultConfig returns the configuration used for RPC-level retries.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     100 * time.Millisecond,
		BackoffFactor:  2.0,
		Jitter:         true,
	}
}

func (c Config) withDefaults() Config {
	if c.BackoffFactor <= 0 {
		c.BackoffFactor = 2.0
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 10 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 100 * time.Millisecond
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	return c
}

// IsRetryableFunc reports whether err should trigger another attempt.
// It is never consulted for permanent errors.
type IsRetryableFunc func(error) bool

// OnRetryFunc is called before each retry. attempt starts at 1.
type OnRetryFunc func(attempt int, err error, backoff time.Duration)

// PermanentError wraps an error that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as not retryable. It returns nil for a nil error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err or anything it wraps was marked Permanent.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("operation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do calls fn until it succeeds, fails permanently, isRetryable rejects the
// error, ctx is done, or cfg.MaxRetries retries have been spent. A nil
// isRetryable retries every non-permanent error.
//
//	code, err := retry.Do(ctx, cfg, nil, nil, func() ([]byte, error) {
//	    return client.CodeAt(ctx, addr, nil)
//	})
func Do[T any](
	ctx context.Context,
	cfg Config,
	isRetryable IsRetryableFunc,
	onRetry OnRetryFunc,
	fn func() (T, error),
) (T, error) {
	var zero T
	cfg = cfg.withDefaults()

	backoff := cfg.InitialBackoff
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := backoff
			if cfg.Jitter {
				wait += rand.N(backoff)
			}
			if onRetry != nil {
				onRetry(attempt, lastErr, wait)
			}
			if err := sleep(ctx, wait); err != nil {
				return zero, fmt.Errorf("context cancelled while retrying: %w", err)
			}
			backoff = min(time.Duration(float64(backoff)*cfg.BackoffFactor), cfg.MaxBackoff)
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if IsPermanent(err) {
			return zero, err
		}
		if isRetryable != nil && !isRetryable(err) {
			return zero, err
		}
	}

	return zero, &ExhaustedError{Attempts: cfg.MaxRetries + 1, Err: lastErr}
}

// DoVoid is Do for operations without a result.
func DoVoid(
	ctx context.Context,
	cfg Config,
	isRetryable IsRetryableFunc,
	onRetry OnRetryFunc,
	fn func() error,
) error {
	_, err := Do(ctx, cfg, isRetryable, onRetry, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
