// Package resilience provides the retry and circuit-breaker primitives
// shared by every network-calling component in loom.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryConfig configures Retry.
type RetryConfig struct {
	MaxAttempts  int           // Total attempts, including the first (default: 5)
	InitialDelay time.Duration // Delay before the second attempt (default: 2s)
	Multiplier   float64       // Backoff growth factor (default: 1.5)
	MaxDelay     time.Duration // Upper bound on a single delay (default: 30s)
}

// DefaultRetryConfig returns the defaults used for external source calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 2 * time.Second,
		Multiplier:   1.5,
		MaxDelay:     30 * time.Second,
	}
}

// normalize applies defaults for zero values.
func (c RetryConfig) normalize() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 2 * time.Second
	}
	if c.Multiplier <= 1 {
		c.Multiplier = 1.5
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	return c
}

// permanentError marks an error that must not be retried.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Retry fails immediately instead of retrying.
// Use for validation and configuration errors.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// retryAfterer is implemented by rate-limit errors that carry a
// source-specified wait (HTTP 429 Retry-After).
type retryAfterer interface {
	RetryAfter() time.Duration
}

// maxRateLimitWaits bounds how many rate-limit pauses a single Retry call
// will honor without consuming attempts.
const maxRateLimitWaits = 5

// Retry executes fn with exponential backoff until it succeeds, returns a
// permanent error, or exhausts cfg.MaxAttempts. A rate-limit error that
// reports a RetryAfter duration pauses for that duration without consuming
// an attempt. The last error is returned after exhaustion.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	cfg = cfg.normalize()

	var lastErr error
	delay := cfg.InitialDelay
	start := time.Now()
	rateLimitWaits := 0

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if IsPermanent(err) {
			return err
		}

		// Rate-limit responses wait the source-specified duration and do
		// not count as a hard failure, up to a fixed cap.
		var ra retryAfterer
		if errors.As(err, &ra) && rateLimitWaits < maxRateLimitWaits {
			rateLimitWaits++
			attempt--
			if sleepErr := sleep(ctx, ra.RetryAfter()); sleepErr != nil {
				return sleepErr
			}
			continue
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
		delay = min(time.Duration(float64(delay)*cfg.Multiplier), cfg.MaxDelay)
	}

	return fmt.Errorf("after %d attempts (elapsed %v): %w",
		cfg.MaxAttempts, time.Since(start).Round(time.Millisecond), lastErr)
}

// sleep waits for d or until ctx is canceled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("canceled during retry wait: %w", ctx.Err())
	case <-time.After(d):
		return nil
	}
}
