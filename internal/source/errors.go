package source

import (
	"fmt"
	"time"
)

// RateLimitError signals explicit backpressure from the source (HTTP 429).
// Wait carries the source-specified pause before the next request.
type RateLimitError struct {
	Wait time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("source rate limited, retry after %v", e.Wait)
}

// RetryAfter returns the source-specified wait. Recognized by
// resilience.Retry so rate-limit pauses do not consume attempts.
func (e *RateLimitError) RetryAfter() time.Duration { return e.Wait }

// ExternalError names the logical database whose source calls failed after
// all retries were exhausted.
type ExternalError struct {
	Database string
	Err      error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("content source failed for database %q: %v", e.Database, e.Err)
}

func (e *ExternalError) Unwrap() error { return e.Err }
