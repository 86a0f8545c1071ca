package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/loomhq/loom/internal/resilience"
)

// requestFloor is the minimum spacing between page fetches. Responses that
// return faster than this are delayed to avoid tripping source-side rate
// limiting.
const requestFloor = 100 * time.Millisecond

// Extractor pages all records out of logical databases, applying retry,
// per-database circuit breaking, and request pacing. Safe for concurrent use.
type Extractor struct {
	src    Source
	retry  resilience.RetryConfig
	pacer  *rate.Limiter
	logger *slog.Logger

	mu       sync.Mutex
	breakers map[string]*resilience.CircuitBreaker
}

// NewExtractor creates an extractor over src.
func NewExtractor(src Source, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		src:      src,
		retry:    resilience.DefaultRetryConfig(),
		pacer:    rate.NewLimiter(rate.Every(requestFloor), 1),
		logger:   logger,
		breakers: make(map[string]*resilience.CircuitBreaker),
	}
}

// breaker returns the circuit breaker for a database, creating it on first
// use. Breakers are scoped per database, never shared.
func (e *Extractor) breaker(databaseID string) *resilience.CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()
	cb, ok := e.breakers[databaseID]
	if !ok {
		cb = resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig())
		e.breakers[databaseID] = cb
	}
	return cb
}

// Extract retrieves every record in the database, following the pagination
// cursor until the source reports no more pages. On failure after retries
// the partial pages already fetched are discarded and an *ExternalError
// naming the database is returned.
func (e *Extractor) Extract(ctx context.Context, databaseID string, filter *Filter) ([]Record, error) {
	cb := e.breaker(databaseID)

	var all []Record
	cursor := ""
	pages := 0

	for {
		page, err := e.fetchPage(ctx, cb, databaseID, cursor, filter)
		if err != nil {
			return nil, &ExternalError{Database: databaseID, Err: err}
		}

		all = append(all, page.Records...)
		pages++

		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}

	e.logger.Info("extraction completed",
		"database", databaseID,
		"records", len(all),
		"pages", pages)
	return all, nil
}

// fetchPage fetches a single page with pacing, circuit breaking, and retry.
func (e *Extractor) fetchPage(ctx context.Context, cb *resilience.CircuitBreaker, databaseID, cursor string, filter *Filter) (*Page, error) {
	var page *Page
	err := resilience.Retry(ctx, e.retry, func(ctx context.Context) error {
		if err := cb.Allow(); err != nil {
			// An open circuit will not recover within one backoff cycle;
			// fail the whole extraction immediately.
			return resilience.Permanent(err)
		}
		if err := e.pacer.Wait(ctx); err != nil {
			return resilience.Permanent(fmt.Errorf("request pacing: %w", err))
		}

		p, err := e.src.Query(ctx, databaseID, cursor, filter)
		if err != nil {
			// Rate limiting is backpressure, not a source fault.
			var rl *RateLimitError
			if !errors.As(err, &rl) {
				cb.Failure()
			}
			e.logger.Warn("page fetch failed",
				"database", databaseID,
				"cursor", cursor,
				"error", err)
			return err
		}

		cb.Success()
		page = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}
