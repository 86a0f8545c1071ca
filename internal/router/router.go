package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/loomhq/loom/internal/log"
	"github.com/loomhq/loom/internal/metrics"
	"github.com/loomhq/loom/internal/provider"
)

// Strategy re-ranks a candidate tier before dispatch.
type Strategy string

const (
	PrioritizeSpeed   Strategy = "speed"
	PrioritizeCost    Strategy = "cost"
	PrioritizeQuality Strategy = "quality"
)

// healthySuccessRate is the floor below which a pair is deprioritized
// during re-ranking.
const healthySuccessRate = 0.9

const invokeAttempts = 2

var ErrNoProvider = errors.New("router: no provider registered")

// Router selects a provider/model pair per request and dispatches to
// it, tracking live stats and falling back when the pick fails.
type Router struct {
	providers map[string]provider.Provider
	metrics   *Metrics
	strategy  Strategy
	fallback  Candidate
	logger    log.Logger
}

type Option func(*Router)

// WithStrategy sets the re-ranking strategy. The zero value applies
// rule order as-is.
func WithStrategy(s Strategy) Option {
	return func(r *Router) { r.strategy = s }
}

// WithFallback sets the pair used when every candidate in the selected
// tier fails.
func WithFallback(c Candidate) Option {
	return func(r *Router) { r.fallback = c }
}

func New(logger log.Logger, opts ...Option) *Router {
	r := &Router{
		providers: make(map[string]provider.Provider),
		metrics:   NewMetrics(),
		fallback:  cheapCandidates[0],
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register makes a provider available for dispatch under its name.
func (r *Router) Register(p provider.Provider) {
	r.providers[p.Name()] = p
}

// Metrics exposes the live stats, for reporting endpoints.
func (r *Router) Metrics() *Metrics {
	return r.metrics
}

// PickCandidate returns the candidates for the request in dispatch
// order: the matching tier, re-ranked by strategy, filtered to
// registered providers.
func (r *Router) PickCandidate(req Request) []Candidate {
	tier := selectTier(req)

	avail := make([]Candidate, 0, len(tier))
	for _, c := range tier {
		if _, ok := r.providers[c.Provider]; ok {
			avail = append(avail, c)
		}
	}
	r.rank(avail)
	return avail
}

// rank reorders candidates per the strategy. Unhealthy pairs sink to
// the back regardless of strategy so a degraded model is only used
// when nothing else is left.
func (r *Router) rank(cs []Candidate) {
	if len(cs) < 2 {
		return
	}

	sort.SliceStable(cs, func(i, j int) bool {
		si, sj := r.metrics.Stats(cs[i]), r.metrics.Stats(cs[j])
		hi, hj := si.SuccessRate() >= healthySuccessRate, sj.SuccessRate() >= healthySuccessRate
		if hi != hj {
			return hi
		}

		switch r.strategy {
		case PrioritizeSpeed:
			// Unobserved pairs keep their tier order.
			if si.Requests == 0 || sj.Requests == 0 {
				return false
			}
			return si.AvgResponseTime < sj.AvgResponseTime
		case PrioritizeCost:
			return costPerToken[cs[i].Key()] < costPerToken[cs[j].Key()]
		default:
			return false
		}
	})
}

// Invoke picks a candidate for the request and dispatches the
// messages to it. Each candidate gets a bounded number of attempts;
// when the whole tier fails the configured fallback pair is tried
// once. Every attempt is recorded in the live stats.
func (r *Router) Invoke(ctx context.Context, req Request, messages []provider.Message, opts provider.Options) (*provider.Completion, error) {
	candidates := r.PickCandidate(req)
	if len(candidates) == 0 {
		return nil, ErrNoProvider
	}

	var lastErr error
	for _, c := range candidates {
		comp, err := r.tryCandidate(ctx, c, messages, opts, invokeAttempts)
		if err == nil {
			return comp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, lastErr
		}
		r.logger.Warn("candidate failed, trying next",
			"provider", c.Provider, "model", c.Model, "error", err)
	}

	if _, ok := r.providers[r.fallback.Provider]; ok && !containsCandidate(candidates, r.fallback) {
		r.logger.Warn("all candidates failed, using fallback",
			"provider", r.fallback.Provider, "model", r.fallback.Model)
		comp, err := r.tryCandidate(ctx, r.fallback, messages, opts, 1)
		if err == nil {
			return comp, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("router: all candidates failed: %w", lastErr)
}

func (r *Router) tryCandidate(ctx context.Context, c Candidate, messages []provider.Message, opts provider.Options, attempts int) (*provider.Completion, error) {
	p, ok := r.providers[c.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoProvider, c.Provider)
	}

	opts.Model = c.Model

	var lastErr error
	for i := 0; i < attempts; i++ {
		start := time.Now()
		comp, err := p.Invoke(ctx, messages, opts)
		elapsed := time.Since(start)

		tokens := 0
		if comp != nil {
			tokens = comp.Usage.TotalTokens
		}
		r.metrics.Record(c, elapsed, tokens, err != nil)

		result := "success"
		if err != nil {
			result = "failure"
		}
		metrics.ProviderInvocations.WithLabelValues(c.Provider, c.Model, result).Inc()

		if err == nil {
			return comp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func containsCandidate(cs []Candidate, c Candidate) bool {
	for _, x := range cs {
		if x == c {
			return true
		}
	}
	return false
}
