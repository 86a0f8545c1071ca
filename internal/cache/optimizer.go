package cache

import (
	"log/slog"
	"sync"
	"time"
)

// Recommendation classifies a key from its recent access pattern.
type Recommendation string

const (
	// RecommendPrewarm marks keys fetched often but rarely found in cache.
	RecommendPrewarm Recommendation = "prewarm"
	// RecommendEvict marks stale, rarely used keys.
	RecommendEvict Recommendation = "evict"
	// RecommendOptimize marks hot keys whose misses are expensive to fill.
	RecommendOptimize Recommendation = "optimize-query"
)

// Advice pairs a key with its recommendation.
type Advice struct {
	Key            string         `json:"key"`
	Recommendation Recommendation `json:"recommendation"`
	Frequency      int            `json:"frequency"`
	HitRate        float64        `json:"hitRate"`
	AvgLatency     time.Duration  `json:"avgLatency"`
}

// accessRecord accumulates per-key accesses within the current window.
type accessRecord struct {
	accesses     int
	hits         int
	totalLatency time.Duration
	lastAccess   time.Time
}

// OptimizerConfig tunes the classification thresholds.
type OptimizerConfig struct {
	Window        time.Duration // Rolling window length (default: 10m)
	HotFrequency  int           // Accesses/window considered "high" (default: 10)
	ColdFrequency int           // Accesses/window considered "low" (default: 2)
	LowHitRate    float64       // Hit rate considered "low" (default: 0.5)
	SlowLatency   time.Duration // Fill latency considered "high" (default: 250ms)
	StaleAfter    time.Duration // Idle time before a key is stale (default: 5m)
}

func (c OptimizerConfig) normalize() OptimizerConfig {
	if c.Window <= 0 {
		c.Window = 10 * time.Minute
	}
	if c.HotFrequency <= 0 {
		c.HotFrequency = 10
	}
	if c.ColdFrequency <= 0 {
		c.ColdFrequency = 2
	}
	if c.LowHitRate <= 0 {
		c.LowHitRate = 0.5
	}
	if c.SlowLatency <= 0 {
		c.SlowLatency = 250 * time.Millisecond
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 5 * time.Minute
	}
	return c
}

// Optimizer tracks per-key access patterns over a rolling window and
// classifies keys as prewarm, evict, or optimize candidates. It is advisory
// only: nothing mutates the cache except an explicit Maintain pass.
type Optimizer struct {
	mu          sync.Mutex
	records     map[string]*accessRecord
	windowStart time.Time

	cfg    OptimizerConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewOptimizer creates an optimizer with the given thresholds.
func NewOptimizer(cfg OptimizerConfig, logger *slog.Logger) *Optimizer {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.normalize()
	return &Optimizer{
		records:     make(map[string]*accessRecord),
		windowStart: time.Now(),
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
}

// Record notes one access to key. hit reports whether the cache served it;
// latency is the fill cost on a miss (zero on hits).
func (o *Optimizer) Record(key string, hit bool, latency time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	if now.Sub(o.windowStart) > o.cfg.Window {
		o.records = make(map[string]*accessRecord)
		o.windowStart = now
	}

	r, ok := o.records[key]
	if !ok {
		r = &accessRecord{}
		o.records[key] = r
	}
	r.accesses++
	if hit {
		r.hits++
	}
	r.totalLatency += latency
	r.lastAccess = now
}

// Advise returns the current recommendations. Classification, first match
// wins: optimize (hot and slow), prewarm (hot with low hit rate), evict
// (cold and stale).
func (o *Optimizer) Advise() []Advice {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	var out []Advice
	for key, r := range o.records {
		hitRate := float64(r.hits) / float64(r.accesses)
		var avgLatency time.Duration
		if misses := r.accesses - r.hits; misses > 0 {
			avgLatency = r.totalLatency / time.Duration(misses)
		}

		var rec Recommendation
		switch {
		case r.accesses >= o.cfg.HotFrequency && avgLatency >= o.cfg.SlowLatency:
			rec = RecommendOptimize
		case r.accesses >= o.cfg.HotFrequency && hitRate < o.cfg.LowHitRate:
			rec = RecommendPrewarm
		case r.accesses <= o.cfg.ColdFrequency && now.Sub(r.lastAccess) > o.cfg.StaleAfter:
			rec = RecommendEvict
		default:
			continue
		}

		out = append(out, Advice{
			Key:            key,
			Recommendation: rec,
			Frequency:      r.accesses,
			HitRate:        hitRate,
			AvgLatency:     avgLatency,
		})
	}
	return out
}

// Maintain applies the evict recommendations to c and returns the full
// advice list. This is the only path through which the optimizer mutates
// the cache.
func (o *Optimizer) Maintain(c *Cache) []Advice {
	advice := o.Advise()
	evicted := 0
	for _, a := range advice {
		if a.Recommendation == RecommendEvict {
			if c.Delete(a.Key) {
				evicted++
			}
		}
	}
	if evicted > 0 {
		o.logger.Info("cache maintenance evicted stale keys", "count", evicted)
	}
	return advice
}
