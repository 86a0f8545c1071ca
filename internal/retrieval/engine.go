package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/loomhq/loom/internal/cache"
	"github.com/loomhq/loom/internal/log"
	"github.com/loomhq/loom/internal/provider"
	"github.com/loomhq/loom/internal/router"
	"github.com/loomhq/loom/internal/store"
	"github.com/loomhq/loom/internal/vector"
)

const (
	defaultLimit = 10
	cacheTTL     = 10 * time.Minute

	vectorTopK          = 6
	vectorContextLimit  = 3
	similarityThreshold = 0.5

	weightTitle   = 3.0
	weightSummary = 2.0
	weightContent = 1.0
	boostTitle    = 2.0
	boostSummary  = 1.5

	// relevanceFloor excludes rows whose score does not clear it. A
	// single content-only keyword hit lands exactly on the floor and
	// is dropped as too weak.
	relevanceFloor = 1.0

	minKeywordLen = 2

	// candidateMultiplier widens the SQL candidate fetch beyond the
	// requested limit. The store orders candidates by recency, so a
	// pool no bigger than the limit could drop a highly relevant row
	// before scoring ever sees it.
	candidateMultiplier = 4
)

// Searcher is the relational search surface. *store.Store satisfies it.
type Searcher interface {
	Search(ctx context.Context, q store.SearchQuery) ([]store.Document, error)
}

// Invoker dispatches a synthesis request to a model. *router.Router
// satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, req router.Request, messages []provider.Message, opts provider.Options) (*provider.Completion, error)
}

// Result is one answered search.
type Result struct {
	Answer    string           `json:"answer"`
	Sources   []Citation       `json:"sources"`
	Documents []store.Document `json:"documents"`
	Provider  string           `json:"provider"`
	Model     string           `json:"model"`
	Usage     provider.Usage   `json:"usage"`
}

// Engine fuses ranked keyword search with vector similarity context
// and asks a routed model to synthesize a cited answer.
type Engine struct {
	searcher  Searcher
	index     vector.Index
	embedder  provider.Embedder
	llm       Invoker
	cache     *cache.Cache
	optimizer *cache.Optimizer
	logger    log.Logger
}

func NewEngine(searcher Searcher, index vector.Index, embedder provider.Embedder, llm Invoker, c *cache.Cache, logger log.Logger) *Engine {
	return &Engine{
		searcher:  searcher,
		index:     index,
		embedder:  embedder,
		llm:       llm,
		cache:     c,
		optimizer: cache.NewOptimizer(cache.OptimizerConfig{}, logger),
		logger:    logger,
	}
}

// Optimizer exposes the access-pattern tracker so a maintenance loop
// can apply its advice to the cache.
func (e *Engine) Optimizer() *cache.Optimizer {
	return e.optimizer
}

// Search answers a query within the persona's visibility scope.
func (e *Engine) Search(ctx context.Context, query, personaName string, limit int) (*Result, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	persona := LookupPersona(personaName)
	keywords := Keywords(query)

	docs, err := e.searchDocuments(ctx, persona, query, keywords, limit)
	if err != nil {
		return nil, err
	}

	contexts := e.vectorContext(ctx, persona, query)
	for _, d := range docs {
		contexts = append(contexts, formatDocument(d))
	}

	comp, err := e.synthesize(ctx, persona, query, contexts)
	if err != nil {
		return nil, fmt.Errorf("synthesize answer: %w", err)
	}

	return &Result{
		Answer:    comp.Content,
		Sources:   ParseCitations(comp.Content),
		Documents: docs,
		Provider:  comp.Provider,
		Model:     comp.Model,
		Usage:     comp.Usage,
	}, nil
}

// searchDocuments runs the ranked keyword search, serving repeats from
// the cache.
func (e *Engine) searchDocuments(ctx context.Context, persona Persona, query string, keywords []string, limit int) ([]store.Document, error) {
	key := cacheKey(persona, keywords, limit)
	if cached, ok := e.cache.Get(key); ok {
		if docs, ok := cached.([]store.Document); ok {
			e.optimizer.Record(key, true, 0)
			return cloneDocuments(docs), nil
		}
	}
	start := time.Now()

	q := store.SearchQuery{
		Tables:     searchTables(persona),
		Visibility: persona.Visibility,
		Keywords:   keywords,
		Limit:      limit * candidateMultiplier,
	}
	if !persona.Internal() {
		q.Statuses = persona.Statuses
		q.Lang = persona.Lang
	}

	docs, err := e.searcher.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	docs = rankDocuments(docs, query, keywords, limit)
	e.cache.Set(key, docs, cacheTTL)
	e.optimizer.Record(key, false, time.Since(start))
	return cloneDocuments(docs), nil
}

// cloneDocuments copies the cached slice so callers cannot mutate the
// entry under later readers.
func cloneDocuments(docs []store.Document) []store.Document {
	out := make([]store.Document, len(docs))
	copy(out, docs)
	return out
}

// rankDocuments scores rows over the weighted fields, drops everything
// at or below the relevance floor, and returns the top rows.
func rankDocuments(docs []store.Document, query string, keywords []string, limit int) []store.Document {
	ranked := make([]store.Document, 0, len(docs))
	for _, d := range docs {
		d.Score = scoreDocument(d, query, keywords)
		if d.Score > relevanceFloor {
			ranked = append(ranked, d)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func scoreDocument(d store.Document, query string, keywords []string) float64 {
	title := strings.ToLower(d.Title)
	summary := strings.ToLower(d.Summary)
	notes := strings.ToLower(d.Notes)
	content := strings.ToLower(d.Content)

	var score float64
	for _, kw := range keywords {
		if strings.Contains(title, kw) {
			score += weightTitle
		}
		if strings.Contains(summary, kw) || strings.Contains(notes, kw) {
			score += weightSummary
		}
		if strings.Contains(content, kw) {
			score += weightContent
		}
	}

	q := strings.ToLower(strings.TrimSpace(query))
	switch {
	case q == "":
	case strings.Contains(title, q):
		score *= boostTitle
	case strings.Contains(summary, q):
		score *= boostSummary
	}
	return score
}

// Keywords splits a query into lowercase terms worth matching on.
func Keywords(query string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, `.,;:!?"'()`)
		if len(w) > minKeywordLen {
			out = append(out, w)
		}
	}
	return out
}

func cacheKey(persona Persona, keywords []string, limit int) string {
	return fmt.Sprintf("search:%s:%d:%s", persona.Name, limit, strings.Join(keywords, ","))
}

// vectorContext fetches similarity matches scoped to the persona's
// namespace and formats the strongest ones as context blocks. Any
// failure or an empty result falls back to the persona's static
// contexts so answer synthesis never starves.
func (e *Engine) vectorContext(ctx context.Context, persona Persona, query string) []string {
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		e.logger.Warn("query embedding failed, using fallback context", "error", err)
		return persona.Fallback
	}

	matches, err := e.index.Query(ctx, vector.Namespace(persona.Visibility), vec, vectorTopK)
	if err != nil {
		e.logger.Warn("vector search failed, using fallback context", "error", err)
		return persona.Fallback
	}

	var out []string
	for _, m := range matches {
		if m.Similarity < similarityThreshold {
			continue
		}
		out = append(out, fmt.Sprintf("Source: %s from %s: %s",
			m.Metadata.Title, m.Metadata.Table, m.Metadata.Content))
		if len(out) == vectorContextLimit {
			break
		}
	}
	if len(out) == 0 {
		return persona.Fallback
	}
	return out
}

func formatDocument(d store.Document) string {
	body := d.Summary
	if body == "" {
		body = d.Content
	}
	if body == "" {
		body = d.Notes
	}
	return fmt.Sprintf("Source: %s from %s: %s", d.Title, d.Table, vector.TruncateContent(body))
}

func (e *Engine) synthesize(ctx context.Context, persona Persona, query string, contexts []string) (*provider.Completion, error) {
	system := persona.SystemPrompt + "\n\nContext:\n" + strings.Join(contexts, "\n")

	messages := []provider.Message{
		{Role: provider.RoleSystem, Content: system},
		{Role: provider.RoleUser, Content: query},
	}

	req := router.Request{
		Intent:  router.IntentQA,
		Length:  len(system) + len(query),
		Persona: persona.Name,
	}
	return e.llm.Invoke(ctx, req, messages, provider.Options{Temperature: 0.4})
}
