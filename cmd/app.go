package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loomhq/loom/db"
	"github.com/loomhq/loom/internal/cache"
	"github.com/loomhq/loom/internal/config"
	"github.com/loomhq/loom/internal/database"
	"github.com/loomhq/loom/internal/log"
	"github.com/loomhq/loom/internal/objectstore"
	"github.com/loomhq/loom/internal/provider"
	"github.com/loomhq/loom/internal/retrieval"
	"github.com/loomhq/loom/internal/router"
	"github.com/loomhq/loom/internal/source"
	"github.com/loomhq/loom/internal/store"
	"github.com/loomhq/loom/internal/syncer"
	"github.com/loomhq/loom/internal/transform"
	"github.com/loomhq/loom/internal/vector"
)

// app holds the wired components shared by the serve and sync commands.
type app struct {
	cfg    *config.Config
	logger log.Logger
	pool   *pgxpool.Pool

	store      *store.Store
	cache      *cache.Cache
	syncer     *syncer.Syncer
	engine     *retrieval.Engine
	modelStats *router.Metrics
}

func newLogger() log.Logger {
	return log.New(log.Config{
		Level: slog.LevelInfo,
		JSON:  os.Getenv("LOOM_LOG_FORMAT") == "json",
	})
}

// setup loads configuration, migrates the schema and wires every
// component. Callers must Close the returned app.
func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger := newLogger()

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := database.Open(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	st := store.New(pool, logger)
	idx := vector.NewPGIndex(pool, logger)

	objects, err := objectstore.NewFS(cfg.ObjectStoreRoot, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("opening object store: %w", err)
	}

	gemini, err := provider.NewGemini(ctx, cfg.GeminiAPIKey, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating gemini provider: %w", err)
	}

	rt := router.New(logger, router.WithStrategy(router.Strategy(cfg.RouterStrategy)))
	rt.Register(gemini)
	for _, p := range cfg.Providers {
		compat, err := provider.NewOpenAICompatible(p.Name, p.APIKey, p.BaseURL)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("creating provider %s: %w", p.Name, err)
		}
		rt.Register(compat)
	}

	src, err := source.NewClient(cfg.SourceToken)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating source client: %w", err)
	}
	extractor := source.NewExtractor(src, logger)

	loader := syncer.NewLoader(st, objects, idx, gemini, logger)

	databases := make([]syncer.DatabaseConfig, 0, len(cfg.Databases))
	for _, d := range cfg.Databases {
		databases = append(databases, syncer.DatabaseConfig{
			ID:      d.ID,
			Name:    d.Name,
			Table:   store.Table(d.Table),
			Mapping: transform.Mapping(d.Mapping),
		})
	}
	sync := syncer.New(src, extractor, loader, st, databases, logger)

	c := cache.New(cache.Config{Capacity: cfg.CacheCapacity}, logger)
	engine := retrieval.NewEngine(st, idx, gemini, rt, c, logger)

	return &app{
		cfg:        cfg,
		logger:     logger,
		pool:       pool,
		store:      st,
		cache:      c,
		syncer:     sync,
		engine:     engine,
		modelStats: rt.Metrics(),
	}, nil
}

func (a *app) Close() {
	a.pool.Close()
}
