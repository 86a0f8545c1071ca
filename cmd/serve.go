package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/loomhq/loom/internal/api"
	"github.com/loomhq/loom/internal/observability"
)

const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 2 * time.Minute
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
	maintainInterval  = 5 * time.Minute
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.TelemetryEndpoint != "" {
		shutdown, err := observability.Setup(ctx, observability.Config{
			Endpoint:    a.cfg.TelemetryEndpoint,
			Environment: a.cfg.Environment,
			ServiceName: "loom",
		}, a.logger)
		if err != nil {
			return err
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				a.logger.Warn("trace flush failed", "error", err)
			}
		}()
	}

	server := api.NewServer(a.syncer, a.engine, a.store, a.cache, a.modelStats, a.logger)
	httpServer := &http.Server{
		Addr:              a.cfg.ServerAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("starting HTTP API server", "addr", a.cfg.ServerAddr, "version", AppVersion)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Expired-entry sweep for the search cache.
	g.Go(func() error {
		a.cache.Run(gctx)
		return nil
	})

	// Apply access-pattern advice to the cache on a slow cadence.
	g.Go(func() error {
		ticker := time.NewTicker(maintainInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				a.engine.Optimizer().Maintain(a.cache)
			}
		}
	})

	// Periodic incremental sync keeps the knowledge base fresh while
	// the server runs.
	g.Go(func() error {
		ticker := time.NewTicker(a.cfg.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				result, err := a.syncer.IncrementalSync(gctx, time.Time{})
				if err != nil {
					a.logger.Error("scheduled sync failed", "error", err)
					continue
				}
				a.logger.Info("scheduled sync finished",
					"processed", result.Processed,
					"updated", result.Updated,
					"errors", result.Errors)
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
