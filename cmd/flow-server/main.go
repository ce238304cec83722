// Command flow-server stores the shared flow and pushes every save to the
// connected editors.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gameflow/internal/config"
	"gameflow/internal/di"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, cleanup, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}

	err = run(ctx, container)
	cleanup()
	if err != nil {
		container.Logger.Error("Server stopped with error", zap.Error(err))
		container.Logger.Sync()
		os.Exit(1)
	}
	container.Logger.Info("Server stopped")
	container.Logger.Sync()
}

func run(ctx context.Context, c *di.Container) error {
	logger := c.Logger
	srv := c.Server
	srv.ReadHeaderTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.Hub.Run(ctx)
	})
	g.Go(func() error {
		return c.Fanout.Run(ctx)
	})
	if c.Watcher != nil {
		g.Go(func() error {
			return c.Watcher.Run(ctx)
		})
	}

	g.Go(func() error {
		logger.Info("Starting server",
			zap.String("address", srv.Addr),
			zap.String("environment", c.Config.Environment),
			zap.String("storage", c.Config.StorageBackend),
			zap.String("fanout", c.Config.Fanout),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.Config.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", zap.Error(err))
		}
		return c.Fanout.Close()
	})

	return g.Wait()
}
