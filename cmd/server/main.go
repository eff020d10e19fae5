package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/arena2036/vec-aas-uploader/api/handlers"
	"github.com/arena2036/vec-aas-uploader/api/routes"
	"github.com/arena2036/vec-aas-uploader/config"
	"github.com/arena2036/vec-aas-uploader/internal/service/upload"
	"github.com/arena2036/vec-aas-uploader/internal/utils/validator"
	"github.com/arena2036/vec-aas-uploader/pkg/logger"
)

func main() {
	cfg := config.MustLoad()

	// init logger
	log, err := logger.NewLogger(
		logger.WithLevel(cfg.Log.Level),
		logger.WithEncoding(cfg.Log.Encoding),
		logger.WithOutputPaths(cfg.Log.OutputPaths),
		logger.WithDevelopment(cfg.Log.Development),
		logger.WithInitialFields(map[string]interface{}{"service": "api"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// runs dispatched in-process outlive requests but not the process
	runCtx, cancelRuns := context.WithCancel(context.Background())
	defer cancelRuns()

	components, err := upload.GetService(runCtx, cfg, log)
	if err != nil {
		log.Fatal("Failed to get upload service", logger.Error(err))
	}
	defer components.Close()

	gin.SetMode(cfg.Server.Mode)
	h := handlers.NewHandlers(components.Service, validator.DefaultMaxFileSize, cfg.Server.EventInterval, log)
	r := gin.New()
	r.Use(gin.Recovery())
	routes.SetupRoutes(r, h, cfg.Server.AllowOrigins, log)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("Server starting", logger.String("addr", cfg.Server.Addr), logger.String("dispatch", cfg.Dispatch.Mode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		cleanupStorage(gctx, components, cfg.Storage.Retention, log)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")

		// graceful shutdown
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Server forced to shutdown", logger.Error(err))
		}

		cancelRuns()
		if components.Local != nil {
			components.Local.Wait()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("Server error", logger.Error(err))
		os.Exit(1)
	}
	log.Info("Server stopped")
}

// cleanupStorage removes files left behind by runs that never finished.
func cleanupStorage(ctx context.Context, c *upload.Components, retention time.Duration, log logger.Logger) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(retention / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Storage.CleanupBefore(ctx, time.Now().Add(-retention)); err != nil {
				log.Warn("Storage cleanup failed", logger.Error(err))
			}
		}
	}
}
