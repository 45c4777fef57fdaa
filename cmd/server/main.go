package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pep299/autoinsight/internal/config"
	"github.com/pep299/autoinsight/internal/handlers"
	"github.com/pep299/autoinsight/internal/logging"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.SetDefault(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create server
	server, err := handlers.NewServer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// Create HTTP server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler:      server.SetupRoutes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.WriteTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	// Sweep expired summaries on a schedule
	c := cron.New()
	if cfg.CacheType == config.CacheMemory {
		_, err := c.AddFunc(cfg.CacheCleanupSchedule, func() {
			removed, err := server.CacheManager().CleanupExpired(ctx)
			if err != nil {
				logger.Warn("cache cleanup failed", "error", err)
				return
			}
			logger.Debug("cache cleanup completed", "removed", removed)
		})
		if err != nil {
			logger.Error("failed to schedule cache cleanup", "schedule", cfg.CacheCleanupSchedule, "error", err)
			os.Exit(1)
		}
		logger.Info("scheduled cache cleanup", "schedule", cfg.CacheCleanupSchedule)
	}
	c.Start()
	defer c.Stop()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server
	go func() {
		logger.Info("starting server", "addr", httpServer.Addr, "version", handlers.Version)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	logger.Info("shutting down server")

	// Cancel background tasks
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
