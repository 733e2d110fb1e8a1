package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"keepsake/internal/server/api"
	"keepsake/internal/server/config"
	"keepsake/internal/server/service"
	"keepsake/internal/server/session"
	"keepsake/internal/server/storage"
)

func main() {
	// Structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load config
	cfg := config.Load()
	slog.Info("configuration loaded",
		"port", cfg.Port,
		"media_dir", cfg.MediaDir,
		"max_file_size", cfg.MaxFileSize,
		"session_ttl", cfg.SessionTTL,
	)

	// Initialize the media store
	store := storage.NewFileSystemStore(cfg.MediaDir, cfg.TmpDir)
	if err := store.EnsureDirs(); err != nil {
		slog.Error("failed to initialize media store", "error", err)
		os.Exit(1)
	}
	slog.Info("media store initialized", "path", cfg.MediaDir)

	// Initialize the chunked-upload session store and its sweeper
	sessions := session.NewStore(cfg.TmpDir, cfg.SessionTTL)
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	sweeper := session.NewSweeper(sessions, cfg.SweepInterval)
	sweeper.Start(sweepCtx)

	// Initialize service and HTTP router
	svc := service.NewUploadService(store, sessions, cfg)
	handler := api.NewHandler(svc)
	e := api.SetupRouter(handler, cfg)

	// Start server in a goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		slog.Info("starting server", "addr", addr, "base_url", cfg.BaseURL)
		if err := e.Start(addr); err != nil {
			slog.Info("server stopped", "reason", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down", "signal", sig)

	// Stop accepting new requests, finish in-flight with 30s timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop the session sweeper
	sweepCancel()
	sweeper.Wait()

	slog.Info("server exited cleanly")
}
