package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/brightline/vantage/internal/api"
	"github.com/brightline/vantage/internal/archive"
	"github.com/brightline/vantage/internal/scheduler"
)

// startWorker launches a background worker goroutine that respects context
// cancellation. Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	s, store, err := buildSyncer(cfg)
	if err != nil {
		return err
	}
	slog.Info("store initialized", "path", cfg.Database.Path)

	uploader, err := archive.NewUploader(cfg.Archive)
	if err != nil {
		return err
	}

	handler := api.NewHandler(store, s, uploader, cfg.Auth.APIKey, Version)
	router := api.NewRouter(handler)

	var wg sync.WaitGroup
	if cfg.Sync.Interval > 0 && cfg.Sync.NamesFile != "" {
		namesFile := cfg.Sync.NamesFile
		coord := scheduler.New(s, func() ([]string, error) {
			return readNamesFile(namesFile)
		}, time.Duration(cfg.Sync.Interval))
		startWorker(ctx, &wg, "sync-coordinator", coord.Run)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	go func() {
		slog.Info("server starting", "address", addr)
		// ErrServerClosed is the expected error when Shutdown() is called
		// gracefully. Any other error triggers shutdown.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown initiated")

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	wg.Wait()

	if err := store.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
