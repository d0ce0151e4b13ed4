package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/brightline/vantage/internal/config"
	"github.com/brightline/vantage/internal/docstore"
	"github.com/brightline/vantage/internal/identity"
	"github.com/brightline/vantage/internal/ratelimit"
	"github.com/brightline/vantage/internal/research"
	"github.com/brightline/vantage/internal/schema"
	"github.com/brightline/vantage/internal/snapshot"
	"github.com/brightline/vantage/internal/syncer"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "vantage",
	Short: "Vantage - Competitor Record Synchronization Service",
	Long:  "Researches tracked competitors, diffs the results against local snapshots, and pushes minimal updates to the external document store.",
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to the configuration file (overrides VANTAGE_CONFIG_PATH)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(statusCmd)
}

// loadConfig loads configuration and installs the configured logger. The
// --config flag takes precedence over the VANTAGE_CONFIG_PATH env var.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	initLogger(cfg.Log)
	return cfg, nil
}

func initLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildSyncer wires the full pipeline from configuration. The returned store
// must be closed by the caller.
func buildSyncer(cfg *config.Config) (*syncer.Syncer, *snapshot.SQLiteStore, error) {
	s, err := schema.Load(cfg.Schema.Path)
	if err != nil {
		return nil, nil, err
	}

	store, err := snapshot.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}

	resolver := identity.NewResolver(cfg.Identity.Suffixes)
	researcher := research.NewOpenAI(cfg.Research.APIKey, cfg.Research.Model, cfg.Research.CompanyContext, s)
	docs := docstore.NewHTTPStore(cfg.DocStore.BaseURL, cfg.DocStore.Token, cfg.DocStore.DatabaseID, cfg.DocStore.SummaryPageID)

	opts := syncer.Options{
		Workers:           cfg.Sync.Workers,
		RunTimeout:        time.Duration(cfg.Sync.RunTimeout),
		ResearchPolicy:    cfg.Research.Retry.Policy(),
		StorePolicy:       cfg.DocStore.Retry.Policy(),
		ResearchLimiter:   newLimiter(cfg.Research.RateLimit),
		StoreLimiter:      newLimiter(cfg.DocStore.RateLimit),
		DiscoveryLookback: time.Duration(cfg.Sync.DiscoveryLookback),
	}
	if cfg.Sync.Summary {
		opts.Summarizer = researcher
	}
	if cfg.Sync.Discovery {
		opts.Discoverer = researcher
	}

	return syncer.New(s, resolver, store, docs, researcher, opts), store, nil
}

func newLimiter(cfg config.RateLimitConfig) *ratelimit.Limiter {
	if cfg.Interval <= 0 {
		return nil
	}
	return ratelimit.NewLimiter(cfg.Burst, time.Duration(cfg.Interval))
}
