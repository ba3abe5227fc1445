package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/abelbrown/civicwatch/internal/aggregate"
	"github.com/abelbrown/civicwatch/internal/analysis"
	"github.com/abelbrown/civicwatch/internal/brain"
	"github.com/abelbrown/civicwatch/internal/cache"
	"github.com/abelbrown/civicwatch/internal/config"
	"github.com/abelbrown/civicwatch/internal/feeds"
	"github.com/abelbrown/civicwatch/internal/fetch"
	"github.com/abelbrown/civicwatch/internal/logging"
)

// app holds the wired components shared by every command.
type app struct {
	cfg        *config.Config
	log        *log.Logger
	store      cache.BlobStore
	aggregator *aggregate.Aggregator
	dispatcher *analysis.Dispatcher
}

// loadConfig reads --config (if set) plus the environment and validates.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds a logger for w at the configured level.
func newLogger(cfg *config.Config, w io.Writer) (*log.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	return logging.New(w, level), nil
}

// openStore opens the configured blob store.
func openStore(ctx context.Context, cfg config.CacheConfig) (cache.BlobStore, error) {
	switch cfg.Backend {
	case config.BackendFile:
		return cache.NewFileStore(cfg.Dir)
	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
		return cache.OpenSQLite(cfg.SQLitePath)
	case config.BackendPostgres:
		return cache.OpenPostgres(ctx, cfg.PostgresDSN)
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
}

// newApp wires the pipeline from cfg. requireAI fails early when the
// command cannot work without an API key.
func newApp(ctx context.Context, cfg *config.Config, logger *log.Logger, requireAI bool) (*app, error) {
	if requireAI {
		if err := cfg.RequireAI(); err != nil {
			return nil, err
		}
	}

	store, err := openStore(ctx, cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	fetcher := fetch.NewFetcher(fetch.Options{
		Timeout:    cfg.Fetch.Timeout,
		UserAgent:  cfg.Fetch.UserAgent,
		MaxRetries: cfg.Fetch.MaxRetries,
		RetryDelay: cfg.Fetch.RetryDelay,
	})

	agg := aggregate.New(fetcher, feeds.NewParser(),
		cache.NewFallback(store, cfg.Cache.NewsKey, logger.WithPrefix("cache")),
		aggregate.Options{
			Sources:   cfg.Feeds.Sources,
			PerSource: cfg.Feeds.PerSourceLimit,
			Total:     cfg.Feeds.TotalLimit,
			Timeout:   cfg.Feeds.AggregateTimeout,
			Logger:    logger.WithPrefix("aggregate"),
		})

	provider := brain.NewGeminiProvider(brain.GeminiOptions{
		APIKey:            cfg.Gemini.APIKey,
		Model:             cfg.Gemini.Model,
		Endpoint:          cfg.Gemini.Endpoint,
		Timeout:           cfg.Gemini.Timeout,
		RequestsPerSecond: cfg.Gemini.RequestsPerSecond,
		Logger:            logger.WithPrefix("gemini"),
	})

	dispatcher := analysis.New(agg, provider, analysis.Options{
		Store:       store,
		ReportKey:   cfg.Cache.AnalysisKey,
		Concurrency: cfg.Analysis.Concurrency,
		Logger:      logger.WithPrefix("analysis"),
	})

	return &app{
		cfg:        cfg,
		log:        logger,
		store:      store,
		aggregator: agg,
		dispatcher: dispatcher,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// parseFlags parses args, treating -h as a clean exit.
func parseFlags(fs *pflag.FlagSet, args []string) (help bool, err error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return true, nil
		}
		return false, err
	}
	return false, nil
}
