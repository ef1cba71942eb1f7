package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"perp-stats-engine/internal/config"
	"perp-stats-engine/internal/domain"
	"perp-stats-engine/internal/engine"
	"perp-stats-engine/internal/ingestion"
	"perp-stats-engine/internal/observability"
	"perp-stats-engine/internal/repository"
	"perp-stats-engine/internal/storage"
	chstore "perp-stats-engine/internal/storage/clickhouse"
	"perp-stats-engine/internal/storage/memory"
	"perp-stats-engine/internal/storage/migrations"
	pgstore "perp-stats-engine/internal/storage/postgres"
	redisstore "perp-stats-engine/internal/storage/redis"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "configs/aggregator.yaml", "Path to YAML config")
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before the config")
	flag.Parse()

	if err := config.LoadDotenv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "aggregator: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "aggregator: %v\n", err)
		os.Exit(1)
	}

	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "aggregator: %v\n", err)
		os.Exit(1)
	}
	logger = logger.With().Str("service", "aggregator").Str("deployment", cfg.Deployment.Name).Logger()

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Channel to signal main goroutine completion
	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("initiating graceful shutdown")
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Warn().Str("signal", sig.String()).Msg("forcing immediate shutdown")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Error().Msg("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	err = run(ctx, cfg, logger)

	// Signal completion to shutdown handler
	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("aggregator failed")
	}

	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	metrics := observability.NewMetrics(cfg.Metrics.Namespace)

	store, closeStore, err := openStore(ctx, cfg.Storage, metrics, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	sink, closeSink, err := openMirror(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer closeSink()

	opts, err := engine.FromConfig(cfg)
	if err != nil {
		return err
	}
	opts.Metrics = metrics
	opts.Logger = logger

	eng, err := engine.New(repository.New(store, sink, logger), opts)
	if err != nil {
		return err
	}

	progress, err := eng.Progress(ctx)
	switch {
	case err == nil:
		logger.Info().
			Int64("block", progress.Cursor.BlockNumber).
			Int64("events", progress.EventCount).
			Str("previous_run", progress.RunID).
			Msg("resuming from checkpoint")
	case errors.Is(err, storage.ErrNotFound):
		progress = nil
	default:
		return fmt.Errorf("load checkpoint: %w", err)
	}

	source, err := openSource(cfg.Source, progress, metrics, logger)
	if err != nil {
		return err
	}

	server := startMetricsServer(cfg.Metrics, metrics, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	runner := ingestion.NewRunner(ingestion.RunnerOptions{
		Source:        source,
		Handler:       eng,
		BlockLag:      cfg.Source.BlockLag,
		FlushInterval: cfg.Source.FlushInterval,
		Logger:        logger,
	})

	err = runner.Run(ctx)

	stats := eng.Stats()
	logger.Info().
		Str("run_id", eng.RunID()).
		Int64("delivered", runner.Delivered()).
		Int64("processed", stats.Processed).
		Int64("duplicates", stats.Duplicates).
		Int64("regressions", stats.Regressions).
		Int64("anomalies", stats.Anomalies).
		Msg("run finished")

	return err
}

// openStore connects the configured backend, wrapped with query metrics.
func openStore(ctx context.Context, cfg config.StorageConfig, metrics *observability.Metrics, logger zerolog.Logger) (storage.EntityStore, func(), error) {
	switch cfg.Backend {
	case "postgres":
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
		if err != nil {
			return nil, nil, err
		}
		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		logger.Info().Strs("applied", applied).Msg("postgres migrations complete")
		store := observability.InstrumentStore(pgstore.NewEntityStore(pool), metrics, "postgres")
		return store, pool.Close, nil

	case "redis":
		client, err := redisstore.NewClient(ctx, cfg.RedisDSN)
		if err != nil {
			return nil, nil, err
		}
		store := observability.InstrumentStore(redisstore.NewEntityStore(client, cfg.RedisPrefix), metrics, "redis")
		return store, func() { client.Close() }, nil

	default:
		logger.Warn().Msg("using in-memory store, state is lost on exit")
		store := observability.InstrumentStore(memory.NewEntityStore(), metrics, "memory")
		return store, func() {}, nil
	}
}

// openMirror connects the ClickHouse mirror when a DSN is configured.
func openMirror(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger) (storage.ChangeSink, func(), error) {
	if cfg.ClickhouseDSN == "" {
		return nil, func() {}, nil
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}
	logger.Info().Msg("clickhouse mirror enabled")
	return chstore.NewMirror(conn), func() { conn.Close() }, nil
}

func openSource(cfg config.SourceConfig, progress *domain.Progress, metrics *observability.Metrics, logger zerolog.Logger) (ingestion.Source, error) {
	switch cfg.Kind {
	case "ws":
		src := ingestion.NewWSSource(ingestion.WSConfig{
			URL:               cfg.URL,
			ReconnectDelay:    cfg.ReconnectBaseDelay,
			MaxReconnectDelay: cfg.ReconnectMaxDelay,
			PingInterval:      cfg.PingInterval,
			ReadTimeout:       cfg.ReadTimeout,
			BufferSize:        cfg.BufferSize,
		}, metrics, logger)
		if progress != nil && progress.EventCount > 0 {
			src.ResumeFrom(progress.Cursor)
		}
		return src, nil
	case "file":
		// redelivered events are acknowledged by the dedup ledger
		return ingestion.NewFileSource(cfg.Path, cfg.BufferSize), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Kind)
	}
}

func startMetricsServer(cfg config.MetricsConfig, metrics *observability.Metrics, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("path", cfg.Path).Msg("metrics server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()
	return server
}
