package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"

	"perp-stats-engine/internal/config"
	"perp-stats-engine/internal/domain"
	"perp-stats-engine/internal/engine"
	"perp-stats-engine/internal/idhash"
	"perp-stats-engine/internal/ingestion"
	"perp-stats-engine/internal/replay"
	"perp-stats-engine/internal/reporting"
	"perp-stats-engine/internal/repository"
	"perp-stats-engine/internal/storage"
	"perp-stats-engine/internal/storage/memory"
	"perp-stats-engine/internal/verification"
)

// Summary is the replay output.
type Summary struct {
	Events      int                  `json:"events"`
	Processed   int64                `json:"processed"`
	Duplicates  int64                `json:"duplicates"`
	Anomalies   int64                `json:"anomalies"`
	Failed      int                  `json:"failed"`
	Entities    int                  `json:"entities"`
	Digest      string               `json:"digest"`
	TradingStat *domain.TradingStat  `json:"trading_stat,omitempty"`
	OrderStat   *domain.OrderStat    `json:"order_stat,omitempty"`
	Progress    *domain.Progress     `json:"progress,omitempty"`
	Verify      *verification.Report `json:"verify,omitempty"`
}

func main() {
	// Parse flags
	configPath := flag.String("config", "configs/aggregator.yaml", "Path to YAML config (deployment and policies)")
	eventsPath := flag.String("events", "", "JSON-lines event log (required)")
	verify := flag.Bool("verify", false, "Replay twice and check the state is identical with redelivery")
	keepGoing := flag.Bool("keep-going", false, "Log failing events and continue")
	outputJSON := flag.Bool("json", false, "Output as JSON")
	reportDir := flag.String("report-dir", "", "Write report.md, candles.csv and trading_stats.csv to this directory")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Str("service", "replay").Logger()

	// Validate required flags
	if *eventsPath == "" {
		logger.Fatal().Msg("--events is required")
	}

	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	// replays always run against a fresh memory store
	cfg.Storage.Backend = "memory"
	cfg.Source.Kind = "file"
	cfg.Source.Path = *eventsPath
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("validate config")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	}()

	summary, store, err := run(ctx, cfg, *eventsPath, *verify, *keepGoing, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("replay failed")
	}

	if *reportDir != "" {
		if err := writeReport(ctx, store, cfg.Deployment.Name, summary, *reportDir); err != nil {
			logger.Fatal().Err(err).Msg("write report")
		}
		logger.Info().Str("dir", *reportDir).Msg("report written")
	}

	if *outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			logger.Fatal().Err(err).Msg("encode summary")
		}
	} else {
		printSummary(os.Stdout, summary)
	}

	if summary.Verify != nil && !summary.Verify.Match {
		os.Exit(2)
	}
}

func run(ctx context.Context, cfg *config.Config, path string, verify, keepGoing bool, logger zerolog.Logger) (*Summary, storage.EntityStore, error) {
	events, err := ingestion.ReadEventFile(path)
	if err != nil {
		return nil, nil, err
	}

	opts, err := engine.FromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	opts.Logger = logger.Level(zerolog.WarnLevel)

	store := memory.NewEntityStore()
	eng, err := engine.New(repository.New(store, nil, opts.Logger), opts)
	if err != nil {
		return nil, nil, err
	}

	summary := &Summary{Events: len(events)}
	runner := replay.NewRunner()
	if keepGoing {
		runner.OnError = func(ev *domain.Event, err error) error {
			summary.Failed++
			logger.Warn().Err(err).Str("event", ev.ID()).Msg("event failed")
			return nil
		}
	}
	if err := runner.Run(ctx, events, eng); err != nil {
		return nil, nil, err
	}

	stats := eng.Stats()
	summary.Processed = stats.Processed
	summary.Duplicates = stats.Duplicates
	summary.Anomalies = stats.Anomalies

	snap, err := idhash.Snapshot(ctx, store)
	if err != nil {
		return nil, nil, err
	}
	summary.Entities = len(snap)
	summary.Digest = idhash.Digest(snap)

	tradingStat, err := repository.Fetch[domain.TradingStat](ctx, store, domain.KindTradingStat, domain.TotalKey)
	if summary.TradingStat, err = optional(tradingStat, err); err != nil {
		return nil, nil, err
	}
	orderStat, err := repository.Fetch[domain.OrderStat](ctx, store, domain.KindOrderStat, domain.TotalKey)
	if summary.OrderStat, err = optional(orderStat, err); err != nil {
		return nil, nil, err
	}
	progress, err := eng.Progress(ctx)
	if summary.Progress, err = optional(progress, err); err != nil {
		return nil, nil, err
	}

	if verify {
		report, err := verification.VerifyReplay(ctx, opts, events)
		if err != nil {
			return nil, nil, err
		}
		summary.Verify = report
	}

	return summary, store, nil
}

// optional maps storage.ErrNotFound to a nil record.
func optional[T any](v *T, err error) (*T, error) {
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return v, err
}

func writeReport(ctx context.Context, store storage.EntityStore, deployment string, s *Summary, dir string) error {
	report, err := reporting.NewGenerator(store, deployment).Generate(ctx)
	if err != nil {
		return err
	}

	report.Run = &reporting.RunSection{
		Events:     s.Events,
		Processed:  s.Processed,
		Duplicates: s.Duplicates,
		Anomalies:  s.Anomalies,
		Failed:     s.Failed,
	}
	if s.Progress != nil {
		report.Run.LastBlock = s.Progress.Cursor.BlockNumber
	}
	if v := s.Verify; v != nil {
		report.Verification = &reporting.VerificationSection{
			Match:             v.Match,
			RedeliveredDigest: v.Redelivered.Digest,
			Divergent:         v.Divergent,
			ConflictingEvents: v.ConflictingEvents,
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	files := map[string]string{
		"report.md":         reporting.RenderMarkdown(report),
		"candles.csv":       reporting.RenderCandlesCSV(report.Candles),
		"trading_stats.csv": reporting.RenderTradingStatsCSV(report.Periods),
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

func printSummary(w io.Writer, s *Summary) {
	fmt.Fprintf(w, "events:      %d\n", s.Events)
	fmt.Fprintf(w, "processed:   %d\n", s.Processed)
	fmt.Fprintf(w, "duplicates:  %d\n", s.Duplicates)
	fmt.Fprintf(w, "anomalies:   %d\n", s.Anomalies)
	fmt.Fprintf(w, "failed:      %d\n", s.Failed)
	fmt.Fprintf(w, "entities:    %d\n", s.Entities)
	fmt.Fprintf(w, "digest:      %s\n", s.Digest)

	if p := s.Progress; p != nil {
		fmt.Fprintf(w, "last block:  %d (tx %d, log %d)\n", p.Cursor.BlockNumber, p.Cursor.TxIndex, p.Cursor.LogIndex)
	}
	if ts := s.TradingStat; ts != nil {
		fmt.Fprintln(w, "\ntrading stats (total, USD):")
		fmt.Fprintf(w, "  long OI:               %s\n", ts.LongOpenInterest.Format(30))
		fmt.Fprintf(w, "  short OI:              %s\n", ts.ShortOpenInterest.Format(30))
		fmt.Fprintf(w, "  profit:                %s\n", ts.ProfitCumulative.Format(30))
		fmt.Fprintf(w, "  loss:                  %s\n", ts.LossCumulative.Format(30))
		fmt.Fprintf(w, "  liquidated collateral: %s\n", ts.LiquidatedCollateralCumulative.Format(30))
	}
	if o := s.OrderStat; o != nil {
		fmt.Fprintln(w, "\norders (open / cancelled / executed):")
		fmt.Fprintf(w, "  swap:     %d / %d / %d\n", o.OpenSwap, o.CancelledSwap, o.ExecutedSwap)
		fmt.Fprintf(w, "  increase: %d / %d / %d\n", o.OpenIncrease, o.CancelledIncrease, o.ExecutedIncrease)
		fmt.Fprintf(w, "  decrease: %d / %d / %d\n", o.OpenDecrease, o.CancelledDecrease, o.ExecutedDecrease)
	}
	if v := s.Verify; v != nil {
		fmt.Fprintf(w, "\nverification: match=%t digest=%s redelivered=%s\n", v.Match, v.Single.Digest, v.Redelivered.Digest)
		for _, id := range v.Divergent {
			fmt.Fprintf(w, "  divergent: %s\n", id)
		}
		for _, id := range v.ConflictingEvents {
			fmt.Fprintf(w, "  conflicting event: %s\n", id)
		}
	}
}
