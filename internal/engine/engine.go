// Package engine applies ordered domain events to the materialized views.
//
// Events are processed one at a time. Every write of one event, the dedup
// ledger entry and the progress checkpoint are committed as one batch, so a
// redelivered event either finds its ledger entry or finds none of its effects.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"perp-stats-engine/internal/candles"
	"perp-stats-engine/internal/config"
	"perp-stats-engine/internal/domain"
	"perp-stats-engine/internal/observability"
	"perp-stats-engine/internal/orders"
	"perp-stats-engine/internal/period"
	"perp-stats-engine/internal/pricing"
	"perp-stats-engine/internal/repository"
	"perp-stats-engine/internal/storage"
	"perp-stats-engine/internal/tradingstats"
)

// Options configures an Engine. Zero values use the package defaults of each
// aggregator.
type Options struct {
	Deployment         *config.Deployment
	CandlePeriods      []period.Period
	CandleFeeds        []domain.PriceKind // defaults to fast_price
	OpenPolicy         candles.OpenPolicy
	ExtremaPolicy      candles.ExtremaPolicy
	StatPeriods        []period.Period
	SupplyTokens       []string
	MissingOrderPolicy orders.MissingOrderPolicy
	DisableDedup       bool
	RunID              string // defaults to a random UUID
	Metrics            *observability.Metrics
	Logger             zerolog.Logger
}

// Stats counts outcomes since the engine was created.
type Stats struct {
	Processed   int64
	Duplicates  int64
	Regressions int64
	Anomalies   int64
}

// Engine dispatches events to the aggregators.
// Not safe for concurrent use.
type Engine struct {
	repo    *repository.Repository
	prices  *pricing.Resolver
	candles *candles.Aggregator
	stats   *tradingstats.Aggregator
	orders  *orders.Tracker

	feeds  map[domain.PriceKind]bool
	supply map[string]bool
	dedup  bool
	runID  string

	metrics *observability.Metrics
	logger  zerolog.Logger
	counts  Stats
}

// New wires an Engine over repo.
func New(repo *repository.Repository, opts Options) (*Engine, error) {
	if repo == nil {
		return nil, errors.New("engine: repository is required")
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.CandleFeeds == nil {
		opts.CandleFeeds = []domain.PriceKind{domain.PriceKindFast}
	}

	logger := opts.Logger.With().Str("run_id", opts.RunID).Logger()
	e := &Engine{
		repo:    repo,
		feeds:   make(map[domain.PriceKind]bool, len(opts.CandleFeeds)),
		supply:  make(map[string]bool, len(opts.SupplyTokens)),
		dedup:   !opts.DisableDedup,
		runID:   opts.RunID,
		metrics: opts.Metrics,
		logger:  logger.With().Str("component", "engine").Logger(),
	}
	for _, f := range opts.CandleFeeds {
		e.feeds[f] = true
	}
	for _, t := range opts.SupplyTokens {
		e.supply[domain.NormalizeAddress(t)] = true
	}

	var err error
	e.prices, err = pricing.New(pricing.Options{
		Deployment: opts.Deployment,
		Periods:    opts.StatPeriods,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	e.candles, err = candles.New(candles.Options{
		Periods:       opts.CandlePeriods,
		OpenPolicy:    opts.OpenPolicy,
		ExtremaPolicy: opts.ExtremaPolicy,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	e.stats, err = tradingstats.New(tradingstats.Options{
		Periods: opts.StatPeriods,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	e.orders = orders.New(orders.Options{
		MissingOrderPolicy: opts.MissingOrderPolicy,
		Logger:             logger,
		OnSkip:             e.onOrderSkip,
	})

	return e, nil
}

// FromConfig builds Engine options from a validated configuration.
func FromConfig(cfg *config.Config) (Options, error) {
	dep, err := cfg.Deployment.Build()
	if err != nil {
		return Options{}, err
	}
	candlePeriods, err := cfg.CandlePeriods()
	if err != nil {
		return Options{}, err
	}
	feeds, err := cfg.CandleFeeds()
	if err != nil {
		return Options{}, err
	}
	openPolicy, err := candles.ParseOpenPolicy(cfg.Candles.OpenPolicy)
	if err != nil {
		return Options{}, err
	}
	extremaPolicy, err := candles.ParseExtremaPolicy(cfg.Candles.ExtremaPolicy)
	if err != nil {
		return Options{}, err
	}
	statPeriods, err := cfg.StatPeriods()
	if err != nil {
		return Options{}, err
	}
	orderPolicy, err := orders.ParseMissingOrderPolicy(cfg.Orders.MissingOrderPolicy)
	if err != nil {
		return Options{}, err
	}

	return Options{
		Deployment:         dep,
		CandlePeriods:      candlePeriods,
		CandleFeeds:        feeds,
		OpenPolicy:         openPolicy,
		ExtremaPolicy:      extremaPolicy,
		StatPeriods:        statPeriods,
		SupplyTokens:       cfg.Stats.SupplyTokens,
		MissingOrderPolicy: orderPolicy,
		DisableDedup:       cfg.Engine.DisableDedup,
	}, nil
}

// RunID returns the identifier written into the progress checkpoint.
func (e *Engine) RunID() string {
	return e.runID
}

// Stats returns outcome counters.
func (e *Engine) Stats() Stats {
	return e.counts
}

// Progress returns the stored checkpoint, or storage.ErrNotFound.
func (e *Engine) Progress(ctx context.Context) (*domain.Progress, error) {
	return repository.Fetch[domain.Progress](ctx, e.repo.Store(), domain.KindProgress, domain.ProgressKey)
}

// OnEvent implements replay.Engine.
func (e *Engine) OnEvent(ctx context.Context, ev *domain.Event) error {
	return e.Process(ctx, ev)
}

// ProcessAll processes events in slice order and stops at the first error.
func (e *Engine) ProcessAll(ctx context.Context, events []*domain.Event) error {
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.Process(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// Process applies one event. Addresses in ev are normalized in place.
// A redelivered event is acknowledged without effect.
func (e *Engine) Process(ctx context.Context, ev *domain.Event) error {
	start := time.Now()
	if ev == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	ev.Normalize()

	kind := string(ev.Kind)
	if err := Validate(ev); err != nil {
		e.metrics.RecordEventError(kind, "invalid_event")
		return err
	}

	s := e.repo.Begin()
	log := e.logger.With().
		Str("event", ev.ID()).
		Str("kind", kind).
		Int64("block", ev.BlockNumber).
		Logger()

	if e.dedup {
		_, err := repository.Load[domain.ProcessedEvent](ctx, s, domain.KindProcessedEvent, ev.ID())
		switch {
		case err == nil:
			s.Discard()
			e.counts.Duplicates++
			e.metrics.RecordDuplicate()
			log.Debug().Msg("duplicate event skipped")
			return nil
		case !errors.Is(err, storage.ErrNotFound):
			s.Discard()
			e.metrics.RecordEventError(kind, "store")
			return fmt.Errorf("event %s: dedup lookup: %w", ev.ID(), err)
		}
	}

	progress, err := repository.GetOrInsert(ctx, s, domain.KindProgress, domain.ProgressKey, func() (*domain.Progress, error) {
		return &domain.Progress{ID: domain.ProgressKey, Cursor: domain.Cursor{BlockNumber: -1}}, nil
	})
	if err != nil {
		s.Discard()
		e.metrics.RecordEventError(kind, "store")
		return fmt.Errorf("event %s: load progress: %w", ev.ID(), err)
	}

	cursor := ev.Cursor()
	if progress.EventCount > 0 && cursor.Compare(progress.Cursor) <= 0 {
		e.counts.Regressions++
		e.metrics.RecordAnomaly("position_regression")
		log.Warn().
			Int64("last_block", progress.Cursor.BlockNumber).
			Int("last_tx", progress.Cursor.TxIndex).
			Int("last_log", progress.Cursor.LogIndex).
			Msg("event at or before last processed position")
	}

	if err := e.dispatch(ctx, s, ev, log); err != nil {
		s.Discard()
		e.metrics.RecordEventError(kind, reason(err))
		return fmt.Errorf("event %s (%s): %w", ev.ID(), ev.Kind, err)
	}

	if e.dedup {
		s.Put(domain.KindProcessedEvent, ev.ID(), &domain.ProcessedEvent{
			ID:          ev.ID(),
			Kind:        ev.Kind,
			BlockNumber: ev.BlockNumber,
			Timestamp:   ev.BlockTimestamp,
		})
	}

	if cursor.Compare(progress.Cursor) > 0 {
		progress.Cursor = cursor
		progress.Timestamp = ev.BlockTimestamp
	}
	progress.RunID = e.runID
	progress.EventCount++

	records := s.Pending()
	if err := s.Commit(ctx); err != nil {
		if !errors.Is(err, repository.ErrPublish) {
			e.metrics.RecordEventError(kind, "store")
			return fmt.Errorf("event %s: %w", ev.ID(), err)
		}
		e.metrics.RecordPublishError()
		log.Warn().Err(err).Msg("state committed but mirror publish failed")
	}

	e.counts.Processed++
	e.metrics.RecordEvent(kind, ev.BlockNumber, ev.BlockTimestamp, records, time.Since(start))
	return nil
}

func (e *Engine) onOrderSkip(err error) {
	e.counts.Anomalies++
	e.metrics.RecordAnomaly(reason(err))
}

// reason maps an error to a low-cardinality metric label.
func reason(err error) string {
	switch {
	case errors.Is(err, orders.ErrOrderNotFound):
		return "order_not_found"
	case errors.Is(err, orders.ErrOrderNotOpen):
		return "order_not_open"
	case errors.Is(err, pricing.ErrDegeneratePool):
		return "degenerate_pool"
	case errors.Is(err, pricing.ErrNoPrice):
		return "no_price"
	case errors.Is(err, config.ErrMissingDecimals):
		return "missing_decimals"
	case errors.Is(err, period.ErrUnknownPeriod):
		return "unknown_period"
	case errors.Is(err, ErrInvalidEvent),
		errors.Is(err, pricing.ErrInvalidObservation),
		errors.Is(err, orders.ErrInvalidOrder),
		errors.Is(err, tradingstats.ErrInvalidAmount):
		return "invalid_event"
	}
	return "other"
}
