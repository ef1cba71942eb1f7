package config

import (
	"errors"
	"fmt"
	"io"

	"perp-stats-engine/internal/candles"
	"perp-stats-engine/internal/domain"
	"perp-stats-engine/internal/orders"
	"perp-stats-engine/internal/period"
)

// Validate checks that all required fields are set and values are valid.
// Unknown granularities wrap period.ErrUnknownPeriod.
func (c *Config) Validate() error {
	if _, err := c.Deployment.Build(); err != nil {
		return err
	}

	candlePeriods, err := c.CandlePeriods()
	if err != nil {
		return fmt.Errorf("candles.periods: %w", err)
	}
	for _, p := range candlePeriods {
		if p == period.Total {
			return fmt.Errorf("candles.periods: %w: total has no candles", period.ErrUnknownPeriod)
		}
	}
	if _, err := c.CandleFeeds(); err != nil {
		return err
	}
	if _, err := candles.ParseOpenPolicy(c.Candles.OpenPolicy); err != nil {
		return fmt.Errorf("candles.open_policy: %w", err)
	}
	if _, err := candles.ParseExtremaPolicy(c.Candles.ExtremaPolicy); err != nil {
		return fmt.Errorf("candles.extrema_policy: %w", err)
	}

	if _, err := c.StatPeriods(); err != nil {
		return fmt.Errorf("stats.periods: %w", err)
	}

	if _, err := orders.ParseMissingOrderPolicy(c.Orders.MissingOrderPolicy); err != nil {
		return fmt.Errorf("orders.missing_order_policy: %w", err)
	}

	if err := c.Storage.validate(); err != nil {
		return err
	}
	if err := c.Source.validate(); err != nil {
		return err
	}

	if c.Metrics.Path == "" || c.Metrics.Path[0] != '/' {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}

	if _, err := c.Log.NewLogger(io.Discard); err != nil {
		return err
	}

	return nil
}

// CandlePeriods parses candles.periods.
func (c *Config) CandlePeriods() ([]period.Period, error) {
	return period.ParseList(c.Candles.Periods)
}

// StatPeriods parses stats.periods. Only time-aligned periods are allowed;
// the total record is always maintained.
func (c *Config) StatPeriods() ([]period.Period, error) {
	periods, err := period.ParseList(c.Stats.Periods)
	if err != nil {
		return nil, err
	}
	for _, p := range periods {
		if !p.IsTimeAligned() {
			return nil, fmt.Errorf("%w: %s is not a stat period", period.ErrUnknownPeriod, p)
		}
	}
	return periods, nil
}

// CandleFeeds parses candles.feeds.
func (c *Config) CandleFeeds() ([]domain.PriceKind, error) {
	feeds := make([]domain.PriceKind, 0, len(c.Candles.Feeds))
	for _, f := range c.Candles.Feeds {
		kind := domain.PriceKind(f)
		if kind != domain.PriceKindOracle && kind != domain.PriceKindFast {
			return nil, fmt.Errorf("candles.feeds: unknown feed %q", f)
		}
		feeds = append(feeds, kind)
	}
	return feeds, nil
}

func (s *StorageConfig) validate() error {
	switch s.Backend {
	case "memory":
	case "postgres":
		if s.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn is required for the postgres backend")
		}
		if s.PostgresMaxConns < 0 {
			return errors.New("storage.postgres_max_conns must be >= 0")
		}
	case "redis":
		if s.RedisDSN == "" {
			return errors.New("storage.redis_dsn is required for the redis backend")
		}
	default:
		return fmt.Errorf("storage.backend must be memory, postgres or redis, got %q", s.Backend)
	}
	return nil
}

func (s *SourceConfig) validate() error {
	switch s.Kind {
	case "file":
		if s.Path == "" {
			return errors.New("source.path is required for the file source")
		}
	case "ws":
		if s.URL == "" {
			return errors.New("source.url is required for the ws source")
		}
	default:
		return fmt.Errorf("source.kind must be file or ws, got %q", s.Kind)
	}
	if s.ReconnectBaseDelay > s.ReconnectMaxDelay {
		return fmt.Errorf("source.reconnect_base_delay (%s) cannot exceed reconnect_max_delay (%s)",
			s.ReconnectBaseDelay, s.ReconnectMaxDelay)
	}
	if s.BufferSize < 1 {
		return errors.New("source.buffer_size must be >= 1")
	}
	if s.BlockLag < 0 {
		return errors.New("source.block_lag must be >= 0")
	}
	return nil
}
