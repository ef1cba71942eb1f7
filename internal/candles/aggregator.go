// Package candles maintains OHLC candles per (token, period, bucket).
package candles

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"perp-stats-engine/internal/domain"
	"perp-stats-engine/internal/fixedpoint"
	"perp-stats-engine/internal/period"
	"perp-stats-engine/internal/repository"
	"perp-stats-engine/internal/storage"
)

// Options configures an Aggregator. Zero policies use the defaults.
type Options struct {
	Periods       []period.Period
	OpenPolicy    OpenPolicy
	ExtremaPolicy ExtremaPolicy
	Logger        zerolog.Logger
}

// Aggregator applies prices to candles.
//
// Buckets are never corrected retroactively: a price older than the
// newest bucket is still applied to its own bucket, which relies on the
// caller delivering events in canonical order.
type Aggregator struct {
	periods []period.Period
	open    OpenPolicy
	extrema ExtremaPolicy
	logger  zerolog.Logger
}

// New creates an Aggregator. Periods default to period.CandlePeriods.
func New(opts Options) (*Aggregator, error) {
	if len(opts.Periods) == 0 {
		opts.Periods = period.CandlePeriods
	}
	for _, p := range opts.Periods {
		if !p.Valid() || p == period.Total {
			return nil, fmt.Errorf("%w: %s is not a candle period", period.ErrUnknownPeriod, p)
		}
	}
	if opts.OpenPolicy == 0 {
		opts.OpenPolicy = OpenStrictAdjacent
	}
	if opts.ExtremaPolicy == 0 {
		opts.ExtremaPolicy = ExtremaIncludeOpen
	}

	return &Aggregator{
		periods: opts.Periods,
		open:    opts.OpenPolicy,
		extrema: opts.ExtremaPolicy,
		logger:  opts.Logger.With().Str("component", "candles").Logger(),
	}, nil
}

// Apply records price P (30 decimals) observed at ts in every configured period.
func (a *Aggregator) Apply(ctx context.Context, s *repository.Session, token string, price fixedpoint.Value, ts int64, txHash string) error {
	if token == "" {
		return fmt.Errorf("%w: empty token", storage.ErrInvalidInput)
	}

	for _, p := range a.periods {
		var err error
		if p == period.Any {
			err = a.applyTick(ctx, s, token, price, ts, txHash)
		} else {
			err = a.applyBucket(ctx, s, token, p, price, ts)
		}
		if err != nil {
			return fmt.Errorf("candle %s %s: %w", token, p, err)
		}
	}
	return nil
}

// applyTick keys the candle by transaction; its open is always the first price.
func (a *Aggregator) applyTick(ctx context.Context, s *repository.Session, token string, price fixedpoint.Value, ts int64, txHash string) error {
	if txHash == "" {
		return fmt.Errorf("%w: tick candle needs a tx hash", storage.ErrInvalidInput)
	}

	key := domain.TickCandleKey(token, txHash)
	created := false
	c, err := repository.GetOrInsert(ctx, s, domain.KindPriceCandle, key, func() (*domain.PriceCandle, error) {
		created = true
		return newCandle(key, token, period.Any, ts, price, price, a.extrema), nil
	})
	if err != nil {
		return err
	}
	if !created {
		update(c, price)
	}
	return nil
}

func (a *Aggregator) applyBucket(ctx context.Context, s *repository.Session, token string, p period.Period, price fixedpoint.Value, ts int64) error {
	start, err := period.BucketStart(ts, p)
	if err != nil {
		return err
	}

	key := domain.CandleKey(token, p, start)
	created := false
	c, err := repository.GetOrInsert(ctx, s, domain.KindPriceCandle, key, func() (*domain.PriceCandle, error) {
		open, err := a.seedOpen(ctx, s, token, p, start, price)
		if err != nil {
			return nil, err
		}
		created = true
		return newCandle(key, token, p, start, open, price, a.extrema), nil
	})
	if err != nil {
		return err
	}

	if created {
		a.logger.Debug().
			Str("token", token).
			Str("period", p.String()).
			Int64("bucket", start).
			Str("open", c.Open.String()).
			Msg("candle opened")
	} else {
		update(c, price)
	}

	if a.open == OpenCarryForward {
		return a.advanceCursor(ctx, s, token, p, start)
	}
	return nil
}

// seedOpen returns the open price of a new bucket starting at start.
func (a *Aggregator) seedOpen(ctx context.Context, s *repository.Session, token string, p period.Period, start int64, price fixedpoint.Value) (fixedpoint.Value, error) {
	prevStart := period.PrevStart(start, p)

	if a.open == OpenCarryForward {
		cursor, err := repository.Load[domain.CandleCursor](ctx, s, domain.KindCandleCursor, domain.CandleCursorKey(token, p))
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return price, nil
		case err != nil:
			return fixedpoint.Zero, err
		}
		if cursor.LastStart >= start {
			// out-of-order bucket: nothing earlier is known for certain
			return price, nil
		}
		prevStart = cursor.LastStart
	}

	prev, err := repository.Load[domain.PriceCandle](ctx, s, domain.KindPriceCandle, domain.CandleKey(token, p, prevStart))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return price, nil
	case err != nil:
		return fixedpoint.Zero, err
	}
	return prev.Close, nil
}

func (a *Aggregator) advanceCursor(ctx context.Context, s *repository.Session, token string, p period.Period, start int64) error {
	key := domain.CandleCursorKey(token, p)
	cursor, err := repository.GetOrInsert(ctx, s, domain.KindCandleCursor, key, func() (*domain.CandleCursor, error) {
		return &domain.CandleCursor{ID: key, Token: token, Period: p, LastStart: start}, nil
	})
	if err != nil {
		return err
	}
	if start > cursor.LastStart {
		cursor.LastStart = start
	}
	return nil
}

func newCandle(id, token string, p period.Period, ts int64, open, price fixedpoint.Value, extrema ExtremaPolicy) *domain.PriceCandle {
	c := &domain.PriceCandle{
		ID:        id,
		Token:     token,
		Period:    p,
		Timestamp: ts,
		Open:      open,
		High:      price,
		Low:       price,
		Close:     price,
	}
	if extrema == ExtremaIncludeOpen {
		c.High = fixedpoint.Max(open, price)
		c.Low = fixedpoint.Min(open, price)
	}
	return c
}

// update applies a price to an existing candle. Open never changes.
func update(c *domain.PriceCandle, price fixedpoint.Value) {
	c.High = fixedpoint.Max(c.High, price)
	c.Low = fixedpoint.Min(c.Low, price)
	c.Close = price
}
