// Package tradingstats maintains open interest, realized PnL and token supply
// statistics at the total level and per time bucket.
//
// Periodic records hold snapshots of the running totals taken at the last
// event inside the bucket, not end-of-period aggregates. Only the period-local
// fields (profit, loss, liquidated collateral, minted, burned, transfer count
// and volume) are deltas confined to the bucket. A bucket without events has
// no record; readers fall back to the nearest earlier one (see package lookup).
package tradingstats

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"perp-stats-engine/internal/domain"
	"perp-stats-engine/internal/fixedpoint"
	"perp-stats-engine/internal/period"
	"perp-stats-engine/internal/repository"
)

// ErrInvalidAmount is returned for negative deltas and amounts.
var ErrInvalidAmount = errors.New("invalid amount")

// Options configures an Aggregator.
type Options struct {
	// Periods defaults to period.StatPeriods. The total record is always kept.
	Periods []period.Period
	Logger  zerolog.Logger
}

// Aggregator applies position and transfer effects.
type Aggregator struct {
	periods []period.Period
	logger  zerolog.Logger
}

// New creates an Aggregator.
func New(opts Options) (*Aggregator, error) {
	if opts.Periods == nil {
		opts.Periods = period.StatPeriods
	}
	for _, p := range opts.Periods {
		if !p.IsTimeAligned() {
			return nil, fmt.Errorf("%w: %s is not a stat period", period.ErrUnknownPeriod, p)
		}
	}
	return &Aggregator{
		periods: opts.Periods,
		logger:  opts.Logger.With().Str("component", "tradingstats").Logger(),
	}, nil
}

// Periods returns the configured stat periods.
func (a *Aggregator) Periods() []period.Period {
	return a.periods
}

// ApplyOpenInterest adds (increase) or subtracts delta from the long or short
// open interest of the total record and of token, then snapshots both into
// the current bucket of every period.
func (a *Aggregator) ApplyOpenInterest(ctx context.Context, s *repository.Session, ts int64, token string, isLong bool, delta fixedpoint.Value, increase bool) error {
	if delta.IsNegative() {
		return fmt.Errorf("%w: size delta %s", ErrInvalidAmount, delta)
	}
	signed := delta
	if !increase {
		signed = delta.Neg()
	}

	total, err := a.totalStat(ctx, s)
	if err != nil {
		return err
	}
	addInterest(&total.LongOpenInterest, &total.ShortOpenInterest, isLong, signed)
	total.Timestamp = ts

	tokenTotal, err := a.tokenInterest(ctx, s, token, period.Total, 0)
	if err != nil {
		return err
	}
	addInterest(&tokenTotal.Long, &tokenTotal.Short, isLong, signed)
	tokenTotal.Timestamp = ts

	if total.LongOpenInterest.IsNegative() || total.ShortOpenInterest.IsNegative() {
		a.logger.Warn().
			Str("long", total.LongOpenInterest.String()).
			Str("short", total.ShortOpenInterest.String()).
			Int64("ts", ts).
			Msg("open interest below zero")
	}

	for _, p := range a.periods {
		start, err := period.BucketStart(ts, p)
		if err != nil {
			return err
		}

		stat, err := a.periodStat(ctx, s, p, start)
		if err != nil {
			return err
		}
		snapshot(stat, total)

		oi, err := a.tokenInterest(ctx, s, token, p, start)
		if err != nil {
			return err
		}
		oi.Long = tokenTotal.Long
		oi.Short = tokenTotal.Short
	}
	return nil
}

// ApplyPnl books a realized PnL. Positive values are profit; anything else
// is loss by magnitude and, when liquidated, also liquidated collateral.
func (a *Aggregator) ApplyPnl(ctx context.Context, s *repository.Session, ts int64, pnl fixedpoint.Value, liquidated bool) error {
	total, err := a.totalStat(ctx, s)
	if err != nil {
		return err
	}
	book(total, pnl, liquidated)
	total.Timestamp = ts

	for _, p := range a.periods {
		start, err := period.BucketStart(ts, p)
		if err != nil {
			return err
		}
		stat, err := a.periodStat(ctx, s, p, start)
		if err != nil {
			return err
		}
		local(stat, pnl, liquidated)
		snapshot(stat, total)
	}
	return nil
}

// book applies pnl to a total record, whose period-local fields equal its
// cumulative ones.
func book(st *domain.TradingStat, pnl fixedpoint.Value, liquidated bool) {
	local(st, pnl, liquidated)
	if pnl.IsPositive() {
		st.ProfitCumulative = st.ProfitCumulative.Add(pnl)
		return
	}
	loss := pnl.Abs()
	st.LossCumulative = st.LossCumulative.Add(loss)
	if liquidated {
		st.LiquidatedCollateralCumulative = st.LiquidatedCollateralCumulative.Add(loss)
	}
}

func local(st *domain.TradingStat, pnl fixedpoint.Value, liquidated bool) {
	if pnl.IsPositive() {
		st.Profit = st.Profit.Add(pnl)
		return
	}
	loss := pnl.Abs()
	st.Loss = st.Loss.Add(loss)
	if liquidated {
		st.LiquidatedCollateral = st.LiquidatedCollateral.Add(loss)
	}
}

// snapshot copies the running totals into a periodic record.
func snapshot(dst, total *domain.TradingStat) {
	dst.LongOpenInterest = total.LongOpenInterest
	dst.ShortOpenInterest = total.ShortOpenInterest
	dst.ProfitCumulative = total.ProfitCumulative
	dst.LossCumulative = total.LossCumulative
	dst.LiquidatedCollateralCumulative = total.LiquidatedCollateralCumulative
}

func addInterest(long, short *fixedpoint.Value, isLong bool, v fixedpoint.Value) {
	if isLong {
		*long = long.Add(v)
	} else {
		*short = short.Add(v)
	}
}

func (a *Aggregator) totalStat(ctx context.Context, s *repository.Session) (*domain.TradingStat, error) {
	return a.periodStat(ctx, s, period.Total, 0)
}

func (a *Aggregator) periodStat(ctx context.Context, s *repository.Session, p period.Period, start int64) (*domain.TradingStat, error) {
	key := domain.TradingStatKey(p, start)
	return repository.GetOrInsert(ctx, s, domain.KindTradingStat, key, func() (*domain.TradingStat, error) {
		return &domain.TradingStat{ID: key, Period: p, Timestamp: start}, nil
	})
}

func (a *Aggregator) tokenInterest(ctx context.Context, s *repository.Session, token string, p period.Period, start int64) (*domain.OpenInterest, error) {
	key := domain.OpenInterestKey(token, p, start)
	return repository.GetOrInsert(ctx, s, domain.KindOpenInterest, key, func() (*domain.OpenInterest, error) {
		return &domain.OpenInterest{ID: key, Token: token, Period: p, Timestamp: start}, nil
	})
}
