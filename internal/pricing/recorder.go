package pricing

import (
	"context"
	"fmt"

	"perp-stats-engine/internal/domain"
	"perp-stats-engine/internal/fixedpoint"
	"perp-stats-engine/internal/period"
	"perp-stats-engine/internal/repository"
)

const maxDecimals = 36

// Observation is where and when a price was seen.
type Observation struct {
	BlockNumber int64
	Timestamp   int64
}

// RecordFeedPrice stores a push-feed or oracle tick and returns its
// 30-decimal USD value. The last snapshot is overwritten; history is keyed
// by timestamp, so replaying a tick rewrites identical records.
func (r *Resolver) RecordFeedPrice(ctx context.Context, s *repository.Session, tick *domain.PriceTick, obs Observation) (fixedpoint.Value, error) {
	switch {
	case tick == nil:
		return fixedpoint.Zero, fmt.Errorf("%w: missing tick", ErrInvalidObservation)
	case tick.Token == "":
		return fixedpoint.Zero, fmt.Errorf("%w: empty token", ErrInvalidObservation)
	case tick.Feed != domain.PriceKindFast && tick.Feed != domain.PriceKindOracle:
		return fixedpoint.Zero, fmt.Errorf("%w: feed %q", ErrInvalidObservation, tick.Feed)
	case tick.Decimals < 0 || tick.Decimals > maxDecimals:
		return fixedpoint.Zero, fmt.Errorf("%w: decimals %d", ErrInvalidObservation, tick.Decimals)
	case !tick.Price.IsPositive():
		return fixedpoint.Zero, fmt.Errorf("%w: non-positive price %s", ErrInvalidObservation, tick.Price)
	}

	if err := r.record(s, tick.Feed, tick.Token, tick.Price, tick.Decimals, obs); err != nil {
		return fixedpoint.Zero, err
	}
	return tick.Price.ToUSD(tick.Decimals), nil
}

// RecordPoolPrice derives the USD price of swap.Token from a pool swap or
// reserve sync and stores it as a pool price:
//
//	counterPerToken = |counter| * 10^(30 + tokenDecimals - counterDecimals) / |token|
//	usd             = counterPerToken * price(counter) / 10^30
//
// Zero amounts return ErrDegeneratePool and leave state untouched.
func (r *Resolver) RecordPoolPrice(ctx context.Context, s *repository.Session, swap *domain.PoolSwap, obs Observation) (fixedpoint.Value, error) {
	if swap == nil || swap.Token == "" || swap.CounterToken == "" {
		return fixedpoint.Zero, fmt.Errorf("%w: incomplete pool swap", ErrInvalidObservation)
	}
	if swap.TokenAmount.IsZero() || swap.CounterAmount.IsZero() {
		return fixedpoint.Zero, fmt.Errorf("%w: pool %s token=%s counter=%s",
			ErrDegeneratePool, swap.Pool, swap.TokenAmount, swap.CounterAmount)
	}

	tokenDecimals, err := r.deployment.Decimals(swap.Token)
	if err != nil {
		return fixedpoint.Zero, err
	}
	counterDecimals, err := r.deployment.Decimals(swap.CounterToken)
	if err != nil {
		return fixedpoint.Zero, err
	}

	counterPerToken, err := ratio(swap.CounterAmount.Abs(), swap.TokenAmount.Abs(),
		fixedpoint.USDDecimals+tokenDecimals-counterDecimals)
	if err != nil {
		return fixedpoint.Zero, fmt.Errorf("%w: %v", ErrDegeneratePool, err)
	}

	counter, err := r.Resolve(ctx, s, swap.CounterToken)
	if err != nil {
		return fixedpoint.Zero, fmt.Errorf("price counter asset: %w", err)
	}

	usd, err := counterPerToken.MulDiv(counter.Value, fixedpoint.Pow10(fixedpoint.USDDecimals))
	if err != nil {
		return fixedpoint.Zero, fmt.Errorf("%w: %v", ErrDegeneratePool, err)
	}
	if usd.IsZero() {
		return fixedpoint.Zero, fmt.Errorf("%w: price rounds to zero", ErrDegeneratePool)
	}

	if err := r.record(s, domain.PriceKindPool, swap.Token, usd, fixedpoint.USDDecimals, obs); err != nil {
		return fixedpoint.Zero, err
	}
	return usd, nil
}

// ratio returns num * 10^exp / den, truncated toward zero.
func ratio(num, den fixedpoint.Value, exp int) (fixedpoint.Value, error) {
	if exp >= 0 {
		return num.MulDiv(fixedpoint.Pow10(exp), den)
	}
	return num.Div(den.Mul(fixedpoint.Pow10(-exp)))
}

// record writes the last, any and periodic snapshots of one observation.
func (r *Resolver) record(s *repository.Session, kind domain.PriceKind, token string, value fixedpoint.Value, decimals int, obs Observation) error {
	entity := kind.EntityKind()
	point := func(id string, tag domain.SnapshotTag) *domain.PricePoint {
		return &domain.PricePoint{
			ID:          id,
			Kind:        kind,
			Token:       token,
			Period:      tag,
			Value:       value,
			Decimals:    decimals,
			BlockNumber: obs.BlockNumber,
			Timestamp:   obs.Timestamp,
		}
	}

	last := domain.PriceLastKey(token)
	s.Put(entity, last, point(last, domain.SnapshotLast))

	history := domain.PriceHistoryKey(token, obs.Timestamp)
	s.Put(entity, history, point(history, domain.SnapshotAny))

	for _, p := range r.periods {
		start, err := period.BucketStart(obs.Timestamp, p)
		if err != nil {
			return err
		}
		key := domain.PricePeriodKey(token, p, start)
		s.Put(entity, key, point(key, domain.PeriodSnapshot(p)))
	}

	r.logger.Debug().
		Str("kind", string(kind)).
		Str("token", token).
		Str("value", value.String()).
		Int64("block", obs.BlockNumber).
		Msg("price recorded")
	return nil
}
