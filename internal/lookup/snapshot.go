// Package lookup reads periodic snapshots with a stale-read fallback: when the
// bucket containing a timestamp has no record yet, the nearest earlier bucket
// is returned.
package lookup

import (
	"context"
	"errors"

	"perp-stats-engine/internal/domain"
	"perp-stats-engine/internal/period"
	"perp-stats-engine/internal/repository"
	"perp-stats-engine/internal/storage"
)

// ErrNoSnapshot is returned when neither the bucket nor any earlier bucket
// within the lookback has a record.
var ErrNoSnapshot = errors.New("no snapshot available")

// TradingStatAt returns the trading stat of the bucket containing ts, or of
// the nearest earlier bucket at most maxLookback buckets back.
// For period.Total the aggregate record is returned and ts is ignored.
func TradingStatAt(ctx context.Context, store storage.EntityStore, p period.Period, ts int64, maxLookback int) (*domain.TradingStat, error) {
	return at[domain.TradingStat](ctx, store, domain.KindTradingStat, p, ts, maxLookback, func(start int64) string {
		return domain.TradingStatKey(p, start)
	})
}

// OpenInterestAt is TradingStatAt for the per-token open interest.
func OpenInterestAt(ctx context.Context, store storage.EntityStore, token string, p period.Period, ts int64, maxLookback int) (*domain.OpenInterest, error) {
	token = domain.NormalizeAddress(token)
	return at[domain.OpenInterest](ctx, store, domain.KindOpenInterest, p, ts, maxLookback, func(start int64) string {
		return domain.OpenInterestKey(token, p, start)
	})
}

// SupplyStatAt is TradingStatAt for the supply stats of token.
func SupplyStatAt(ctx context.Context, store storage.EntityStore, token string, p period.Period, ts int64, maxLookback int) (*domain.SupplyStat, error) {
	token = domain.NormalizeAddress(token)
	return at[domain.SupplyStat](ctx, store, domain.KindSupplyStat, p, ts, maxLookback, func(start int64) string {
		return domain.SupplyStatKey(token, p, start)
	})
}

// PriceAt returns the periodic price snapshot of a feed for the bucket
// containing ts, falling back like TradingStatAt.
func PriceAt(ctx context.Context, store storage.EntityStore, kind domain.PriceKind, token string, p period.Period, ts int64, maxLookback int) (*domain.PricePoint, error) {
	if p == period.Total {
		return nil, period.ErrUnknownPeriod
	}
	token = domain.NormalizeAddress(token)
	return at[domain.PricePoint](ctx, store, kind.EntityKind(), p, ts, maxLookback, func(start int64) string {
		return domain.PricePeriodKey(token, p, start)
	})
}

func at[T any](ctx context.Context, store storage.EntityStore, kind domain.EntityKind, p period.Period, ts int64, maxLookback int, key func(start int64) string) (*T, error) {
	if p == period.Total {
		return fetch[T](ctx, store, kind, key(0))
	}
	start, err := period.BucketStart(ts, p)
	if err != nil {
		return nil, err
	}

	for i := 0; i <= maxLookback; i++ {
		v, err := fetch[T](ctx, store, kind, key(start))
		if !errors.Is(err, ErrNoSnapshot) {
			return v, err
		}
		start = period.PrevStart(start, p)
	}
	return nil, ErrNoSnapshot
}

func fetch[T any](ctx context.Context, store storage.EntityStore, kind domain.EntityKind, key string) (*T, error) {
	v, err := repository.Fetch[T](ctx, store, kind, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoSnapshot
	}
	return v, err
}
