package lookup

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perp-stats-engine/internal/domain"
	"perp-stats-engine/internal/fixedpoint"
	"perp-stats-engine/internal/period"
	"perp-stats-engine/internal/repository"
	"perp-stats-engine/internal/storage/memory"
)

const eth = "0xeth"

func seed(t *testing.T) *memory.EntityStore {
	t.Helper()
	store := memory.NewEntityStore()
	s := repository.New(store, nil, zerolog.Nop()).Begin()

	s.Put(domain.KindTradingStat, domain.TotalKey, &domain.TradingStat{
		ID: domain.TotalKey, Period: period.Total, LongOpenInterest: fixedpoint.FromInt64(9),
	})
	s.Put(domain.KindTradingStat, domain.TradingStatKey(period.Hourly, 3600), &domain.TradingStat{
		ID: domain.TradingStatKey(period.Hourly, 3600), Period: period.Hourly, Timestamp: 3600,
		LongOpenInterest: fixedpoint.FromInt64(5),
	})
	s.Put(domain.KindOpenInterest, domain.OpenInterestKey(eth, period.Daily, 0), &domain.OpenInterest{
		ID: domain.OpenInterestKey(eth, period.Daily, 0), Token: eth, Period: period.Daily,
		Long: fixedpoint.FromInt64(3),
	})
	s.Put(domain.KindSupplyStat, domain.SupplyStatKey(eth, period.Weekly, 0), &domain.SupplyStat{
		ID: domain.SupplyStatKey(eth, period.Weekly, 0), Token: eth, Period: period.Weekly,
		Supply: fixedpoint.FromInt64(100),
	})
	s.Put(domain.KindFastPrice, domain.PricePeriodKey(eth, period.Hourly, 0), &domain.PricePoint{
		ID: domain.PricePeriodKey(eth, period.Hourly, 0), Kind: domain.PriceKindFast, Token: eth,
		Period: domain.PeriodSnapshot(period.Hourly), Value: fixedpoint.FromInt64(42), Decimals: 0,
	})
	require.NoError(t, s.Commit(context.Background()))
	return store
}

func TestTradingStatAt(t *testing.T) {
	store := seed(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		p        period.Period
		ts       int64
		lookback int
		wantTS   int64
		wantErr  error
	}{
		{"bucket hit", period.Hourly, 3700, 0, 3600, nil},
		{"bucket start", period.Hourly, 3600, 0, 3600, nil},
		{"later bucket without lookback", period.Hourly, 7300, 0, 0, ErrNoSnapshot},
		{"stale read one bucket back", period.Hourly, 7300, 1, 3600, nil},
		{"stale read within lookback", period.Hourly, 4 * 3600, 5, 3600, nil},
		{"lookback exhausted", period.Hourly, 4 * 3600, 2, 0, ErrNoSnapshot},
		{"before first record", period.Hourly, 100, 10, 0, ErrNoSnapshot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TradingStatAt(ctx, store, tt.p, tt.ts, tt.lookback)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTS, got.Timestamp)
			assert.Equal(t, "5", got.LongOpenInterest.String())
		})
	}
}

func TestTradingStatAt_Total(t *testing.T) {
	got, err := TradingStatAt(context.Background(), seed(t), period.Total, 123456, 0)
	require.NoError(t, err)
	assert.Equal(t, "9", got.LongOpenInterest.String())
}

func TestTradingStatAt_UntimedPeriod(t *testing.T) {
	_, err := TradingStatAt(context.Background(), seed(t), period.Any, 100, 0)
	assert.ErrorIs(t, err, period.ErrUnknownPeriod)
}

func TestOpenInterestAt(t *testing.T) {
	store := seed(t)

	got, err := OpenInterestAt(context.Background(), store, "0xETH", period.Daily, 2*86400+5, 2)
	require.NoError(t, err)
	assert.Equal(t, "3", got.Long.String())

	_, err = OpenInterestAt(context.Background(), store, "0xother", period.Daily, 5, 2)
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestSupplyStatAt(t *testing.T) {
	got, err := SupplyStatAt(context.Background(), seed(t), eth, period.Weekly, 604800+1, 1)
	require.NoError(t, err)
	assert.Equal(t, "100", got.Supply.String())
}

func TestPriceAt(t *testing.T) {
	store := seed(t)

	got, err := PriceAt(context.Background(), store, domain.PriceKindFast, eth, period.Hourly, 3*3600, 3)
	require.NoError(t, err)
	assert.Equal(t, "42", got.Value.String())

	_, err = PriceAt(context.Background(), store, domain.PriceKindOracle, eth, period.Hourly, 10, 3)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	_, err = PriceAt(context.Background(), store, domain.PriceKindFast, eth, period.Total, 10, 0)
	assert.ErrorIs(t, err, period.ErrUnknownPeriod)
}
