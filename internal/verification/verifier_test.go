package verification

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perp-stats-engine/internal/config"
	"perp-stats-engine/internal/domain"
	"perp-stats-engine/internal/engine"
	"perp-stats-engine/internal/fixedpoint"
	"perp-stats-engine/internal/period"
)

const (
	eth  = "0xeth"
	usdc = "0xusdc"
	gmx  = "0xgmx"
	acc  = "0xacc"
)

func intp(n int) *int { return &n }

func engineOptions(t *testing.T) engine.Options {
	t.Helper()
	dep, err := config.DeploymentConfig{
		Name:            "test",
		GovernanceToken: gmx,
		Tokens: []config.TokenConfig{
			{Address: eth, Decimals: intp(18)},
			{Address: usdc, Decimals: intp(6), DefaultPrice: "1"},
			{Address: gmx, Decimals: intp(18)},
		},
	}.Build()
	require.NoError(t, err)

	return engine.Options{
		Deployment:    dep,
		CandlePeriods: []period.Period{period.Any, period.FiveMinutes, period.Hourly},
		SupplyTokens:  []string{gmx},
		Logger:        zerolog.Nop(),
	}
}

func stream() []*domain.Event {
	tick := func(block, ts int64, tx, price string) *domain.Event {
		return &domain.Event{
			Kind: domain.EventPriceTick, BlockNumber: block, BlockTimestamp: ts, TxHash: tx,
			PriceTick: &domain.PriceTick{Token: eth, Feed: domain.PriceKindFast, Price: fixedpoint.MustParse(price), Decimals: 8},
		}
	}
	pos := func(kind domain.EventKind, block, ts int64, tx, size, pnl string) *domain.Event {
		return &domain.Event{
			Kind: kind, BlockNumber: block, BlockTimestamp: ts, TxHash: tx, LogIndex: 1,
			Position: &domain.PositionChange{
				Account: acc, IndexToken: eth, CollateralToken: usdc, IsLong: true,
				SizeDelta: fixedpoint.MustUSD(size), RealisedPnl: fixedpoint.MustUSD(pnl),
			},
		}
	}
	mint := &domain.Event{
		Kind: domain.EventTransfer, BlockNumber: 6, BlockTimestamp: 4100, TxHash: "0x6",
		Transfer: &domain.Transfer{Token: gmx, From: domain.ZeroAddress, To: acc, Amount: fixedpoint.FromInt64(10)},
	}
	create := &domain.Event{
		Kind: domain.EventCreateOrder, BlockNumber: 7, BlockTimestamp: 4200, TxHash: "0x7", LogIndex: 2,
		Order: &domain.OrderChange{Account: acc, Kind: domain.OrderKindSwap, Index: 0},
	}

	// deliberately out of order: the replay sorts
	return []*domain.Event{
		pos(domain.EventIncreasePosition, 3, 4010, "0x3", "1000", "0"),
		tick(1, 100, "0x1", "1000000000"),
		tick(2, 4000, "0x2", "1050000000"),
		pos(domain.EventClosePosition, 5, 4030, "0x5", "0", "-20"),
		pos(domain.EventDecreasePosition, 4, 4020, "0x4", "400", "0"),
		mint,
		create,
	}
}

func TestVerifyReplay_Deterministic(t *testing.T) {
	report, err := VerifyReplay(context.Background(), engineOptions(t), stream())
	require.NoError(t, err)

	assert.True(t, report.Match)
	assert.Empty(t, report.Divergent)
	assert.Empty(t, report.ConflictingEvents)
	assert.Equal(t, 7, report.Events)

	assert.Equal(t, int64(7), report.Single.Processed)
	assert.Equal(t, int64(0), report.Single.Duplicates)
	assert.Equal(t, int64(7), report.Redelivered.Processed)
	assert.Equal(t, int64(7), report.Redelivered.Duplicates)
	assert.Equal(t, report.Single.Digest, report.Redelivered.Digest)
	assert.Len(t, report.Single.Digest, 64)
	assert.Positive(t, report.Single.Entities)
}

func TestVerifyReplay_SameDigestAcrossCalls(t *testing.T) {
	a, err := VerifyReplay(context.Background(), engineOptions(t), stream())
	require.NoError(t, err)
	b, err := VerifyReplay(context.Background(), engineOptions(t), stream())
	require.NoError(t, err)

	assert.Equal(t, a.Single.Digest, b.Single.Digest)
}

func TestVerifyReplay_WithoutDedupDiverges(t *testing.T) {
	opts := engineOptions(t)
	opts.DisableDedup = true

	report, err := VerifyReplay(context.Background(), opts, stream())
	require.NoError(t, err)

	assert.False(t, report.Match)
	assert.NotEqual(t, report.Single.Digest, report.Redelivered.Digest)
	assert.Contains(t, report.Divergent, "trading_stat/total")
	assert.Contains(t, report.Divergent, "order_stat/total")
	assert.Contains(t, report.Divergent, "progress/engine")
	// a redelivered create re-seeds the order and counts it again
	assert.Equal(t, 0, report.Redelivered.Failed)
}

func TestVerifyReplay_FailedEventsDoNotDiverge(t *testing.T) {
	events := stream()
	// execute without a create fails under the default policy
	events = append(events, &domain.Event{
		Kind: domain.EventExecuteOrder, BlockNumber: 8, BlockTimestamp: 4300, TxHash: "0x8",
		Order: &domain.OrderChange{Account: acc, Kind: domain.OrderKindIncrease, Index: 9},
	})

	report, err := VerifyReplay(context.Background(), engineOptions(t), events)
	require.NoError(t, err)

	assert.True(t, report.Match)
	assert.Equal(t, 1, report.Single.Failed)
	assert.Equal(t, 2, report.Redelivered.Failed)
}

func TestVerifyReplay_ConflictingEvents(t *testing.T) {
	events := stream()
	twin := *events[5] // the mint
	twin.Transfer = &domain.Transfer{Token: gmx, From: domain.ZeroAddress, To: acc, Amount: fixedpoint.FromInt64(99)}
	events = append(events, &twin, &twin)

	report, err := VerifyReplay(context.Background(), engineOptions(t), events)
	require.NoError(t, err)

	assert.Equal(t, []string{"0x6:0"}, report.ConflictingEvents)
	assert.True(t, report.Match)
}
