package reporting

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"perp-stats-engine/internal/domain"
	"perp-stats-engine/internal/fixedpoint"
	"perp-stats-engine/internal/idhash"
	"perp-stats-engine/internal/period"
	"perp-stats-engine/internal/storage"
)

// Generator produces reports from stored entities.
type Generator struct {
	store      storage.EntityStore
	deployment string
	now        func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(store storage.EntityStore, deployment string) *Generator {
	return &Generator{
		store:      store,
		deployment: deployment,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate reads every entity kind and builds the report.
// Run and Verification are left for the caller.
func (g *Generator) Generate(ctx context.Context) (*Report, error) {
	snap, err := idhash.Snapshot(ctx, g.store)
	if err != nil {
		return nil, err
	}

	r := &Report{
		GeneratedAt: g.now(),
		Deployment:  g.deployment,
		Digest:      idhash.Digest(snap),
		Entities:    len(snap),
	}

	stats, err := list[domain.TradingStat](ctx, g.store, domain.KindTradingStat)
	if err != nil {
		return nil, err
	}
	for _, s := range stats {
		row := tradingStatRow(s)
		if s.Period == period.Total {
			r.Totals = &row
			continue
		}
		r.Periods = append(r.Periods, row)
	}
	sort.SliceStable(r.Periods, func(i, j int) bool {
		if r.Periods[i].Period != r.Periods[j].Period {
			return r.Periods[i].Period < r.Periods[j].Period
		}
		return r.Periods[i].Timestamp < r.Periods[j].Timestamp
	})

	interest, err := list[domain.OpenInterest](ctx, g.store, domain.KindOpenInterest)
	if err != nil {
		return nil, err
	}
	for _, oi := range interest {
		if oi.Period != period.Total {
			continue
		}
		r.OpenInterest = append(r.OpenInterest, OpenInterestRow{
			Token: oi.Token,
			Long:  usd(oi.Long),
			Short: usd(oi.Short),
		})
	}

	supply, err := list[domain.SupplyStat](ctx, g.store, domain.KindSupplyStat)
	if err != nil {
		return nil, err
	}
	for _, s := range supply {
		if s.Period != period.Total {
			continue
		}
		r.Supply = append(r.Supply, SupplyRow{
			Token:            s.Token,
			Supply:           s.Supply.String(),
			MintedCumulative: s.MintedCumulative.String(),
			BurnedCumulative: s.BurnedCumulative.String(),
			TransferCount:    s.TransferCount,
		})
	}

	orderStats, err := list[domain.OrderStat](ctx, g.store, domain.KindOrderStat)
	if err != nil {
		return nil, err
	}
	for _, o := range orderStats {
		r.Orders = append(r.Orders,
			OrderCounterRow{Kind: string(domain.OrderKindSwap), Open: o.OpenSwap, Cancelled: o.CancelledSwap, Executed: o.ExecutedSwap},
			OrderCounterRow{Kind: string(domain.OrderKindIncrease), Open: o.OpenIncrease, Cancelled: o.CancelledIncrease, Executed: o.ExecutedIncrease},
			OrderCounterRow{Kind: string(domain.OrderKindDecrease), Open: o.OpenDecrease, Cancelled: o.CancelledDecrease, Executed: o.ExecutedDecrease},
		)
	}

	candles, err := list[domain.PriceCandle](ctx, g.store, domain.KindPriceCandle)
	if err != nil {
		return nil, err
	}
	for _, c := range candles {
		if !c.Period.IsTimeAligned() {
			continue
		}
		r.Candles = append(r.Candles, CandleRow{
			Token:     c.Token,
			Period:    c.Period.String(),
			Timestamp: c.Timestamp,
			Open:      usd(c.Open),
			High:      usd(c.High),
			Low:       usd(c.Low),
			Close:     usd(c.Close),
		})
	}
	sort.SliceStable(r.Candles, func(i, j int) bool {
		a, b := r.Candles[i], r.Candles[j]
		if a.Token != b.Token {
			return a.Token < b.Token
		}
		if a.Period != b.Period {
			return a.Period < b.Period
		}
		return a.Timestamp < b.Timestamp
	})

	for _, kind := range []domain.PriceKind{domain.PriceKindFast, domain.PriceKindOracle, domain.PriceKindPool} {
		points, err := list[domain.PricePoint](ctx, g.store, kind.EntityKind())
		if err != nil {
			return nil, err
		}
		for _, p := range points {
			if p.Period != domain.SnapshotLast {
				continue
			}
			r.LastPrices = append(r.LastPrices, PriceRow{
				Feed:        string(kind),
				Token:       p.Token,
				USD:         usd(p.USD()),
				BlockNumber: p.BlockNumber,
				Timestamp:   p.Timestamp,
			})
		}
	}

	return r, nil
}

func tradingStatRow(s *domain.TradingStat) TradingStatRow {
	return TradingStatRow{
		Period:                         s.Period.String(),
		Timestamp:                      s.Timestamp,
		LongOpenInterest:               usd(s.LongOpenInterest),
		ShortOpenInterest:              usd(s.ShortOpenInterest),
		Profit:                         usd(s.Profit),
		Loss:                           usd(s.Loss),
		ProfitCumulative:               usd(s.ProfitCumulative),
		LossCumulative:                 usd(s.LossCumulative),
		LiquidatedCollateral:           usd(s.LiquidatedCollateral),
		LiquidatedCollateralCumulative: usd(s.LiquidatedCollateralCumulative),
	}
}

func usd(v fixedpoint.Value) string {
	return v.Format(fixedpoint.USDDecimals)
}

// list decodes every record of a kind, in key order.
func list[T any](ctx context.Context, store storage.EntityStore, kind domain.EntityKind) ([]*T, error) {
	records, err := store.List(ctx, kind)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(records))
	for _, rec := range records {
		v := new(T)
		if err := json.Unmarshal(rec.Data, v); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", kind, rec.Key, err)
		}
		out = append(out, v)
	}
	return out, nil
}
