package domain

import (
	"perp-stats-engine/internal/fixedpoint"
	"perp-stats-engine/internal/period"
)

// EntityKind names a family of materialized records in the entity store.
type EntityKind string

const (
	KindPriceCandle    EntityKind = "price_candle"
	KindOraclePrice    EntityKind = "oracle_price"
	KindFastPrice      EntityKind = "fast_price"
	KindPoolPrice      EntityKind = "pool_price"
	KindTradingStat    EntityKind = "trading_stat"
	KindOpenInterest   EntityKind = "open_interest"
	KindOrder          EntityKind = "order"
	KindOrderStat      EntityKind = "order_stat"
	KindSupplyStat     EntityKind = "supply_stat"
	KindCandleCursor   EntityKind = "candle_cursor"
	KindProcessedEvent EntityKind = "processed_event"
	KindProgress       EntityKind = "progress"
)

// EntityKinds lists every kind in a fixed order (digests, migrations).
var EntityKinds = []EntityKind{
	KindPriceCandle,
	KindOraclePrice,
	KindFastPrice,
	KindPoolPrice,
	KindTradingStat,
	KindOpenInterest,
	KindOrder,
	KindOrderStat,
	KindSupplyStat,
	KindCandleCursor,
	KindProcessedEvent,
	KindProgress,
}

// IsValid checks if the kind is one of the declared kinds.
func (k EntityKind) IsValid() bool {
	for _, known := range EntityKinds {
		if k == known {
			return true
		}
	}
	return false
}

// PriceCandle is an OHLC record for one (token, period, bucket).
// Prices carry 30 implied decimals.
type PriceCandle struct {
	ID        string           `json:"id"`
	Token     string           `json:"token"`
	Period    period.Period    `json:"period"`
	Timestamp int64            `json:"timestamp"` // bucket start, or event time for tick candles
	Open      fixedpoint.Value `json:"open"`
	High      fixedpoint.Value `json:"high"`
	Low       fixedpoint.Value `json:"low"`
	Close     fixedpoint.Value `json:"close"`
}

// CandleCursor remembers the latest bucket written for (token, period).
type CandleCursor struct {
	ID        string        `json:"id"`
	Token     string        `json:"token"`
	Period    period.Period `json:"period"`
	LastStart int64         `json:"last_start"`
}

// SnapshotTag labels a PricePoint: the latest value, one observation, or
// a time-aligned period bucket.
type SnapshotTag string

const (
	SnapshotLast SnapshotTag = "last"
	SnapshotAny  SnapshotTag = "any"
)

// PeriodSnapshot returns the tag of a periodic price snapshot.
func PeriodSnapshot(p period.Period) SnapshotTag {
	return SnapshotTag(p.String())
}

// IsValid reports last, any or a canonical time-aligned period tag.
func (t SnapshotTag) IsValid() bool {
	if t == SnapshotLast || t == SnapshotAny {
		return true
	}
	p, err := period.Parse(string(t))
	return err == nil && p.IsTimeAligned() && p.String() == string(t)
}

// PricePoint is a stored price observation.
// Value is kept at its native precision; Decimals records that precision.
type PricePoint struct {
	ID          string           `json:"id"`
	Kind        PriceKind        `json:"kind"`
	Token       string           `json:"token"`
	Period      SnapshotTag      `json:"period"`
	Value       fixedpoint.Value `json:"value"`
	Decimals    int              `json:"decimals"`
	BlockNumber int64            `json:"block_number"`
	Timestamp   int64            `json:"timestamp"`
}

// USD returns the price rescaled to 30 decimals.
func (p *PricePoint) USD() fixedpoint.Value {
	return p.Value.ToUSD(p.Decimals)
}

// TradingStat aggregates open interest and realized PnL.
// Cumulative fields in periodic records are snapshots of the total record.
type TradingStat struct {
	ID                             string           `json:"id"`
	Period                         period.Period    `json:"period"`
	Timestamp                      int64            `json:"timestamp"`
	Profit                         fixedpoint.Value `json:"profit"`
	Loss                           fixedpoint.Value `json:"loss"`
	ProfitCumulative               fixedpoint.Value `json:"profit_cumulative"`
	LossCumulative                 fixedpoint.Value `json:"loss_cumulative"`
	LongOpenInterest               fixedpoint.Value `json:"long_open_interest"`
	ShortOpenInterest              fixedpoint.Value `json:"short_open_interest"`
	LiquidatedCollateral           fixedpoint.Value `json:"liquidated_collateral"`
	LiquidatedCollateralCumulative fixedpoint.Value `json:"liquidated_collateral_cumulative"`
}

// OpenInterest is per-instrument open interest.
type OpenInterest struct {
	ID        string           `json:"id"`
	Token     string           `json:"token"`
	Period    period.Period    `json:"period"`
	Timestamp int64            `json:"timestamp"`
	Long      fixedpoint.Value `json:"long"`
	Short     fixedpoint.Value `json:"short"`
}

// SupplyStat tracks mint and burn activity of a token.
// Supply and the cumulative fields are snapshots; the rest are period-local.
type SupplyStat struct {
	ID               string           `json:"id"`
	Token            string           `json:"token"`
	Period           period.Period    `json:"period"`
	Timestamp        int64            `json:"timestamp"`
	Supply           fixedpoint.Value `json:"supply"`
	Minted           fixedpoint.Value `json:"minted"`
	Burned           fixedpoint.Value `json:"burned"`
	MintedCumulative fixedpoint.Value `json:"minted_cumulative"`
	BurnedCumulative fixedpoint.Value `json:"burned_cumulative"`
	TransferCount    int64            `json:"transfer_count"`
	TransferVolume   fixedpoint.Value `json:"transfer_volume"`
}

// Order is a resting order and its lifecycle state.
type Order struct {
	ID                    string           `json:"id"`
	Kind                  OrderKind        `json:"kind"`
	Account               string           `json:"account"`
	Index                 int64            `json:"index"`
	Status                OrderStatus      `json:"status"`
	Size                  fixedpoint.Value `json:"size"`
	TriggerPrice          fixedpoint.Value `json:"trigger_price"`
	TriggerAboveThreshold bool             `json:"trigger_above_threshold"`
	IsLong                bool             `json:"is_long"`
	IndexToken            string           `json:"index_token,omitempty"`
	CollateralToken       string           `json:"collateral_token,omitempty"`
	CollateralDelta       fixedpoint.Value `json:"collateral_delta"`
	PurchaseToken         string           `json:"purchase_token,omitempty"`
	PurchaseTokenAmount   fixedpoint.Value `json:"purchase_token_amount"`
	Path                  []string         `json:"path,omitempty"`
	MinOut                fixedpoint.Value `json:"min_out"`
	ExecutionPrice        fixedpoint.Value `json:"execution_price"`
	CreatedTimestamp      int64            `json:"created_timestamp"`
	UpdatedTimestamp      int64            `json:"updated_timestamp,omitempty"`
	CancelledTimestamp    int64            `json:"cancelled_timestamp,omitempty"`
	ExecutedTimestamp     int64            `json:"executed_timestamp,omitempty"`
}

// OrderStat holds the nine order counters.
type OrderStat struct {
	ID                string `json:"id"`
	OpenSwap          int64  `json:"open_swap"`
	OpenIncrease      int64  `json:"open_increase"`
	OpenDecrease      int64  `json:"open_decrease"`
	CancelledSwap     int64  `json:"cancelled_swap"`
	CancelledIncrease int64  `json:"cancelled_increase"`
	CancelledDecrease int64  `json:"cancelled_decrease"`
	ExecutedSwap      int64  `json:"executed_swap"`
	ExecutedIncrease  int64  `json:"executed_increase"`
	ExecutedDecrease  int64  `json:"executed_decrease"`
}

// Counter returns a pointer to the counter for (status, kind).
func (s *OrderStat) Counter(status OrderStatus, kind OrderKind) *int64 {
	switch status {
	case OrderStatusOpen:
		switch kind {
		case OrderKindSwap:
			return &s.OpenSwap
		case OrderKindIncrease:
			return &s.OpenIncrease
		case OrderKindDecrease:
			return &s.OpenDecrease
		}
	case OrderStatusCancelled:
		switch kind {
		case OrderKindSwap:
			return &s.CancelledSwap
		case OrderKindIncrease:
			return &s.CancelledIncrease
		case OrderKindDecrease:
			return &s.CancelledDecrease
		}
	case OrderStatusExecuted:
		switch kind {
		case OrderKindSwap:
			return &s.ExecutedSwap
		case OrderKindIncrease:
			return &s.ExecutedIncrease
		case OrderKindDecrease:
			return &s.ExecutedDecrease
		}
	}
	return nil
}

// ProcessedEvent is a dedup ledger entry.
type ProcessedEvent struct {
	ID          string    `json:"id"`
	Kind        EventKind `json:"kind"`
	BlockNumber int64     `json:"block_number"`
	Timestamp   int64     `json:"timestamp"`
}

// Progress is the engine checkpoint.
type Progress struct {
	ID         string `json:"id"`
	Cursor     Cursor `json:"cursor"`
	Timestamp  int64  `json:"timestamp"`
	RunID      string `json:"run_id"`
	EventCount int64  `json:"event_count"`
}
