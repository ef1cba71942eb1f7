package reporting

import "time"

// Report describes the materialized state of one store.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	Deployment  string
	Digest      string
	Entities    int

	// Run outcome, when the report follows a replay
	Run *RunSection

	// Aggregates
	Totals       *TradingStatRow
	Periods      []TradingStatRow  // sorted by period, then timestamp
	OpenInterest []OpenInterestRow // token totals, sorted by token
	Supply       []SupplyRow       // token totals, sorted by token
	Orders       []OrderCounterRow // swap, increase, decrease
	Candles      []CandleRow       // time-aligned candles, sorted by token, period, timestamp
	LastPrices   []PriceRow        // last snapshot per feed and token
	Verification *VerificationSection
}

// RunSection summarizes a replay.
type RunSection struct {
	Events     int
	Processed  int64
	Duplicates int64
	Anomalies  int64
	Failed     int
	LastBlock  int64
}

// VerificationSection reports a determinism check.
type VerificationSection struct {
	Match             bool
	RedeliveredDigest string
	Divergent         []string
	ConflictingEvents []string
}

// TradingStatRow is a trading stat with USD values rendered as decimals.
type TradingStatRow struct {
	Period                         string
	Timestamp                      int64
	LongOpenInterest               string
	ShortOpenInterest              string
	Profit                         string
	Loss                           string
	ProfitCumulative               string
	LossCumulative                 string
	LiquidatedCollateral           string
	LiquidatedCollateralCumulative string
}

// OpenInterestRow is per-token open interest in USD.
type OpenInterestRow struct {
	Token string
	Long  string
	Short string
}

// SupplyRow is the running supply of a tracked token, in raw units.
type SupplyRow struct {
	Token            string
	Supply           string
	MintedCumulative string
	BurnedCumulative string
	TransferCount    int64
}

// OrderCounterRow holds the order counters of one order kind.
type OrderCounterRow struct {
	Kind      string
	Open      int64
	Cancelled int64
	Executed  int64
}

// CandleRow is one OHLC candle in USD.
type CandleRow struct {
	Token     string
	Period    string
	Timestamp int64
	Open      string
	High      string
	Low       string
	Close     string
}

// PriceRow is the latest observation of one feed.
type PriceRow struct {
	Feed        string
	Token       string
	USD         string
	BlockNumber int64
	Timestamp   int64
}
