package domain

import (
	"strconv"

	"perp-stats-engine/internal/period"
)

// Entity key formats. Downstream readers depend on these exact shapes.

// TotalKey identifies aggregate rows.
const TotalKey = "total"

// ProgressKey identifies the single engine checkpoint.
const ProgressKey = "engine"

// CandleKey returns token:period:bucketStart.
func CandleKey(token string, p period.Period, start int64) string {
	return token + ":" + p.String() + ":" + strconv.FormatInt(start, 10)
}

// TickCandleKey returns token:any:txHash.
func TickCandleKey(token, txHash string) string {
	return token + ":" + period.Any.String() + ":" + txHash
}

// CandleCursorKey returns token:period.
func CandleCursorKey(token string, p period.Period) string {
	return token + ":" + p.String()
}

// PriceLastKey returns the key of the latest snapshot: the token itself.
func PriceLastKey(token string) string {
	return token
}

// PriceHistoryKey returns token:timestamp.
func PriceHistoryKey(token string, ts int64) string {
	return token + ":" + strconv.FormatInt(ts, 10)
}

// PricePeriodKey returns token:period:bucketStart.
func PricePeriodKey(token string, p period.Period, start int64) string {
	return CandleKey(token, p, start)
}

// TradingStatKey returns "total" or bucketStart:period.
func TradingStatKey(p period.Period, start int64) string {
	if p == period.Total {
		return TotalKey
	}
	return strconv.FormatInt(start, 10) + ":" + p.String()
}

// OpenInterestKey returns token:total or token:bucketStart:period.
func OpenInterestKey(token string, p period.Period, start int64) string {
	return token + ":" + TradingStatKey(p, start)
}

// SupplyStatKey uses the open interest key shape.
func SupplyStatKey(token string, p period.Period, start int64) string {
	return OpenInterestKey(token, p, start)
}

// OrderKey returns account:orderKind:index.
func OrderKey(account string, kind OrderKind, index int64) string {
	return account + ":" + string(kind) + ":" + strconv.FormatInt(index, 10)
}

// EventKey returns txHash:logIndex.
func EventKey(txHash string, logIndex int) string {
	return txHash + ":" + strconv.Itoa(logIndex)
}
