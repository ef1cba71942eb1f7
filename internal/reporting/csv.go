package reporting

import (
	"fmt"
	"strings"
)

// RenderCandlesCSV renders time-aligned candles as CSV string.
func RenderCandlesCSV(candles []CandleRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("token,period,timestamp,open,high,low,close\n")

	// Rows
	for _, c := range candles {
		sb.WriteString(fmt.Sprintf("%s,%s,%d,%s,%s,%s,%s\n",
			c.Token, c.Period, c.Timestamp, c.Open, c.High, c.Low, c.Close))
	}

	return sb.String()
}

// RenderTradingStatsCSV renders periodic trading stats as CSV string.
func RenderTradingStatsCSV(stats []TradingStatRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("period,timestamp,long_open_interest,short_open_interest,profit,loss,")
	sb.WriteString("profit_cumulative,loss_cumulative,liquidated_collateral,liquidated_collateral_cumulative\n")

	// Rows
	for _, s := range stats {
		sb.WriteString(fmt.Sprintf("%s,%d,%s,%s,%s,%s,%s,%s,%s,%s\n",
			s.Period,
			s.Timestamp,
			s.LongOpenInterest,
			s.ShortOpenInterest,
			s.Profit,
			s.Loss,
			s.ProfitCumulative,
			s.LossCumulative,
			s.LiquidatedCollateral,
			s.LiquidatedCollateralCumulative,
		))
	}

	return sb.String()
}
