package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"perp-stats-engine/internal/domain"
	"perp-stats-engine/internal/storage"
)

// Mirror implements storage.ChangeSink by copying committed candles, price
// points and stats into ReplacingMergeTree tables for analytics queries.
// Kinds without a mirror table are ignored.
type Mirror struct {
	conn    *Conn
	version func() uint64
}

// NewMirror creates a new Mirror.
func NewMirror(conn *Conn) *Mirror {
	return &Mirror{
		conn:    conn,
		version: func() uint64 { return uint64(time.Now().UnixNano()) },
	}
}

// Compile-time interface check.
var _ storage.ChangeSink = (*Mirror)(nil)

// mirrorRows holds decoded rows grouped by target table.
type mirrorRows struct {
	candles  []*domain.PriceCandle
	prices   []*domain.PricePoint
	stats    []*domain.TradingStat
	interest []*domain.OpenInterest
}

func (r *mirrorRows) empty() bool {
	return len(r.candles)+len(r.prices)+len(r.stats)+len(r.interest) == 0
}

// decodeRecords routes records to their tables.
func decodeRecords(records []storage.Record) (*mirrorRows, error) {
	rows := &mirrorRows{}
	for _, rec := range records {
		var err error
		switch rec.Kind {
		case domain.KindPriceCandle:
			var c domain.PriceCandle
			if err = json.Unmarshal(rec.Data, &c); err == nil {
				rows.candles = append(rows.candles, &c)
			}
		case domain.KindOraclePrice, domain.KindFastPrice, domain.KindPoolPrice:
			var p domain.PricePoint
			if err = json.Unmarshal(rec.Data, &p); err == nil {
				rows.prices = append(rows.prices, &p)
			}
		case domain.KindTradingStat:
			var s domain.TradingStat
			if err = json.Unmarshal(rec.Data, &s); err == nil {
				rows.stats = append(rows.stats, &s)
			}
		case domain.KindOpenInterest:
			var oi domain.OpenInterest
			if err = json.Unmarshal(rec.Data, &oi); err == nil {
				rows.interest = append(rows.interest, &oi)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", rec.Kind, rec.Key, err)
		}
	}
	return rows, nil
}

// Publish appends one row per mirrored record.
func (m *Mirror) Publish(ctx context.Context, records []storage.Record) error {
	rows, err := decodeRecords(records)
	if err != nil {
		return err
	}
	if rows.empty() {
		return nil
	}

	version := m.version()

	if err := m.insertCandles(ctx, rows.candles, version); err != nil {
		return err
	}
	if err := m.insertPrices(ctx, rows.prices, version); err != nil {
		return err
	}
	if err := m.insertStats(ctx, rows.stats, version); err != nil {
		return err
	}
	return m.insertInterest(ctx, rows.interest, version)
}

func (m *Mirror) insertCandles(ctx context.Context, candles []*domain.PriceCandle, version uint64) error {
	if len(candles) == 0 {
		return nil
	}

	batch, err := m.conn.PrepareBatch(ctx, `
		INSERT INTO price_candles (id, token, period, timestamp, open, high, low, close, version)
	`)
	if err != nil {
		return fmt.Errorf("prepare candle batch: %w", err)
	}

	for _, c := range candles {
		err = batch.Append(
			c.ID, c.Token, c.Period.String(), c.Timestamp,
			c.Open.Decimal(), c.High.Decimal(), c.Low.Decimal(), c.Close.Decimal(),
			version,
		)
		if err != nil {
			return fmt.Errorf("append candle: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send candle batch: %w", err)
	}
	return nil
}

func (m *Mirror) insertPrices(ctx context.Context, prices []*domain.PricePoint, version uint64) error {
	if len(prices) == 0 {
		return nil
	}

	batch, err := m.conn.PrepareBatch(ctx, `
		INSERT INTO price_points (kind, id, token, period, value, decimals, block_number, timestamp, version)
	`)
	if err != nil {
		return fmt.Errorf("prepare price batch: %w", err)
	}

	for _, p := range prices {
		err = batch.Append(
			string(p.Kind), p.ID, p.Token, string(p.Period),
			p.Value.Decimal(), uint8(p.Decimals), p.BlockNumber, p.Timestamp,
			version,
		)
		if err != nil {
			return fmt.Errorf("append price: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send price batch: %w", err)
	}
	return nil
}

func (m *Mirror) insertStats(ctx context.Context, stats []*domain.TradingStat, version uint64) error {
	if len(stats) == 0 {
		return nil
	}

	batch, err := m.conn.PrepareBatch(ctx, `
		INSERT INTO trading_stats (
			id, period, timestamp, profit, loss, profit_cumulative, loss_cumulative,
			long_open_interest, short_open_interest,
			liquidated_collateral, liquidated_collateral_cumulative, version
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare stat batch: %w", err)
	}

	for _, s := range stats {
		err = batch.Append(
			s.ID, s.Period.String(), s.Timestamp,
			s.Profit.Decimal(), s.Loss.Decimal(), s.ProfitCumulative.Decimal(), s.LossCumulative.Decimal(),
			s.LongOpenInterest.Decimal(), s.ShortOpenInterest.Decimal(),
			s.LiquidatedCollateral.Decimal(), s.LiquidatedCollateralCumulative.Decimal(),
			version,
		)
		if err != nil {
			return fmt.Errorf("append stat: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send stat batch: %w", err)
	}
	return nil
}

func (m *Mirror) insertInterest(ctx context.Context, interest []*domain.OpenInterest, version uint64) error {
	if len(interest) == 0 {
		return nil
	}

	batch, err := m.conn.PrepareBatch(ctx, `
		INSERT INTO open_interest (id, token, period, timestamp, long, short, version)
	`)
	if err != nil {
		return fmt.Errorf("prepare open interest batch: %w", err)
	}

	for _, oi := range interest {
		err = batch.Append(
			oi.ID, oi.Token, oi.Period.String(), oi.Timestamp,
			oi.Long.Decimal(), oi.Short.Decimal(),
			version,
		)
		if err != nil {
			return fmt.Errorf("append open interest: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send open interest batch: %w", err)
	}
	return nil
}

// CandleRow is a candle as read back from the mirror.
type CandleRow struct {
	ID        string
	Period    string
	Timestamp int64
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
}

// CandlesByToken returns the latest version of every candle for a token,
// ordered by (period, timestamp).
func (m *Mirror) CandlesByToken(ctx context.Context, token string) ([]*CandleRow, error) {
	query := `
		SELECT id, period, timestamp, open, high, low, close
		FROM price_candles FINAL
		WHERE token = ?
		ORDER BY period ASC, timestamp ASC, id ASC
	`

	rows, err := m.conn.Query(ctx, query, token)
	if err != nil {
		return nil, fmt.Errorf("query candles by token: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

// scanCandles scans multiple rows.
func scanCandles(rows chRows) ([]*CandleRow, error) {
	var candles []*CandleRow

	for rows.Next() {
		var c CandleRow
		if err := rows.Scan(&c.ID, &c.Period, &c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close); err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}
		candles = append(candles, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candle rows: %w", err)
	}

	return candles, nil
}

// TotalStat returns the latest mirrored "total" trading stat profit and loss.
func (m *Mirror) TotalStat(ctx context.Context) (profit, loss decimal.Decimal, err error) {
	query := `
		SELECT profit_cumulative, loss_cumulative
		FROM trading_stats FINAL
		WHERE id = 'total'
	`
	err = m.conn.QueryRow(ctx, query).Scan(&profit, &loss)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("query total stat: %w", err)
	}
	return profit, loss, nil
}
