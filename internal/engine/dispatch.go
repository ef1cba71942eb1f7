package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"perp-stats-engine/internal/domain"
	"perp-stats-engine/internal/pricing"
	"perp-stats-engine/internal/repository"
)

func (e *Engine) dispatch(ctx context.Context, s *repository.Session, ev *domain.Event, log zerolog.Logger) error {
	ts := ev.BlockTimestamp

	switch ev.Kind {
	case domain.EventPriceTick:
		return e.onPriceTick(ctx, s, ev)

	case domain.EventPoolSwap, domain.EventPoolSync:
		_, err := e.prices.RecordPoolPrice(ctx, s, ev.PoolSwap, pricing.Observation{
			BlockNumber: ev.BlockNumber,
			Timestamp:   ts,
		})
		if errors.Is(err, pricing.ErrDegeneratePool) {
			// no price update, the event is still acknowledged
			e.counts.Anomalies++
			e.metrics.RecordAnomaly("degenerate_pool")
			log.Warn().Err(err).Msg("pool price skipped")
			return nil
		}
		return err

	case domain.EventIncreasePosition, domain.EventDecreasePosition:
		p := ev.Position
		return e.stats.ApplyOpenInterest(ctx, s, ts, p.IndexToken, p.IsLong, p.SizeDelta, ev.Kind == domain.EventIncreasePosition)

	case domain.EventClosePosition:
		return e.stats.ApplyPnl(ctx, s, ts, ev.Position.RealisedPnl, false)

	case domain.EventLiquidatePosition:
		p := ev.Position
		if err := e.stats.ApplyOpenInterest(ctx, s, ts, p.IndexToken, p.IsLong, p.SizeDelta, false); err != nil {
			return err
		}
		// the whole remaining collateral is lost
		return e.stats.ApplyPnl(ctx, s, ts, p.Collateral.Neg(), true)

	case domain.EventCreateOrder:
		_, err := e.orders.Create(ctx, s, ev.Order, ts)
		return err
	case domain.EventUpdateOrder:
		_, err := e.orders.Update(ctx, s, ev.Order, ts)
		return err
	case domain.EventCancelOrder:
		_, err := e.orders.Cancel(ctx, s, ev.Order, ts)
		return err
	case domain.EventExecuteOrder:
		_, err := e.orders.Execute(ctx, s, ev.Order, ts)
		return err

	case domain.EventTransfer:
		if !e.supply[ev.Transfer.Token] {
			return nil
		}
		return e.stats.ApplyTransfer(ctx, s, ts, ev.Transfer)
	}

	return fmt.Errorf("%w: unhandled kind %q", ErrInvalidEvent, ev.Kind)
}

func (e *Engine) onPriceTick(ctx context.Context, s *repository.Session, ev *domain.Event) error {
	tick := ev.PriceTick
	usd, err := e.prices.RecordFeedPrice(ctx, s, tick, pricing.Observation{
		BlockNumber: ev.BlockNumber,
		Timestamp:   ev.BlockTimestamp,
	})
	if err != nil {
		return err
	}

	if !e.feeds[tick.Feed] {
		return nil
	}
	return e.candles.Apply(ctx, s, tick.Token, usd, ev.BlockTimestamp, ev.TxHash)
}
