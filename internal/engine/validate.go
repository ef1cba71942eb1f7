package engine

import (
	"errors"
	"fmt"

	"perp-stats-engine/internal/domain"
)

// ErrInvalidEvent is returned for events that cannot be applied.
var ErrInvalidEvent = errors.New("invalid event")

// Validate checks the envelope and that exactly the payload matching the
// kind is present.
func Validate(ev *domain.Event) error {
	if err := validateEnvelope(ev); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidEvent, err)
	}
	if err := validatePayload(ev); err != nil {
		return fmt.Errorf("%w: %s %s: %s", ErrInvalidEvent, ev.Kind, ev.ID(), err)
	}
	return nil
}

func validateEnvelope(ev *domain.Event) error {
	switch {
	case !ev.Kind.IsValid():
		return fmt.Errorf("unknown kind %q", ev.Kind)
	case ev.TxHash == "":
		return errors.New("tx_hash is required")
	case ev.BlockNumber < 0:
		return fmt.Errorf("negative block_number %d", ev.BlockNumber)
	case ev.BlockTimestamp < 0:
		return fmt.Errorf("negative block_timestamp %d", ev.BlockTimestamp)
	case ev.TxIndex < 0 || ev.LogIndex < 0:
		return fmt.Errorf("negative position %d/%d", ev.TxIndex, ev.LogIndex)
	}
	return nil
}

func validatePayload(ev *domain.Event) error {
	payloads := 0
	for _, set := range []bool{ev.PriceTick != nil, ev.PoolSwap != nil, ev.Position != nil, ev.Order != nil, ev.Transfer != nil} {
		if set {
			payloads++
		}
	}
	if payloads != 1 {
		return fmt.Errorf("expected exactly one payload, got %d", payloads)
	}

	switch {
	case ev.Kind == domain.EventPriceTick:
		if ev.PriceTick == nil {
			return errors.New("price_tick payload missing")
		}
	case ev.Kind == domain.EventPoolSwap || ev.Kind == domain.EventPoolSync:
		if ev.PoolSwap == nil {
			return errors.New("pool_swap payload missing")
		}
	case ev.Kind.IsPosition():
		p := ev.Position
		if p == nil {
			return errors.New("position payload missing")
		}
		if p.IndexToken == "" {
			return errors.New("position.index_token is required")
		}
		if p.SizeDelta.IsNegative() {
			return fmt.Errorf("negative position.size_delta %s", p.SizeDelta)
		}
		if ev.Kind == domain.EventLiquidatePosition && p.Collateral.IsNegative() {
			return fmt.Errorf("negative position.collateral %s", p.Collateral)
		}
	case ev.Kind.IsOrder():
		if ev.Order == nil {
			return errors.New("order payload missing")
		}
	case ev.Kind == domain.EventTransfer:
		if ev.Transfer == nil {
			return errors.New("transfer payload missing")
		}
		if ev.Transfer.Token == "" {
			return errors.New("transfer.token is required")
		}
	}
	return nil
}
