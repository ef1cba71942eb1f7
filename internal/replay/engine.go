package replay

import (
	"context"

	"perp-stats-engine/internal/domain"
)

// Engine processes events in deterministic order.
type Engine interface {
	// OnEvent is called for each event in order.
	// Events are ordered by (block_number, tx_index, log_index).
	OnEvent(ctx context.Context, event *domain.Event) error
}
