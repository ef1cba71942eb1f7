package ingestion

import (
	"errors"
	"sort"

	"perp-stats-engine/internal/domain"
)

// ErrInvalidOrdering is returned when events are not properly ordered.
var ErrInvalidOrdering = errors.New("events are not in deterministic order")

// SortEvents orders events by (block_number ASC, tx_index ASC, log_index ASC).
// The sort is stable, so identical positions keep their arrival order.
func SortEvents(events []*domain.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return compareEvents(events[i], events[j]) < 0
	})
}

// ValidateOrdering checks that events are strictly increasing.
// Returns ErrInvalidOrdering if not.
func ValidateOrdering(events []*domain.Event) error {
	for i := 1; i < len(events); i++ {
		if compareEvents(events[i-1], events[i]) >= 0 {
			return ErrInvalidOrdering
		}
	}
	return nil
}

// compareEvents returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
//
// Order: (block_number ASC, tx_index ASC, log_index ASC)
func compareEvents(a, b *domain.Event) int {
	return a.Cursor().Compare(b.Cursor())
}
