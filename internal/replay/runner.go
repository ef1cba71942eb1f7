package replay

import (
	"context"
	"fmt"

	"perp-stats-engine/internal/domain"
	"perp-stats-engine/internal/ingestion"
)

// Runner replays a recorded event log through an engine.
type Runner struct {
	// Repeat delivers every event this many times (default 1). Values above
	// one exercise the dedup ledger.
	Repeat int

	// OnError, when set, receives every engine error. Returning nil skips the
	// event and continues the replay.
	OnError func(event *domain.Event, err error) error
}

// NewRunner creates a new replay runner.
func NewRunner() *Runner {
	return &Runner{Repeat: 1}
}

// Run sorts a copy of events and replays it through the engine.
// The caller's slice is left untouched.
func (r *Runner) Run(ctx context.Context, events []*domain.Event, engine Engine) error {
	ordered := make([]*domain.Event, len(events))
	copy(ordered, events)
	ingestion.SortEvents(ordered)

	repeat := r.Repeat
	if repeat < 1 {
		repeat = 1
	}

	for _, event := range ordered {
		for i := 0; i < repeat; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := engine.OnEvent(ctx, event); err != nil {
				if r.OnError != nil {
					if err = r.OnError(event, err); err == nil {
						continue
					}
				}
				return fmt.Errorf("replay %s: %w", event.ID(), err)
			}
		}
	}

	return nil
}

// RunFile replays the JSON-lines event log at path.
func (r *Runner) RunFile(ctx context.Context, path string, engine Engine) error {
	events, err := ingestion.ReadEventFile(path)
	if err != nil {
		return err
	}
	return r.Run(ctx, events, engine)
}
