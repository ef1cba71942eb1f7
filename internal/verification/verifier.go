// Package verification checks that replaying an event log is deterministic
// and that redelivered events have no effect on materialized state.
package verification

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"perp-stats-engine/internal/domain"
	"perp-stats-engine/internal/engine"
	"perp-stats-engine/internal/idhash"
	"perp-stats-engine/internal/replay"
	"perp-stats-engine/internal/repository"
	"perp-stats-engine/internal/storage/memory"
)

// verifyRunID is written into the progress checkpoint of both runs so the
// checkpoint records compare equal.
const verifyRunID = "verify"

// RunSummary describes one replay run.
type RunSummary struct {
	Processed  int64  `json:"processed"`
	Duplicates int64  `json:"duplicates"`
	Failed     int    `json:"failed"`
	Entities   int    `json:"entities"`
	Digest     string `json:"digest"`
}

// Report is the outcome of VerifyReplay.
type Report struct {
	Events int  `json:"events"`
	Match  bool `json:"match"`

	// Single is the plain replay, Redelivered the replay with every event
	// delivered twice.
	Single      RunSummary `json:"single"`
	Redelivered RunSummary `json:"redelivered"`

	// Divergent lists kind/key of entities whose records differ between runs.
	Divergent []string `json:"divergent,omitempty"`

	// ConflictingEvents lists event IDs that occur more than once in the
	// input with different content. The dedup ledger keeps the first.
	ConflictingEvents []string `json:"conflicting_events,omitempty"`
}

// VerifyReplay replays events into two fresh memory stores, the second time
// delivering every event twice, and compares the resulting state.
// opts.Metrics and opts.RunID are ignored.
func VerifyReplay(ctx context.Context, opts engine.Options, events []*domain.Event) (*Report, error) {
	logger := opts.Logger.With().Str("component", "verification").Logger()

	conflicts, err := conflictingEvents(events)
	if err != nil {
		return nil, err
	}

	single, singleSnap, err := run(ctx, opts, events, 1)
	if err != nil {
		return nil, fmt.Errorf("single replay: %w", err)
	}
	redelivered, redeliveredSnap, err := run(ctx, opts, events, 2)
	if err != nil {
		return nil, fmt.Errorf("redelivered replay: %w", err)
	}

	report := &Report{
		Events:            len(events),
		Single:            *single,
		Redelivered:       *redelivered,
		Divergent:         idhash.Diff(singleSnap, redeliveredSnap),
		ConflictingEvents: conflicts,
	}
	report.Match = len(report.Divergent) == 0 && single.Digest == redelivered.Digest

	ev := logger.Info()
	if !report.Match {
		ev = logger.Warn()
	}
	ev.Int("events", report.Events).
		Bool("match", report.Match).
		Int("divergent", len(report.Divergent)).
		Str("digest", single.Digest).
		Msg("replay verification finished")

	return report, nil
}

func run(ctx context.Context, opts engine.Options, events []*domain.Event, repeat int) (*RunSummary, map[string]string, error) {
	store := memory.NewEntityStore()

	opts.RunID = verifyRunID
	opts.Metrics = nil
	opts.Logger = zerolog.Nop()

	eng, err := engine.New(repository.New(store, nil, opts.Logger), opts)
	if err != nil {
		return nil, nil, err
	}

	summary := &RunSummary{}
	runner := &replay.Runner{
		Repeat: repeat,
		OnError: func(*domain.Event, error) error {
			summary.Failed++
			return nil
		},
	}
	if err := runner.Run(ctx, events, eng); err != nil {
		return nil, nil, err
	}

	snap, err := idhash.Snapshot(ctx, store)
	if err != nil {
		return nil, nil, err
	}

	stats := eng.Stats()
	summary.Processed = stats.Processed
	summary.Duplicates = stats.Duplicates
	summary.Entities = len(snap)
	summary.Digest = idhash.Digest(snap)
	return summary, snap, nil
}

func conflictingEvents(events []*domain.Event) ([]string, error) {
	seen := make(map[string]string, len(events))
	reported := make(map[string]bool)
	var out []string

	for _, ev := range events {
		ev.Normalize()
		fp, err := idhash.EventFingerprint(ev)
		if err != nil {
			return nil, err
		}

		id := ev.ID()
		prev, ok := seen[id]
		if !ok {
			seen[id] = fp
			continue
		}
		if prev != fp && !reported[id] {
			reported[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}
