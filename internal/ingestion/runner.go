package ingestion

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"perp-stats-engine/internal/domain"
)

// Handler consumes events in canonical order.
type Handler interface {
	OnEvent(ctx context.Context, event *domain.Event) error
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Source  Source
	Handler Handler
	// BlockLag holds events until this many higher blocks have been seen, so
	// a live feed delivering a block out of order is still applied in order.
	// Zero delivers every event on arrival.
	BlockLag      int64
	FlushInterval time.Duration // Default: 5s
	Logger        zerolog.Logger
}

// Runner pumps a Source into a Handler.
type Runner struct {
	source        Source
	handler       Handler
	blockLag      int64
	flushInterval time.Duration
	logger        zerolog.Logger

	// Block-based buffer for deterministic ordering
	buffer       map[int64][]*domain.Event
	highestBlock int64
	delivered    int64
}

// NewRunner creates a new ingestion runner.
func NewRunner(opts RunnerOptions) *Runner {
	flushInterval := opts.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}

	return &Runner{
		source:        opts.Source,
		handler:       opts.Handler,
		blockLag:      opts.BlockLag,
		flushInterval: flushInterval,
		logger:        opts.Logger.With().Str("component", "ingestion").Logger(),
		buffer:        make(map[int64][]*domain.Event),
		highestBlock:  -1,
	}
}

// Delivered returns the number of events handed to the handler.
func (r *Runner) Delivered() int64 {
	return r.delivered
}

// Run consumes the source until it ends, fails or ctx is cancelled.
// Buffered events are flushed before returning; a handler error stops the run.
func (r *Runner) Run(ctx context.Context) error {
	events, err := r.source.Subscribe(ctx)
	if err != nil {
		return err
	}

	flushTicker := time.NewTicker(r.flushInterval)
	defer flushTicker.Stop()

	r.logger.Info().Int64("block_lag", r.blockLag).Msg("runner started")

	for {
		select {
		case <-ctx.Done():
			// Flush remaining events on a context that outlives the shutdown signal
			if err := r.flushAll(context.WithoutCancel(ctx)); err != nil {
				return err
			}
			r.logger.Info().Int64("delivered", r.delivered).Msg("runner stopping")
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				if err := r.flushAll(context.WithoutCancel(ctx)); err != nil {
					return err
				}
				r.logger.Info().Int64("delivered", r.delivered).Msg("source ended")
				if err := ctx.Err(); err != nil {
					return err
				}
				return r.source.Err()
			}
			if err := r.accept(ctx, ev); err != nil {
				return err
			}

		case <-flushTicker.C:
			if err := r.processFinalized(ctx); err != nil {
				return err
			}
		}
	}
}

func (r *Runner) accept(ctx context.Context, ev *domain.Event) error {
	if r.blockLag <= 0 {
		return r.deliver(ctx, ev)
	}

	block := ev.BlockNumber
	r.buffer[block] = append(r.buffer[block], ev)

	if block > r.highestBlock {
		r.highestBlock = block
		return r.processFinalized(ctx)
	}
	if block <= r.highestBlock-r.blockLag {
		// Late event for an already released block
		r.logger.Warn().Int64("block", block).Int64("highest", r.highestBlock).Msg("late event")
		return r.processBlock(ctx, block)
	}
	return nil
}

// processFinalized releases blocks at least blockLag behind the highest seen.
func (r *Runner) processFinalized(ctx context.Context) error {
	limit := r.highestBlock - r.blockLag
	for _, block := range r.bufferedBlocks() {
		if block > limit {
			break
		}
		if err := r.processBlock(ctx, block); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) flushAll(ctx context.Context) error {
	for _, block := range r.bufferedBlocks() {
		if err := r.processBlock(ctx, block); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) processBlock(ctx context.Context, block int64) error {
	events := r.buffer[block]
	delete(r.buffer, block)

	SortEvents(events)
	for _, ev := range events {
		if err := r.deliver(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) deliver(ctx context.Context, ev *domain.Event) error {
	if err := r.handler.OnEvent(ctx, ev); err != nil {
		return err
	}
	r.delivered++
	return nil
}

func (r *Runner) bufferedBlocks() []int64 {
	blocks := make([]int64, 0, len(r.buffer))
	for b := range r.buffer {
		blocks = append(blocks, b)
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i] < blocks[j] })
	return blocks
}
