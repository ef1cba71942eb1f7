package memory

import (
	"context"
	"sync"

	"perp-stats-engine/internal/storage"
)

// ChangeSink records published batches. Used by tests and dry runs.
type ChangeSink struct {
	mu      sync.Mutex
	batches [][]storage.Record
}

// NewChangeSink creates an empty sink.
func NewChangeSink() *ChangeSink {
	return &ChangeSink{}
}

// Publish stores a copy of the batch.
func (s *ChangeSink) Publish(_ context.Context, records []storage.Record) error {
	batch := make([]storage.Record, len(records))
	for i, r := range records {
		batch[i] = storage.Record{Kind: r.Kind, Key: r.Key, Data: cloneBytes(r.Data)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, batch)
	return nil
}

// Batches returns all published batches in order.
func (s *ChangeSink) Batches() [][]storage.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([][]storage.Record, len(s.batches))
	copy(out, s.batches)
	return out
}

var _ storage.ChangeSink = (*ChangeSink)(nil)
