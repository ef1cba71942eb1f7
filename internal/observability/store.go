package observability

import (
	"context"
	"errors"
	"time"

	"perp-stats-engine/internal/domain"
	"perp-stats-engine/internal/storage"
)

// InstrumentedStore records query metrics around an EntityStore.
type InstrumentedStore struct {
	next     storage.EntityStore
	metrics  *Metrics
	database string
}

var _ storage.EntityStore = (*InstrumentedStore)(nil)

// InstrumentStore wraps store. database labels the backend (postgres, redis).
func InstrumentStore(store storage.EntityStore, metrics *Metrics, database string) *InstrumentedStore {
	return &InstrumentedStore{next: store, metrics: metrics, database: database}
}

func (s *InstrumentedStore) Get(ctx context.Context, kind domain.EntityKind, key string) ([]byte, error) {
	start := time.Now()
	data, err := s.next.Get(ctx, kind, key)
	// a miss is a normal answer, not a failed query
	recErr := err
	if errors.Is(err, storage.ErrNotFound) {
		recErr = nil
	}
	s.metrics.RecordDBQuery(s.database, "get", time.Since(start).Seconds(), recErr)
	return data, err
}

func (s *InstrumentedStore) PutBatch(ctx context.Context, records []storage.Record) error {
	start := time.Now()
	err := s.next.PutBatch(ctx, records)
	s.metrics.RecordDBQuery(s.database, "put_batch", time.Since(start).Seconds(), err)
	return err
}

func (s *InstrumentedStore) List(ctx context.Context, kind domain.EntityKind) ([]storage.Record, error) {
	start := time.Now()
	records, err := s.next.List(ctx, kind)
	s.metrics.RecordDBQuery(s.database, "list", time.Since(start).Seconds(), err)
	return records, err
}
