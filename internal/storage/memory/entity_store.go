package memory

import (
	"context"
	"sort"
	"sync"

	"perp-stats-engine/internal/domain"
	"perp-stats-engine/internal/storage"
)

// EntityStore is an in-memory implementation of storage.EntityStore.
type EntityStore struct {
	mu   sync.RWMutex
	data map[domain.EntityKind]map[string][]byte
}

// NewEntityStore creates a new in-memory entity store.
func NewEntityStore() *EntityStore {
	return &EntityStore{
		data: make(map[domain.EntityKind]map[string][]byte),
	}
}

// Get returns the encoded entity or storage.ErrNotFound.
func (s *EntityStore) Get(_ context.Context, kind domain.EntityKind, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.data[kind][key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneBytes(data), nil
}

// PutBatch upserts all records under one lock. Invalid input rejects the whole batch.
func (s *EntityStore) PutBatch(_ context.Context, records []storage.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := storage.ValidateRecords(records); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		bucket, ok := s.data[r.Kind]
		if !ok {
			bucket = make(map[string][]byte)
			s.data[r.Kind] = bucket
		}
		bucket[r.Key] = cloneBytes(r.Data)
	}
	return nil
}

// List returns every record of a kind, ordered by key ASC.
func (s *EntityStore) List(_ context.Context, kind domain.EntityKind) ([]storage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bucket := s.data[kind]
	result := make([]storage.Record, 0, len(bucket))
	for key, data := range bucket {
		result = append(result, storage.Record{Kind: kind, Key: key, Data: cloneBytes(data)})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})

	return result, nil
}

// Len returns the number of records of a kind.
func (s *EntityStore) Len(kind domain.EntityKind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[kind])
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

var _ storage.EntityStore = (*EntityStore)(nil)
