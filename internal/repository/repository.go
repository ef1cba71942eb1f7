// Package repository is the unit-of-work facade every aggregator reads and
// writes entities through. One Session covers the writes of one event and is
// committed as one atomic batch.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"perp-stats-engine/internal/domain"
	"perp-stats-engine/internal/storage"
)

var (
	// ErrTypeMismatch is returned when a cached entity is requested as a different type.
	ErrTypeMismatch = errors.New("entity type mismatch")

	// ErrPublish wraps change sink failures. The store batch is already committed.
	ErrPublish = errors.New("publish changes")
)

// Repository opens sessions over a store and an optional change sink.
type Repository struct {
	store  storage.EntityStore
	sink   storage.ChangeSink
	logger zerolog.Logger
}

// New creates a Repository. sink may be nil.
func New(store storage.EntityStore, sink storage.ChangeSink, logger zerolog.Logger) *Repository {
	return &Repository{
		store:  store,
		sink:   sink,
		logger: logger.With().Str("component", "repository").Logger(),
	}
}

// Store returns the underlying entity store.
func (r *Repository) Store() storage.EntityStore {
	return r.store
}

// Begin starts an empty session.
func (r *Repository) Begin() *Session {
	return &Session{
		repo:    r,
		entries: make(map[entryKey]*entry),
	}
}

type entryKey struct {
	kind domain.EntityKind
	key  string
}

type entry struct {
	value interface{} // *T
	dirty bool
}

// Session buffers entity reads and writes until Commit.
// Not safe for concurrent use.
type Session struct {
	repo    *Repository
	entries map[entryKey]*entry
	order   []entryKey // dirty keys in first-write order
}

// Put stages v under (kind, key). v must be a pointer.
func (s *Session) Put(kind domain.EntityKind, key string, v interface{}) {
	k := entryKey{kind, key}
	e, ok := s.entries[k]
	if !ok {
		e = &entry{}
		s.entries[k] = e
	}
	e.value = v
	s.markDirty(k, e)
}

func (s *Session) markDirty(k entryKey, e *entry) {
	if !e.dirty {
		e.dirty = true
		s.order = append(s.order, k)
	}
}

// Pending returns the number of staged writes.
func (s *Session) Pending() int {
	return len(s.order)
}

// lookup returns the cached entity, loading it from the store on a miss.
// found is false when neither the session nor the store has it.
func lookup[T any](ctx context.Context, s *Session, kind domain.EntityKind, key string) (*T, *entry, error) {
	k := entryKey{kind, key}
	if e, ok := s.entries[k]; ok {
		v, ok := e.value.(*T)
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s/%s holds %T", ErrTypeMismatch, kind, key, e.value)
		}
		return v, e, nil
	}

	v, err := Fetch[T](ctx, s.repo.store, kind, key)
	if err != nil {
		return nil, nil, err
	}

	e := &entry{value: v}
	s.entries[k] = e
	return v, e, nil
}

// Load returns the entity for (kind, key) or storage.ErrNotFound.
// Mutations to the result are not persisted unless it is Put.
func Load[T any](ctx context.Context, s *Session, kind domain.EntityKind, key string) (*T, error) {
	v, _, err := lookup[T](ctx, s, kind, key)
	return v, err
}

// GetOrInsert returns the entity for (kind, key), creating it with factory when
// it does not exist. The result is never nil on success and is staged for
// write, so callers mutate it in place.
func GetOrInsert[T any](ctx context.Context, s *Session, kind domain.EntityKind, key string, factory func() (*T, error)) (*T, error) {
	v, e, err := lookup[T](ctx, s, kind, key)
	switch {
	case err == nil:
		s.markDirty(entryKey{kind, key}, e)
		return v, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}

	v, err = factory()
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("%w: factory for %s/%s returned nil", storage.ErrInvalidInput, kind, key)
	}
	s.Put(kind, key, v)
	return v, nil
}

// Records encodes staged writes in first-write order.
func (s *Session) Records() ([]storage.Record, error) {
	records := make([]storage.Record, 0, len(s.order))
	for _, k := range s.order {
		data, err := json.Marshal(s.entries[k].value)
		if err != nil {
			return nil, fmt.Errorf("encode %s/%s: %w", k.kind, k.key, err)
		}
		records = append(records, storage.Record{Kind: k.kind, Key: k.key, Data: data})
	}
	return records, nil
}

// Commit writes all staged entities in one batch and publishes them to the
// change sink. A sink failure is returned wrapped in ErrPublish after the
// store write succeeded. The session is empty afterwards.
func (s *Session) Commit(ctx context.Context) error {
	defer s.reset()

	if len(s.order) == 0 {
		return nil
	}

	records, err := s.Records()
	if err != nil {
		return err
	}

	if err := s.repo.store.PutBatch(ctx, records); err != nil {
		return fmt.Errorf("commit %d records: %w", len(records), err)
	}

	if s.repo.sink != nil {
		if err := s.repo.sink.Publish(ctx, records); err != nil {
			s.repo.logger.Warn().Err(err).Int("records", len(records)).Msg("change sink publish failed")
			return fmt.Errorf("%w: %v", ErrPublish, err)
		}
	}

	return nil
}

// Discard drops every staged write.
func (s *Session) Discard() {
	s.reset()
}

func (s *Session) reset() {
	s.entries = make(map[entryKey]*entry)
	s.order = nil
}

// Fetch decodes one entity directly from a store, bypassing any session.
func Fetch[T any](ctx context.Context, store storage.EntityStore, kind domain.EntityKind, key string) (*T, error) {
	data, err := store.Get(ctx, kind, key)
	if err != nil {
		return nil, err
	}

	v := new(T)
	if err := json.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", kind, key, err)
	}
	return v, nil
}
