package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/go-redis/redis/v8"

	"perp-stats-engine/internal/domain"
	"perp-stats-engine/internal/storage"
)

// DefaultPrefix namespaces entity hashes.
const DefaultPrefix = "perp"

// EntityStore implements storage.EntityStore with one hash per entity kind.
type EntityStore struct {
	client *Client
	prefix string
}

// NewEntityStore creates a new EntityStore. An empty prefix uses DefaultPrefix.
func NewEntityStore(client *Client, prefix string) *EntityStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &EntityStore{client: client, prefix: prefix}
}

// Compile-time interface check.
var _ storage.EntityStore = (*EntityStore)(nil)

func (s *EntityStore) hashKey(kind domain.EntityKind) string {
	return s.prefix + ":" + string(kind)
}

// Get returns the encoded entity or storage.ErrNotFound.
func (s *EntityStore) Get(ctx context.Context, kind domain.EntityKind, key string) ([]byte, error) {
	data, err := s.client.HGet(ctx, s.hashKey(kind), key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("hget %s/%s: %w", kind, key, err)
	}
	return data, nil
}

// PutBatch writes all records in one MULTI/EXEC transaction.
func (s *EntityStore) PutBatch(ctx context.Context, records []storage.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := storage.ValidateRecords(records); err != nil {
		return err
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, r := range records {
			pipe.HSet(ctx, s.hashKey(r.Kind), r.Key, r.Data)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("exec batch: %w", err)
	}
	return nil
}

// List returns every record of a kind, ordered by key ASC.
func (s *EntityStore) List(ctx context.Context, kind domain.EntityKind) ([]storage.Record, error) {
	all, err := s.client.HGetAll(ctx, s.hashKey(kind)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", kind, err)
	}

	records := make([]storage.Record, 0, len(all))
	for key, data := range all {
		records = append(records, storage.Record{Kind: kind, Key: key, Data: []byte(data)})
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Key < records[j].Key
	})

	return records, nil
}
