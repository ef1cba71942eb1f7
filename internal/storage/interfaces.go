package storage

import (
	"context"

	"perp-stats-engine/internal/domain"
)

// Record is one encoded entity addressed by (kind, key).
type Record struct {
	Kind domain.EntityKind
	Key  string
	Data []byte // JSON-encoded entity
}

// EntityStore is the key-value persistence layer for materialized entities.
// The engine is its only writer.
type EntityStore interface {
	// Get returns the encoded entity. Returns ErrNotFound if it does not exist.
	Get(ctx context.Context, kind domain.EntityKind, key string) ([]byte, error)

	// PutBatch upserts all records atomically. A later record for the same
	// (kind, key) in one batch wins.
	PutBatch(ctx context.Context, records []Record) error

	// List returns every record of a kind, ordered by key ASC.
	List(ctx context.Context, kind domain.EntityKind) ([]Record, error)
}

// ChangeSink receives every committed batch, after the store accepted it.
// Used for analytics mirrors; a sink failure does not roll back the store.
type ChangeSink interface {
	Publish(ctx context.Context, records []Record) error
}

// ValidateRecords checks kinds and keys before a batch reaches a backend.
func ValidateRecords(records []Record) error {
	for _, r := range records {
		if !r.Kind.IsValid() || r.Key == "" || len(r.Data) == 0 {
			return ErrInvalidInput
		}
	}
	return nil
}
