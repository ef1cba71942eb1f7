package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"perp-stats-engine/internal/domain"
	"perp-stats-engine/internal/storage"
)

// EntityStore implements storage.EntityStore on a JSONB table.
type EntityStore struct {
	pool *Pool
}

// NewEntityStore creates a new EntityStore.
func NewEntityStore(pool *Pool) *EntityStore {
	return &EntityStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EntityStore = (*EntityStore)(nil)

// Get returns the encoded entity or storage.ErrNotFound.
func (s *EntityStore) Get(ctx context.Context, kind domain.EntityKind, key string) ([]byte, error) {
	query := `SELECT data FROM entities WHERE kind = $1 AND key = $2`

	var data []byte
	err := s.pool.QueryRow(ctx, query, string(kind), key).Scan(&data)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get entity %s/%s: %w", kind, key, err)
	}
	return data, nil
}

// PutBatch upserts all records in one transaction.
func (s *EntityStore) PutBatch(ctx context.Context, records []storage.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := storage.ValidateRecords(records); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO entities (kind, key, data, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (kind, key) DO UPDATE
		SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
	`

	for _, r := range records {
		if _, err := tx.Exec(ctx, query, string(r.Kind), r.Key, r.Data); err != nil {
			return fmt.Errorf("upsert entity %s/%s: %w", r.Kind, r.Key, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// List returns every record of a kind in byte order of the key.
func (s *EntityStore) List(ctx context.Context, kind domain.EntityKind) ([]storage.Record, error) {
	query := `
		SELECT key, data
		FROM entities
		WHERE kind = $1
		ORDER BY key COLLATE "C" ASC
	`

	rows, err := s.pool.Query(ctx, query, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list entities %s: %w", kind, err)
	}
	defer rows.Close()

	return scanRecords(rows, kind)
}

// scanRecords scans (key, data) rows into records.
func scanRecords(rows pgx.Rows, kind domain.EntityKind) ([]storage.Record, error) {
	var records []storage.Record

	for rows.Next() {
		r := storage.Record{Kind: kind}
		if err := rows.Scan(&r.Key, &r.Data); err != nil {
			return nil, fmt.Errorf("scan entity row: %w", err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entity rows: %w", err)
	}

	return records, nil
}
