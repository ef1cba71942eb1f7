// Package idhash computes deterministic identities for events and digests of
// materialized state.
package idhash

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"perp-stats-engine/internal/domain"
	"perp-stats-engine/internal/storage"
)

// EventFingerprint computes SHA256 over the canonical JSON encoding of an event.
// Two deliveries with the same ID but different fingerprints carry conflicting content.
// Returns hex-encoded hash (64 characters).
func EventFingerprint(ev *domain.Event) (string, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("encode event %s: %w", ev.ID(), err)
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// RecordHash computes SHA256(kind|key|data).
func RecordHash(r storage.Record) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|", r.Kind, r.Key)
	h.Write(r.Data)
	return hex.EncodeToString(h.Sum(nil))
}

// EntityID names a record as kind/key.
func EntityID(kind domain.EntityKind, key string) string {
	return string(kind) + "/" + key
}

// Snapshot maps EntityID to RecordHash for every record of the given kinds.
// No kinds means all of domain.EntityKinds.
func Snapshot(ctx context.Context, store storage.EntityStore, kinds ...domain.EntityKind) (map[string]string, error) {
	if len(kinds) == 0 {
		kinds = domain.EntityKinds
	}

	out := make(map[string]string)
	for _, kind := range kinds {
		records, err := store.List(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", kind, err)
		}
		for _, r := range records {
			out[EntityID(r.Kind, r.Key)] = RecordHash(r)
		}
	}
	return out, nil
}

// Digest folds a snapshot into one hex hash. Entries are taken in EntityID order.
func Digest(snapshot map[string]string) string {
	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	h := sha256.New()
	for _, id := range ids {
		fmt.Fprintf(h, "%s=%s\n", id, snapshot[id])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// StateDigest is Digest(Snapshot(...)).
func StateDigest(ctx context.Context, store storage.EntityStore, kinds ...domain.EntityKind) (string, error) {
	snap, err := Snapshot(ctx, store, kinds...)
	if err != nil {
		return "", err
	}
	return Digest(snap), nil
}

// Diff returns the sorted EntityIDs that differ between two snapshots,
// including entities present in only one of them.
func Diff(a, b map[string]string) []string {
	var out []string
	for id, ha := range a {
		if hb, ok := b[id]; !ok || ha != hb {
			out = append(out, id)
		}
	}
	for id := range b {
		if _, ok := a[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
