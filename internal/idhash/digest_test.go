package idhash

import (
	"context"
	"testing"

	"perp-stats-engine/internal/domain"
	"perp-stats-engine/internal/storage"
	"perp-stats-engine/internal/storage/memory"
)

func TestEventFingerprint(t *testing.T) {
	ev := &domain.Event{
		Kind:        domain.EventTransfer,
		BlockNumber: 10,
		TxHash:      "0xabc",
		LogIndex:    2,
		Transfer:    &domain.Transfer{Token: "0xg", From: "0x1", To: "0x2"},
	}

	got, err := EventFingerprint(ev)
	if err != nil {
		t.Fatalf("EventFingerprint: %v", err)
	}
	if len(got) != 64 {
		t.Errorf("EventFingerprint() length = %d, want 64", len(got))
	}

	// Verify determinism: same inputs should produce same output
	got2, _ := EventFingerprint(ev)
	if got != got2 {
		t.Errorf("EventFingerprint() not deterministic: %s != %s", got, got2)
	}

	changed := *ev
	changed.Transfer = &domain.Transfer{Token: "0xg", From: "0x1", To: "0x3"}
	got3, _ := EventFingerprint(&changed)
	if got == got3 {
		t.Error("different payloads should produce different fingerprints")
	}
}

func TestRecordHash_IncludesKindAndKey(t *testing.T) {
	data := []byte(`{"id":"total"}`)
	a := RecordHash(storage.Record{Kind: domain.KindTradingStat, Key: "total", Data: data})
	b := RecordHash(storage.Record{Kind: domain.KindOrderStat, Key: "total", Data: data})
	c := RecordHash(storage.Record{Kind: domain.KindTradingStat, Key: "other", Data: data})

	if a == b || a == c {
		t.Error("kind and key must contribute to the hash")
	}
}

func seed(t *testing.T, records ...storage.Record) *memory.EntityStore {
	t.Helper()
	store := memory.NewEntityStore()
	if err := store.PutBatch(context.Background(), records); err != nil {
		t.Fatalf("PutBatch: %v", err)
	}
	return store
}

func TestStateDigest(t *testing.T) {
	ctx := context.Background()
	r1 := storage.Record{Kind: domain.KindTradingStat, Key: "total", Data: []byte(`{"profit":"1"}`)}
	r2 := storage.Record{Kind: domain.KindOrderStat, Key: "total", Data: []byte(`{"open_swap":1}`)}

	// Insertion order does not matter
	d1, err := StateDigest(ctx, seed(t, r1, r2))
	if err != nil {
		t.Fatalf("StateDigest: %v", err)
	}
	d2, _ := StateDigest(ctx, seed(t, r2, r1))
	if d1 != d2 {
		t.Errorf("digest depends on insertion order: %s != %s", d1, d2)
	}

	r1b := r1
	r1b.Data = []byte(`{"profit":"2"}`)
	d3, _ := StateDigest(ctx, seed(t, r1b, r2))
	if d1 == d3 {
		t.Error("digest should change with record content")
	}

	// Restricting kinds ignores the others
	d4, _ := StateDigest(ctx, seed(t, r1b, r2), domain.KindOrderStat)
	d5, _ := StateDigest(ctx, seed(t, r1, r2), domain.KindOrderStat)
	if d4 != d5 {
		t.Error("kinds filter not applied")
	}
}

func TestDiff(t *testing.T) {
	a := map[string]string{"x/1": "h1", "x/2": "h2", "y/1": "h3"}
	b := map[string]string{"x/1": "h1", "x/2": "changed", "z/1": "h4"}

	got := Diff(a, b)
	want := []string{"x/2", "y/1", "z/1"}
	if len(got) != len(want) {
		t.Fatalf("Diff() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Diff() = %v, want %v", got, want)
		}
	}

	if len(Diff(a, a)) != 0 {
		t.Error("identical snapshots should not differ")
	}
}
