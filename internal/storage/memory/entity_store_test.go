package memory

import (
	"context"
	"errors"
	"testing"

	"perp-stats-engine/internal/domain"
	"perp-stats-engine/internal/storage"
)

func TestEntityStore_PutBatchAndGet(t *testing.T) {
	store := NewEntityStore()
	ctx := context.Background()

	err := store.PutBatch(ctx, []storage.Record{
		{Kind: domain.KindTradingStat, Key: "total", Data: []byte(`{"id":"total"}`)},
		{Kind: domain.KindOrderStat, Key: "total", Data: []byte(`{"id":"total","open_swap":1}`)},
	})
	if err != nil {
		t.Fatalf("PutBatch failed: %v", err)
	}

	got, err := store.Get(ctx, domain.KindOrderStat, "total")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != `{"id":"total","open_swap":1}` {
		t.Errorf("unexpected data: %s", got)
	}

	// kinds are separate namespaces
	got, err = store.Get(ctx, domain.KindTradingStat, "total")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != `{"id":"total"}` {
		t.Errorf("unexpected data: %s", got)
	}
}

func TestEntityStore_NotFound(t *testing.T) {
	store := NewEntityStore()

	_, err := store.Get(context.Background(), domain.KindOrder, "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestEntityStore_LastWriteWins(t *testing.T) {
	store := NewEntityStore()
	ctx := context.Background()

	err := store.PutBatch(ctx, []storage.Record{
		{Kind: domain.KindFastPrice, Key: "0xeth", Data: []byte(`1`)},
		{Kind: domain.KindFastPrice, Key: "0xeth", Data: []byte(`2`)},
	})
	if err != nil {
		t.Fatalf("PutBatch failed: %v", err)
	}

	got, _ := store.Get(ctx, domain.KindFastPrice, "0xeth")
	if string(got) != "2" {
		t.Errorf("Expected later record to win, got %s", got)
	}
	if n := store.Len(domain.KindFastPrice); n != 1 {
		t.Errorf("Expected 1 record, got %d", n)
	}
}

func TestEntityStore_InvalidBatchRejected(t *testing.T) {
	store := NewEntityStore()
	ctx := context.Background()

	err := store.PutBatch(ctx, []storage.Record{
		{Kind: domain.KindOrder, Key: "a", Data: []byte(`{}`)},
		{Kind: domain.KindOrder, Key: "", Data: []byte(`{}`)},
	})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Fatalf("Expected ErrInvalidInput, got %v", err)
	}

	// nothing from the rejected batch is visible
	if _, err := store.Get(ctx, domain.KindOrder, "a"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after rejected batch, got %v", err)
	}
}

func TestEntityStore_ListOrderedAndCopied(t *testing.T) {
	store := NewEntityStore()
	ctx := context.Background()

	_ = store.PutBatch(ctx, []storage.Record{
		{Kind: domain.KindOrder, Key: "b", Data: []byte(`"b"`)},
		{Kind: domain.KindOrder, Key: "a", Data: []byte(`"a"`)},
		{Kind: domain.KindOrder, Key: "c", Data: []byte(`"c"`)},
	})

	records, err := store.List(ctx, domain.KindOrder)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}
	for i, want := range []string{"a", "b", "c"} {
		if records[i].Key != want {
			t.Errorf("records[%d].Key = %s, want %s", i, records[i].Key, want)
		}
	}

	// mutating a returned slice must not leak into the store
	records[0].Data[1] = 'z'
	got, _ := store.Get(ctx, domain.KindOrder, "a")
	if string(got) != `"a"` {
		t.Errorf("store data mutated through List result: %s", got)
	}
}

func TestChangeSink_Publish(t *testing.T) {
	sink := NewChangeSink()
	ctx := context.Background()

	_ = sink.Publish(ctx, []storage.Record{{Kind: domain.KindOrder, Key: "a", Data: []byte(`1`)}})
	_ = sink.Publish(ctx, []storage.Record{{Kind: domain.KindOrder, Key: "b", Data: []byte(`2`)}})

	batches := sink.Batches()
	if len(batches) != 2 {
		t.Fatalf("Expected 2 batches, got %d", len(batches))
	}
	if batches[1][0].Key != "b" {
		t.Errorf("Expected second batch key b, got %s", batches[1][0].Key)
	}
}
