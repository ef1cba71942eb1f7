package replay

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"perp-stats-engine/internal/domain"
)

// collectingEngine collects events for verification.
type collectingEngine struct {
	events []*domain.Event
	failOn string
}

func (e *collectingEngine) OnEvent(_ context.Context, event *domain.Event) error {
	if e.failOn != "" && event.ID() == e.failOn {
		return errors.New("engine failure")
	}
	e.events = append(e.events, event)
	return nil
}

func transfer(block int64, tx, log int, hash string) *domain.Event {
	return &domain.Event{
		Kind:        domain.EventTransfer,
		BlockNumber: block,
		TxIndex:     tx,
		LogIndex:    log,
		TxHash:      hash,
		Transfer:    &domain.Transfer{Token: "0xg", From: "0x1", To: "0x2"},
	}
}

func TestRunner_OrdersEventsDeterministically(t *testing.T) {
	events := []*domain.Event{
		transfer(300, 0, 0, "0x3"),
		transfer(100, 1, 0, "0x1b"),
		transfer(100, 0, 2, "0x1a"),
		transfer(200, 0, 0, "0x2"),
	}

	engine := &collectingEngine{}
	if err := NewRunner().Run(context.Background(), events, engine); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []string{"0x1a", "0x1b", "0x2", "0x3"}
	if len(engine.events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(engine.events))
	}
	for i, hash := range want {
		if engine.events[i].TxHash != hash {
			t.Errorf("event %d: expected %s, got %s", i, hash, engine.events[i].TxHash)
		}
	}

	// Input slice keeps its order
	if events[0].TxHash != "0x3" {
		t.Errorf("input slice was reordered")
	}
}

func TestRunner_Repeat(t *testing.T) {
	events := []*domain.Event{transfer(1, 0, 0, "0xa"), transfer(2, 0, 0, "0xb")}

	engine := &collectingEngine{}
	runner := &Runner{Repeat: 2}
	if err := runner.Run(context.Background(), events, engine); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	got := make([]string, 0, len(engine.events))
	for _, e := range engine.events {
		got = append(got, e.TxHash)
	}
	want := []string{"0xa", "0xa", "0xb", "0xb"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestRunner_EngineErrorStops(t *testing.T) {
	events := []*domain.Event{transfer(1, 0, 0, "0xa"), transfer(2, 0, 4, "0xb"), transfer(3, 0, 0, "0xc")}

	engine := &collectingEngine{failOn: "0xb:4"}
	err := NewRunner().Run(context.Background(), events, engine)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(engine.events) != 1 {
		t.Errorf("expected 1 processed event, got %d", len(engine.events))
	}
}

func TestRunner_OnErrorContinues(t *testing.T) {
	events := []*domain.Event{transfer(1, 0, 0, "0xa"), transfer(2, 0, 4, "0xb"), transfer(3, 0, 0, "0xc")}

	var skipped []string
	runner := NewRunner()
	runner.OnError = func(ev *domain.Event, err error) error {
		skipped = append(skipped, ev.ID())
		return nil
	}

	engine := &collectingEngine{failOn: "0xb:4"}
	if err := runner.Run(context.Background(), events, engine); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(engine.events) != 2 {
		t.Errorf("expected 2 processed events, got %d", len(engine.events))
	}
	if len(skipped) != 1 || skipped[0] != "0xb:4" {
		t.Errorf("unexpected skipped events: %v", skipped)
	}
}

func TestRunner_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := &collectingEngine{}
	err := NewRunner().Run(ctx, []*domain.Event{transfer(1, 0, 0, "0xa")}, engine)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(engine.events) != 0 {
		t.Errorf("expected no events, got %d", len(engine.events))
	}
}

func TestRunner_RunFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	log := `{"kind":"transfer","block_number":2,"tx_hash":"0xb","transfer":{"token":"0xg","from":"0x1","to":"0x2","amount":"1"}}
{"kind":"transfer","block_number":1,"tx_hash":"0xa","transfer":{"token":"0xg","from":"0x1","to":"0x2","amount":"1"}}
`
	if err := os.WriteFile(path, []byte(log), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	engine := &collectingEngine{}
	if err := NewRunner().RunFile(context.Background(), path, engine); err != nil {
		t.Fatalf("RunFile failed: %v", err)
	}
	if len(engine.events) != 2 || engine.events[0].TxHash != "0xa" {
		t.Fatalf("unexpected replay order: %+v", engine.events)
	}
}

func TestRunner_RunFileMissing(t *testing.T) {
	err := NewRunner().RunFile(context.Background(), filepath.Join(t.TempDir(), "none.jsonl"), &collectingEngine{})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
