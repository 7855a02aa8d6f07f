package worldtest

import (
	"context"
	"testing"
	"time"

	"tickworld.ai/internal/persistence/snapshot"
	"tickworld.ai/internal/protocol"
	"tickworld.ai/internal/sim/tuning"
	world "tickworld.ai/internal/sim/world"
)

func TestRunLoopServesSubmitStateAndSnapshot(t *testing.T) {
	tune := tuning.Defaults()
	tune.TickRateHz = 50
	w, err := world.New(world.WorldConfig{ID: "W1", Seed: 42}, tune, LoadCatalogs(t), nil)
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	if _, err := w.SpawnWithID("world", "world", nil); err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if _, err := w.SpawnWithID("character", "char", map[string]any{"loc": "world"}); err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if _, err := w.SpawnWithID("acorn", "acorn", map[string]any{"loc": "world"}); err != nil {
		t.Fatalf("spawn: %v", err)
	}
	sink := make(chan snapshot.SnapshotV1, 1)
	w.SetSnapshotSink(sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	eat := protocol.NewOp("eat", "acorn")
	eat.From = "char"
	if err := w.Submit(eat); err != nil {
		t.Fatalf("submit: %v", err)
	}

	callCtx, callCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer callCancel()

	deadline := time.Now().Add(2 * time.Second)
	for {
		st, err := w.State(callCtx)
		if err != nil {
			t.Fatalf("state: %v", err)
		}
		gone := true
		for _, e := range st.Entities {
			if e.ID == "acorn" {
				gone = false
			}
		}
		if gone {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("acorn was never eaten")
		}
		time.Sleep(10 * time.Millisecond)
	}

	step, err := w.RequestSnapshot(callCtx)
	if err != nil {
		t.Fatalf("request snapshot: %v", err)
	}
	select {
	case snap := <-sink:
		if snap.Header.Step != step {
			t.Fatalf("snapshot step: got %d want %d", snap.Header.Step, step)
		}
		if snap.Header.WorldID != "W1" {
			t.Fatalf("snapshot world: %q", snap.Header.WorldID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no snapshot delivered")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("world.Run did not exit")
	}
}
