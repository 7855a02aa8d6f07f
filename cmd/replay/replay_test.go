package main

import (
	"errors"
	"strings"
	"testing"

	persistlog "tickworld.ai/internal/persistence/log"
	"tickworld.ai/internal/persistence/snapshot"
	"tickworld.ai/internal/protocol"
	"tickworld.ai/internal/sim/catalogs"
	"tickworld.ai/internal/sim/tuning"
	"tickworld.ai/internal/sim/world"
)

func newWorld(t *testing.T) *world.World {
	t.Helper()
	cats, err := catalogs.Load("../../configs")
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	w, err := world.New(world.WorldConfig{ID: "W1", Seed: 9}, tuning.Defaults(), cats, nil)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	return w
}

// record runs a world with a dig in progress, journals every step and
// snapshots it partway.
func record(t *testing.T, dir string, corrupt bool) snapshot.SnapshotV1 {
	t.Helper()
	w := newWorld(t)
	for _, s := range []struct {
		typ, id string
		attrs   map[string]any
	}{
		{"world", "world", nil},
		{"character", "char", map[string]any{"loc": "world", "pos": []any{0.0, 0.0, 0.0}}},
		{"shovel", "shovel", map[string]any{"loc": "char"}},
		{"house", "house", map[string]any{"loc": "world"}},
	} {
		if _, err := w.SpawnWithID(s.typ, s.id, s.attrs); err != nil {
			t.Fatalf("spawn: %v", err)
		}
	}
	l := persistlog.NewStepLogger(dir)
	w.SetStepLogger(l)

	var snap snapshot.SnapshotV1
	for i := 0; i < 120; i++ {
		var in []protocol.Operation
		if i == 2 {
			cut := protocol.NewOp("cut", "shovel", protocol.NewEntity("world", map[string]any{"pos": []any{2.0, 0.0, 2.0}}))
			cut.From = "char"
			in = append(in, cut)
		}
		var retune *tuning.Tuning
		if i == 40 {
			tn := tuning.Defaults()
			tn.BasicTickSeconds = 1
			retune = &tn
		}
		if corrupt && i == 90 {
			w.SetStepLogger(corruptLogger{l})
		}
		w.StepOnceTuned(in, retune)
		if i == 30 {
			snap = w.ExportSnapshot(w.CurrentStep() - 1)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return snap
}

type corruptLogger struct{ l *persistlog.StepLogger }

func (c corruptLogger) WriteStep(e world.StepLogEntry) error {
	e.Digest = "bogus"
	return c.l.WriteStep(e)
}

func TestReplayVerifiesDigests(t *testing.T) {
	dir := t.TempDir()
	snap := record(t, dir, false)

	w := newWorld(t)
	if err := w.RestoreSnapshot(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	checked, err := replay(w, dir, 0, 0)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if checked != 89 {
		t.Fatalf("checked=%d want 89", checked)
	}
}

func TestReplayStopsAtToStep(t *testing.T) {
	dir := t.TempDir()
	snap := record(t, dir, false)

	w := newWorld(t)
	_ = w.RestoreSnapshot(snap)
	checked, err := replay(w, dir, 0, 50)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if checked != 20 {
		t.Fatalf("checked=%d want 20", checked)
	}
}

func TestReplayDetectsMismatch(t *testing.T) {
	dir := t.TempDir()
	snap := record(t, dir, true)

	w := newWorld(t)
	_ = w.RestoreSnapshot(snap)
	_, err := replay(w, dir, 0, 0)
	if err == nil || !strings.Contains(err.Error(), "digest mismatch at step 90") {
		t.Fatalf("err=%v", err)
	}
}

func TestReplayWithoutJournal(t *testing.T) {
	w := newWorld(t)
	if _, err := replay(w, t.TempDir(), 0, 0); !errors.Is(err, errNoSteps) {
		t.Fatalf("err=%v", err)
	}
}
