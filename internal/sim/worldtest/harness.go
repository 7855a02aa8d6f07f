package worldtest

import (
	"encoding/json"
	"testing"

	"tickworld.ai/internal/protocol"
	"tickworld.ai/internal/sim/catalogs"
	"tickworld.ai/internal/sim/tuning"
	world "tickworld.ai/internal/sim/world"
)

// Harness drives a world step by step from a test, watching one character.
type Harness struct {
	T testing.TB
	W *world.World

	Root      string
	Character string

	obs     chan []byte
	lastObs protocol.ObsMsg
}

func NewHarness(t testing.TB, cfg world.WorldConfig, tune tuning.Tuning, cats *catalogs.Catalogs) *Harness {
	t.Helper()
	w, err := world.New(cfg, tune, cats, nil)
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	h := &Harness{T: t, W: w, Root: "world", Character: "char", obs: make(chan []byte, 1)}
	h.SpawnWithID("world", h.Root, nil)
	h.SpawnWithID("character", h.Character, map[string]any{"loc": h.Root, "pos": []any{0.0, 0.0, 0.0}})
	w.ObserveNow(world.ObserverJoin{SessionID: "harness", EntityID: h.Character, Out: h.obs})
	h.Step()
	return h
}

// LoadCatalogs reads the repository catalogs relative to this package.
func LoadCatalogs(t testing.TB) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return cats
}

func (h *Harness) Spawn(typ string, attrs map[string]any) string {
	h.T.Helper()
	return h.SpawnWithID(typ, "", attrs)
}

func (h *Harness) SpawnWithID(typ, id string, attrs map[string]any) string {
	h.T.Helper()
	got, err := h.W.SpawnWithID(typ, id, attrs)
	if err != nil {
		h.T.Fatalf("spawn %s: %v", typ, err)
	}
	return got
}

// Step runs one world step with the given inputs and returns the character's
// observation for it.
func (h *Harness) Step(inputs ...protocol.Operation) protocol.ObsMsg {
	h.T.Helper()
	h.W.StepOnce(inputs)
	select {
	case b := <-h.obs:
		var msg protocol.ObsMsg
		if err := json.Unmarshal(b, &msg); err != nil {
			h.T.Fatalf("decode obs: %v", err)
		}
		h.lastObs = msg
	default:
		h.T.Fatalf("no observation after step")
	}
	return h.lastObs
}

// StepN runs n empty steps and returns every operation the character saw.
func (h *Harness) StepN(n int) []protocol.Operation {
	h.T.Helper()
	var seen []protocol.Operation
	for i := 0; i < n; i++ {
		seen = append(seen, h.Step().Ops...)
	}
	return seen
}

func (h *Harness) LastObs() protocol.ObsMsg { return h.lastObs }

// Act builds an operation sent by the character.
func (h *Harness) Act(typ, to string, args ...protocol.Entity) protocol.Operation {
	op := protocol.NewOp(typ, to, args...)
	op.From = h.Character
	return op
}

func (h *Harness) Entity(id string) (protocol.Entity, bool) {
	return h.W.DebugEntity(id)
}

// OfType lists live entities of typ, sorted by id.
func (h *Harness) OfType(typ string) []protocol.Entity {
	h.T.Helper()
	var out []protocol.Entity
	for _, id := range h.ids() {
		e, ok := h.W.DebugEntity(id)
		if got, _ := e.Str("type"); ok && got == typ {
			out = append(out, e)
		}
	}
	return out
}

func (h *Harness) ids() []string {
	snap := h.W.ExportSnapshot(h.W.CurrentStep())
	out := make([]string, 0, len(snap.Entities))
	for _, e := range snap.Entities {
		out = append(out, e.ID)
	}
	return out
}
