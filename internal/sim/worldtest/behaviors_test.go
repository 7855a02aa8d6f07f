package worldtest

import (
	"math"
	"testing"

	"tickworld.ai/internal/protocol"
	"tickworld.ai/internal/sim/tuning"
	world "tickworld.ai/internal/sim/world"
)

func newHarness(t *testing.T) *Harness {
	t.Helper()
	return NewHarness(t, world.WorldConfig{ID: "test", Seed: 7}, tuning.Defaults(), LoadCatalogs(t))
}

func TestSoilFeedsGrass(t *testing.T) {
	h := newHarness(t)
	soil := h.Spawn("soil", map[string]any{"loc": h.Root})
	grass := h.Spawn("grass", map[string]any{"loc": h.Root})
	h.Step()

	eat := protocol.NewOp("eat", soil, protocol.NewEntity("", map[string]any{
		"eat_type": "soil",
		"mass":     0.5,
		"pos":      []any{0.0, 0.0, 0.0},
	}))
	eat.From = grass
	h.Step(eat)

	g, _ := h.Entity(grass)
	if m, _ := g.Float("mass"); math.Abs(m-0.6) > 1e-9 {
		t.Fatalf("grass mass: got %v want 0.6", m)
	}
	s, _ := h.Entity(soil)
	if m, _ := s.Float("mass"); m != 10 {
		t.Fatalf("soil mass changed: %v", m)
	}
}

func TestGarmentDressesWearer(t *testing.T) {
	h := newHarness(t)
	tunic := h.Spawn("garment", map[string]any{"loc": h.Character})
	h.Step()
	h.Step(h.Act("wear", tunic))

	ch, _ := h.Entity(h.Character)
	guise, _ := ch.Get("guise")
	g, ok := guise.(map[string]any)
	if !ok {
		t.Fatalf("guise: %#v", guise)
	}
	mesh, _ := g["mesh"].(map[string]any)
	material, _ := g["material"].(map[string]any)
	if mesh["body"] != "tunic" || material["body"] != "wool" {
		t.Fatalf("guise: %#v", g)
	}
}

func TestScytheWearsAndMows(t *testing.T) {
	h := newHarness(t)
	scythe := h.Spawn("scythe", map[string]any{"loc": h.Character})
	h.Step()
	h.Step(h.Act("cut", scythe, protocol.NewEntity(h.Character, nil)))

	s, _ := h.Entity(scythe)
	if st, _ := s.Float("status"); math.Abs(st-0.99) > 1e-9 {
		t.Fatalf("scythe status: got %v want 0.99", st)
	}
	mowed := false
	for _, op := range h.LastObs().Ops {
		if op.Type == "mow" {
			mowed = true
		}
	}
	if !mowed {
		t.Fatalf("character did not observe the mow")
	}
}

func TestAppleFermentsThenRots(t *testing.T) {
	tune := tuning.Defaults()
	tune.AppleFermentSeconds = 1
	h := NewHarness(t, world.WorldConfig{ID: "test", Seed: 7}, tune, LoadCatalogs(t))
	apple := h.Spawn("apple", map[string]any{"loc": h.Root})
	h.Step()

	h.StepN(4)
	a, ok := h.Entity(apple)
	if !ok {
		t.Fatalf("apple rotted too early")
	}
	if alc, _ := a.Float("alcohol"); alc != 1 {
		t.Fatalf("alcohol: got %v want 1", alc)
	}
	h.StepN(4)
	if _, ok := h.Entity(apple); ok {
		t.Fatalf("apple should have rotted")
	}
}

func TestEatingAppleRemembersItsPlace(t *testing.T) {
	h := newHarness(t)
	apple := h.Spawn("apple", map[string]any{"loc": h.Root, "pos": []any{3.0, 0.0, 4.0}})
	h.Step()
	h.Step(h.Act("eat", apple))

	if _, ok := h.Entity(apple); ok {
		t.Fatalf("apple not consumed")
	}
	snap := h.W.ExportSnapshot(h.W.CurrentStep() - 1)
	for _, e := range snap.Entities {
		if e.ID == h.Character {
			if len(e.Memory) == 0 {
				t.Fatalf("character memory empty")
			}
			return
		}
	}
	t.Fatalf("character missing from snapshot")
}
