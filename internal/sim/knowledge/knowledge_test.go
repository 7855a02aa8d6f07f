package knowledge

import (
	"encoding/json"
	"testing"
)

func TestKnowledge_RemovingLastKeyPrunesCategory(t *testing.T) {
	k := New()
	if err := k.Add(Location, "apple1", []float64{1, 0, 2}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := k.Add(Location, "apple2", []float64{3, 0, 4}); err != nil {
		t.Fatalf("add: %v", err)
	}
	k.Remove(Location, "apple1")
	if !k.Has(Location) || k.Len(Location) != 1 {
		t.Fatalf("location should keep one key, has=%v len=%d", k.Has(Location), k.Len(Location))
	}
	k.Remove(Location, "apple2")
	if k.Has(Location) {
		t.Fatalf("empty category was not pruned")
	}
	if !k.Empty() {
		t.Fatalf("knowledge should be empty")
	}

	// Removing from an absent category is a no-op.
	k.Remove(Goal, "eat")

	b, _ := json.Marshal(k)
	if string(b) != "{}" {
		t.Fatalf("empty knowledge marshals as %s", b)
	}
}

func TestKnowledge_RejectsUnknownCategory(t *testing.T) {
	k := New()
	if err := k.Add(Category("mood"), "x", 1); err == nil {
		t.Fatalf("expected unknown category error")
	}
}

func TestKnowledge_JSONOnlyCarriesNonEmpty(t *testing.T) {
	k := New()
	_ = k.Add(Goal, "eat", "apple")
	_ = k.Add(Importance, "eat", 3)
	k.Remove(Importance, "eat")

	b, err := json.Marshal(k)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Knowledge
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	cats := back.Categories()
	if len(cats) != 1 || cats[0] != Goal {
		t.Fatalf("categories=%v", cats)
	}
}
