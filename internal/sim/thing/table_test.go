package thing

import "testing"

func TestTable_RefDiesWithReferent(t *testing.T) {
	tab := NewTable()
	if _, err := tab.Insert(&Thing{ID: "oak"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	ref := tab.Ref("oak")
	if th, ok := ref.Get(); !ok || th.ID != "oak" {
		t.Fatalf("ref.Get=%v,%v", th, ok)
	}

	if !tab.Remove("oak") {
		t.Fatalf("remove failed")
	}
	if ref.Alive() {
		t.Fatalf("ref still alive after remove")
	}

	// The freed slot is reused; the stale handle must not see the newcomer.
	if _, err := tab.Insert(&Thing{ID: "ash"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if h, _ := tab.HandleOf("ash"); h.Index != ref.h.Index {
		t.Fatalf("expected slot reuse: %d vs %d", h.Index, ref.h.Index)
	}
	if th, ok := ref.Get(); ok {
		t.Fatalf("stale ref resolved to %q", th.ID)
	}
}

func TestTable_InsertRejects(t *testing.T) {
	tab := NewTable()
	if _, err := tab.Insert(&Thing{}); err == nil {
		t.Fatalf("expected error for empty id")
	}
	_, _ = tab.Insert(&Thing{ID: "a"})
	if _, err := tab.Insert(&Thing{ID: "a"}); err == nil {
		t.Fatalf("expected duplicate id error")
	}
	if (Ref{}).Alive() {
		t.Fatalf("zero ref alive")
	}
	if tab.Ref("nope").Alive() {
		t.Fatalf("unknown ref alive")
	}
}
