package thing

import "fmt"

// Handle addresses a table slot. Gen must match the slot's current generation,
// so a handle to a removed entity never resolves to whatever reuses the slot.
type Handle struct {
	Index uint32
	Gen   uint32
}

type slot struct {
	gen   uint32
	thing *Thing
}

type Table struct {
	slots []slot
	free  []uint32
	byID  map[string]Handle
}

func NewTable() *Table {
	return &Table{byID: map[string]Handle{}}
}

func (t *Table) Insert(th *Thing) (Handle, error) {
	if th == nil || th.ID == "" {
		return Handle{}, fmt.Errorf("thing: insert without id")
	}
	if _, ok := t.byID[th.ID]; ok {
		return Handle{}, fmt.Errorf("thing: duplicate id %q", th.ID)
	}
	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		idx = uint32(len(t.slots))
		t.slots = append(t.slots, slot{gen: 1})
	}
	t.slots[idx].thing = th
	h := Handle{Index: idx, Gen: t.slots[idx].gen}
	t.byID[th.ID] = h
	return h, nil
}

func (t *Table) Get(h Handle) (*Thing, bool) {
	if int(h.Index) >= len(t.slots) {
		return nil, false
	}
	s := t.slots[h.Index]
	if s.gen != h.Gen || s.thing == nil {
		return nil, false
	}
	return s.thing, true
}

func (t *Table) Lookup(id string) (*Thing, bool) {
	h, ok := t.byID[id]
	if !ok {
		return nil, false
	}
	return t.Get(h)
}

func (t *Table) HandleOf(id string) (Handle, bool) {
	h, ok := t.byID[id]
	return h, ok
}

// Remove frees the slot and bumps its generation.
func (t *Table) Remove(id string) bool {
	h, ok := t.byID[id]
	if !ok {
		return false
	}
	delete(t.byID, id)
	s := &t.slots[h.Index]
	s.thing = nil
	s.gen++
	t.free = append(t.free, h.Index)
	return true
}

func (t *Table) Len() int { return len(t.byID) }

// Each visits live things in slot order.
func (t *Table) Each(fn func(*Thing)) {
	for _, s := range t.slots {
		if s.thing != nil {
			fn(s.thing)
		}
	}
}

// Ref resolves id to a weak reference. Unknown ids give an empty Ref.
func (t *Table) Ref(id string) Ref {
	h, ok := t.byID[id]
	if !ok {
		return Ref{ID: id}
	}
	return Ref{ID: id, h: h, table: t}
}

// Ref is a weak reference: it never keeps its referent alive and resolves to
// nothing once the referent is removed.
type Ref struct {
	ID    string
	h     Handle
	table *Table
}

func (r Ref) Get() (*Thing, bool) {
	if r.table == nil {
		return nil, false
	}
	return r.table.Get(r.h)
}

func (r Ref) Alive() bool {
	_, ok := r.Get()
	return ok
}
