package protocol

import (
	"encoding/json"
	"sort"
)

// Entity is the message form of an entity: an optional id plus a sparse set of
// attributes. Only the attributes a sender wants to communicate are present;
// an absent attribute is not the same as a zero one.
type Entity struct {
	ID    string
	Attrs map[string]any
}

func NewEntity(id string, attrs map[string]any) Entity {
	e := Entity{ID: id}
	for k, v := range attrs {
		e.Set(k, v)
	}
	return e
}

func (e Entity) Get(name string) (any, bool) {
	if name == "id" {
		return e.ID, e.ID != ""
	}
	v, ok := e.Attrs[name]
	return v, ok
}

func (e Entity) Has(name string) bool {
	_, ok := e.Get(name)
	return ok
}

// Float returns a numeric attribute regardless of its stored numeric kind.
func (e Entity) Float(name string) (float64, bool) {
	v, ok := e.Attrs[name]
	if !ok {
		return 0, false
	}
	return AsFloat(v)
}

func (e Entity) Str(name string) (string, bool) {
	v, ok := e.Get(name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (e Entity) Vec3(name string) ([3]float64, bool) {
	v, ok := e.Attrs[name]
	if !ok {
		return [3]float64{}, false
	}
	return AsVec3(v)
}

func (e *Entity) Set(name string, v any) {
	if name == "id" {
		if s, ok := v.(string); ok {
			e.ID = s
		}
		return
	}
	if e.Attrs == nil {
		e.Attrs = map[string]any{}
	}
	e.Attrs[name] = v
}

func (e *Entity) Del(name string) {
	delete(e.Attrs, name)
}

// Keys returns the attribute names in sorted order.
func (e Entity) Keys() []string {
	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (e Entity) Clone() Entity {
	out := Entity{ID: e.ID}
	if e.Attrs != nil {
		out.Attrs = make(map[string]any, len(e.Attrs))
		for k, v := range e.Attrs {
			out.Attrs[k] = cloneValue(v)
		}
	}
	return out
}

// Equal compares by id when both sides carry one, otherwise attribute by
// attribute with kind-specific value equality.
func (e Entity) Equal(o Entity) bool {
	if e.ID != "" && o.ID != "" {
		return e.ID == o.ID
	}
	if e.ID != o.ID || len(e.Attrs) != len(o.Attrs) {
		return false
	}
	for k, v := range e.Attrs {
		ov, ok := o.Attrs[k]
		if !ok || !ValueEqual(v, ov) {
			return false
		}
	}
	return true
}

// MarshalJSON writes the flat wire form: {"id":"a1","mass":3}.
func (e Entity) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(e.Attrs)+1)
	for k, v := range e.Attrs {
		m[k] = v
	}
	if e.ID != "" {
		m["id"] = e.ID
	}
	return json.Marshal(m)
}

func (e *Entity) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*e = Entity{}
	for k, v := range m {
		e.Set(k, v)
	}
	return nil
}
