// Package knowledge is an entity's category-keyed memory. A category exists
// only while it holds at least one key; removing the last key drops the
// category so snapshots carry nothing for empty memories.
package knowledge

import (
	"encoding/json"
	"fmt"
	"sort"
)

type Category string

const (
	Place      Category = "place"
	Location   Category = "location"
	Goal       Category = "goal"
	Importance Category = "importance"
)

var categories = []Category{Place, Location, Goal, Importance}

func Valid(c Category) bool {
	for _, k := range categories {
		if k == c {
			return true
		}
	}
	return false
}

type Knowledge struct {
	m map[Category]map[string]any
}

func New() *Knowledge {
	return &Knowledge{m: map[Category]map[string]any{}}
}

func (k *Knowledge) Add(c Category, key string, value any) error {
	if !Valid(c) {
		return fmt.Errorf("knowledge: unknown category %q", c)
	}
	if k.m == nil {
		k.m = map[Category]map[string]any{}
	}
	d := k.m[c]
	if d == nil {
		d = map[string]any{}
		k.m[c] = d
	}
	d[key] = value
	return nil
}

func (k *Knowledge) Remove(c Category, key string) {
	d, ok := k.m[c]
	if !ok {
		return
	}
	delete(d, key)
	if len(d) == 0 {
		delete(k.m, c)
	}
}

func (k *Knowledge) Get(c Category, key string) (any, bool) {
	v, ok := k.m[c][key]
	return v, ok
}

func (k *Knowledge) Has(c Category) bool {
	_, ok := k.m[c]
	return ok
}

func (k *Knowledge) Len(c Category) int { return len(k.m[c]) }

// Categories lists the non-empty categories in declaration order.
func (k *Knowledge) Categories() []Category {
	var out []Category
	for _, c := range categories {
		if k.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

func (k *Knowledge) Empty() bool { return k == nil || len(k.m) == 0 }

func (k *Knowledge) Keys(c Category) []string {
	keys := make([]string, 0, len(k.m[c]))
	for key := range k.m[c] {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (k *Knowledge) MarshalJSON() ([]byte, error) {
	out := make(map[Category]map[string]any, len(k.m))
	for c, d := range k.m {
		out[c] = d
	}
	return json.Marshal(out)
}

func (k *Knowledge) UnmarshalJSON(b []byte) error {
	var in map[Category]map[string]any
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	k.m = map[Category]map[string]any{}
	for c, d := range in {
		for key, v := range d {
			if err := k.Add(c, key, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (k *Knowledge) String() string {
	b, _ := k.MarshalJSON()
	return "<know: " + string(b) + ">"
}
