package protocol

import "encoding/json"

// AsFloat converts any numeric attribute kind to float64.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// AsVec3 accepts the shapes a position takes on the wire and in memory.
func AsVec3(v any) ([3]float64, bool) {
	var out [3]float64
	switch p := v.(type) {
	case [3]float64:
		return p, true
	case []float64:
		if len(p) != 3 {
			return out, false
		}
		copy(out[:], p)
		return out, true
	case []any:
		if len(p) != 3 {
			return out, false
		}
		for i, c := range p {
			f, ok := AsFloat(c)
			if !ok {
				return out, false
			}
			out[i] = f
		}
		return out, true
	default:
		return out, false
	}
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []float64:
		out := make([]any, len(l))
		for i, x := range l {
			out[i] = x
		}
		return out, true
	case [3]float64:
		return []any{l[0], l[1], l[2]}, true
	case []string:
		out := make([]any, len(l))
		for i, x := range l {
			out[i] = x
		}
		return out, true
	case [][]float64:
		out := make([]any, len(l))
		for i, x := range l {
			out[i] = x
		}
		return out, true
	default:
		return nil, false
	}
}

func asEntity(v any) (Entity, bool) {
	switch e := v.(type) {
	case Entity:
		return e, true
	case *Entity:
		if e == nil {
			return Entity{}, false
		}
		return *e, true
	case map[string]any:
		return NewEntity("", e), true
	default:
		return Entity{}, false
	}
}

// ValueEqual compares two attribute values by kind: numbers numerically across
// int/float kinds, strings and bools exactly, nested entities and maps
// recursively, lists element-wise.
func ValueEqual(a, b any) bool {
	if af, ok := AsFloat(a); ok {
		bf, ok := AsFloat(b)
		return ok && af == bf
	}
	switch av := a.(type) {
	case nil:
		return b == nil
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	if ae, ok := asEntity(a); ok {
		be, ok := asEntity(b)
		return ok && ae.Equal(be)
	}
	if al, ok := asList(a); ok {
		bl, ok := asList(b)
		if !ok || len(al) != len(bl) {
			return false
		}
		for i := range al {
			if !ValueEqual(al[i], bl[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	case []float64:
		return append([]float64(nil), x...)
	case []string:
		return append([]string(nil), x...)
	case [][]float64:
		out := make([][]float64, len(x))
		for i, e := range x {
			out[i] = append([]float64(nil), e...)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = cloneValue(e)
		}
		return out
	case Entity:
		return x.Clone()
	default:
		return v
	}
}
