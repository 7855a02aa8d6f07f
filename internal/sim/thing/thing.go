// Package thing holds live entities and the generation-checked table that
// resolves weak references to them.
package thing

import (
	"tickworld.ai/internal/protocol"
	"tickworld.ai/internal/sim/geom"
	"tickworld.ai/internal/sim/knowledge"
	"tickworld.ai/internal/sim/terrain"
)

// Thing is a live entity. Only its own handlers mutate Attrs; everything else
// reaches it through operations.
type Thing struct {
	ID       string
	Type     string
	Behavior string
	Attrs    map[string]any

	// Optional properties.
	Terrain terrain.Terrain
	Memory  *knowledge.Knowledge
}

func (t *Thing) Float(name string) float64 {
	f, _ := protocol.AsFloat(t.Attrs[name])
	return f
}

func (t *Thing) Str(name string) string {
	s, _ := t.Attrs[name].(string)
	return s
}

func (t *Thing) Set(name string, v any) {
	if t.Attrs == nil {
		t.Attrs = map[string]any{}
	}
	t.Attrs[name] = v
}

// Parent is the id of the entity this one is located in ("" at the root).
func (t *Thing) Parent() string { return t.Str("loc") }

func (t *Thing) Pos() geom.Point3 {
	p, _ := protocol.AsVec3(t.Attrs["pos"])
	return geom.PointFrom(p)
}

// Snapshot is the full message form of the entity.
func (t *Thing) Snapshot() protocol.Entity {
	e := protocol.NewEntity(t.ID, t.Attrs).Clone()
	e.Set("type", t.Type)
	return e
}
