package world

import (
	"fmt"
	"math"

	"tickworld.ai/internal/protocol"
	"tickworld.ai/internal/sim/behaviors"
	"tickworld.ai/internal/sim/geom"
	"tickworld.ai/internal/sim/knowledge"
	"tickworld.ai/internal/sim/terrain"
	"tickworld.ai/internal/sim/thing"
)

// Spawn creates an entity of a catalog type and queues its setup operation.
// Call it before Run or from the world loop goroutine.
func (w *World) Spawn(typ string, attrs map[string]any) (string, error) {
	return w.SpawnWithID(typ, "", attrs)
}

func (w *World) SpawnWithID(typ, id string, attrs map[string]any) (string, error) {
	th, err := w.spawn(typ, id, attrs)
	if err != nil {
		return "", err
	}
	w.backlog = append(w.backlog, setupOp(th.ID))
	return th.ID, nil
}

func setupOp(id string) protocol.Operation {
	op := protocol.NewOp("setup", id)
	op.From = id
	return op
}

func (w *World) newEntityID(typ string) string {
	for {
		w.nextEntity++
		id := fmt.Sprintf("%s_%d", typ, w.nextEntity)
		if _, ok := w.things.Lookup(id); !ok {
			return id
		}
	}
}

func (w *World) spawn(typ, id string, attrs map[string]any) (*thing.Thing, error) {
	if typ == "" {
		return nil, fmt.Errorf("spawn: empty type")
	}
	behavior := behaviors.Thing
	def, known := w.catalogs.Types.Get(typ)
	if known {
		behavior = def.Behavior
	}
	if id == "" {
		id = w.newEntityID(typ)
	}

	merged := map[string]any{}
	for k, v := range protocol.NewEntity("", def.Attrs).Clone().Attrs {
		merged[k] = v
	}
	for k, v := range attrs {
		if k == "id" || k == "type" {
			continue
		}
		merged[k] = v
	}
	if def.Task != "" {
		if _, ok := merged["task"]; !ok {
			merged["task"] = def.Task
		}
	}

	th := &thing.Thing{ID: id, Type: typ, Behavior: behavior, Attrs: merged}
	if def.Terrain {
		th.Terrain = terrain.NewGrid(w.tune.Terrain.DefaultSurface)
	}
	if behavior == behaviors.Character {
		th.Memory = knowledge.New()
	}
	if _, err := w.things.Insert(th); err != nil {
		return nil, err
	}
	if tm, ok := merged["terrainmod"].(map[string]any); ok {
		w.registerMod(th, tm)
	}
	reason := ""
	if !known {
		reason = "type not in catalog"
	}
	w.audit(AuditCreated, th.ID, nil, reason)
	return th, nil
}

// parentGrid is the in-memory terrain of th's parent, if it has one.
func (w *World) parentGrid(th *thing.Thing) (*terrain.Grid, bool) {
	parent, ok := w.things.Lookup(th.Parent())
	if !ok {
		return nil, false
	}
	g, ok := parent.Terrain.(*terrain.Grid)
	return g, ok
}

func (w *World) registerMod(th *thing.Thing, tm map[string]any) {
	g, ok := w.parentGrid(th)
	if !ok {
		return
	}
	height, _ := protocol.AsFloat(tm["height"])
	mod := &terrain.Mod{
		ID:     th.ID,
		Name:   th.Str("name"),
		Pos:    th.Pos(),
		Height: height,
	}
	mod.Type, _ = tm["type"].(string)
	if shape, ok := tm["shape"].(map[string]any); ok {
		mod.Shape.Type, _ = shape["type"].(string)
		if pts, ok := shape["points"].([]any); ok {
			for _, p := range pts {
				xy, ok := p.([]any)
				if !ok || len(xy) != 2 {
					continue
				}
				x, _ := protocol.AsFloat(xy[0])
				z, _ := protocol.AsFloat(xy[1])
				mod.Shape.Points = append(mod.Shape.Points, [2]float64{x, z})
			}
		}
	}
	for _, p := range mod.Shape.Points {
		mod.Radius = math.Max(mod.Radius, math.Hypot(p[0], p[1]))
	}
	g.AddMod(mod)
}

func (w *World) destroy(th *thing.Thing, reason string) {
	if g, ok := w.parentGrid(th); ok {
		g.RemoveMod(th.ID)
	}
	delete(w.runners, th.ID)
	w.things.Remove(th.ID)
	w.audit(AuditDestroyed, th.ID, nil, reason)
}

// defaultOp is what the world itself does with an operation the entity's
// behavior did not block.
func (w *World) defaultOp(self *thing.Thing, op protocol.Operation) protocol.OpList {
	switch op.Type {
	case "set":
		w.applySet(self, op)
	case "create":
		return w.applyCreate(self, op)
	case "nourish":
		if arg, err := op.Arg(0); err == nil {
			if m, ok := arg.Float("mass"); ok {
				self.Set("mass", self.Float("mass")+m)
			}
		}
	case "update":
		w.applyUpdate(self)
	}
	return nil
}

func (w *World) applySet(self *thing.Thing, op protocol.Operation) {
	arg, err := op.Arg(0)
	if err != nil {
		return
	}
	for _, k := range arg.Keys() {
		if k == "type" {
			continue
		}
		v, _ := arg.Get(k)
		self.Set(k, v)
	}
	if st, ok := protocol.AsFloat(self.Attrs["status"]); ok && st < 0 {
		w.destroy(self, "status below zero")
	}
}

func (w *World) applyCreate(parent *thing.Thing, op protocol.Operation) protocol.OpList {
	arg, err := op.Arg(0)
	if err != nil {
		w.audit(AuditDropped, parent.ID, &op, err.Error())
		return nil
	}
	typ, _ := arg.Str("type")
	if typ == "" {
		typ = behaviors.Thing
	}
	attrs := arg.Clone().Attrs
	if attrs == nil {
		attrs = map[string]any{}
	}
	if _, ok := attrs["loc"]; !ok {
		attrs["loc"] = parent.ID
	}
	th, err := w.spawn(typ, "", attrs)
	if err != nil {
		w.audit(AuditDropped, parent.ID, &op, err.Error())
		return nil
	}
	return protocol.Ops(setupOp(th.ID))
}

// applyUpdate copies an amended terrain modification back into the entity
// that owns it.
func (w *World) applyUpdate(self *thing.Thing) {
	tm, ok := self.Attrs["terrainmod"].(map[string]any)
	if !ok {
		return
	}
	g, ok := w.parentGrid(self)
	if !ok {
		return
	}
	for _, m := range g.Mods() {
		if m.ID != self.ID {
			continue
		}
		cp := make(map[string]any, len(tm))
		for k, v := range tm {
			cp[k] = v
		}
		cp["height"] = m.Height
		self.Set("terrainmod", cp)
		return
	}
}

// DebugEntity returns the message form of a live entity.
func (w *World) DebugEntity(id string) (protocol.Entity, bool) {
	th, ok := w.things.Lookup(id)
	if !ok {
		return protocol.Entity{}, false
	}
	return th.Snapshot(), true
}

func (w *World) DebugTerrain(id string) (*terrain.Grid, bool) {
	th, ok := w.things.Lookup(id)
	if !ok {
		return nil, false
	}
	g, ok := th.Terrain.(*terrain.Grid)
	return g, ok
}

func (w *World) DebugSetPos(id string, p geom.Point3) bool {
	th, ok := w.things.Lookup(id)
	if !ok {
		return false
	}
	th.Set("pos", p.Slice())
	return true
}
