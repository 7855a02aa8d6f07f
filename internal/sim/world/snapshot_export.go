package world

import (
	"encoding/json"
	"errors"
	"fmt"

	"tickworld.ai/internal/persistence/snapshot"
	"tickworld.ai/internal/protocol"
	"tickworld.ai/internal/sim/terrain"
	"tickworld.ai/internal/sim/thing"
)

func (w *World) ExportSnapshot(nowStep uint64) snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: w.cfg.ID,
			Step:    nowStep,
		},
		Seed:       w.cfg.Seed,
		TickRateHz: w.tune.TickRateHz,
		Clock:      w.clock,
		Counters: snapshot.CountersV1{
			NextEntity: w.nextEntity,
			NextSerial: w.nextSerial,
		},
	}
	snap.Tuning, _ = json.Marshal(w.tune)

	for _, th := range w.sortedThings() {
		e, err := exportThing(th)
		if err != nil {
			// The entity is still exported; whatever failed to encode is lost.
			w.logf("snapshot %d: %v", nowStep, err)
			w.audit(AuditFault, th.ID, nil, "snapshot: "+err.Error())
		}
		snap.Entities = append(snap.Entities, e)
	}
	for _, op := range w.queue.Pending() {
		snap.Pending = append(snap.Pending, w.marshalOp(nowStep, op))
	}
	for _, op := range w.backlog {
		snap.Backlog = append(snap.Backlog, w.marshalOp(nowStep, op))
	}
	for _, st := range w.runnerStates() {
		r := snapshot.RunnerV1{Owner: st.Owner, Next: st.Next}
		for _, t := range st.Tasks {
			r.Tasks = append(r.Tasks, snapshot.TaskV1{
				ID:       t.ID,
				Kind:     string(t.Kind),
				Owner:    t.Owner,
				Target:   t.Target,
				Tool:     t.Tool,
				Pos:      t.Pos,
				Rate:     t.Rate,
				Progress: t.Progress,
				Surface:  t.Surface,
				Serial:   t.Serial,
			})
		}
		snap.Runners = append(snap.Runners, r)
	}
	return snap
}

func (w *World) marshalOp(nowStep uint64, op protocol.Operation) []byte {
	b, err := json.Marshal(op)
	if err != nil {
		w.logf("snapshot %d: op %s to %s: %v", nowStep, op.Type, op.To, err)
	}
	return b
}

func exportThing(th *thing.Thing) (snapshot.EntityV1, error) {
	var errs []error
	e := snapshot.EntityV1{ID: th.ID, Type: th.Type, Behavior: th.Behavior}
	attrs, err := json.Marshal(th.Attrs)
	if err != nil {
		errs = append(errs, fmt.Errorf("entity %s attrs: %w", th.ID, err))
		attrs = []byte("{}")
	}
	e.Attrs = attrs
	if !th.Memory.Empty() {
		mem, err := json.Marshal(th.Memory)
		if err != nil {
			errs = append(errs, fmt.Errorf("entity %s memory: %w", th.ID, err))
		} else {
			e.Memory = mem
		}
	}
	if g, ok := th.Terrain.(*terrain.Grid); ok {
		t := &snapshot.TerrainV1{DefaultSurface: g.DefaultSurface}
		surfaces, heights := g.Cells()
		for _, c := range surfaces {
			t.Surfaces = append(t.Surfaces, snapshot.CellV1{X: c.X, Z: c.Z, Code: c.Value})
		}
		for _, c := range heights {
			t.Heights = append(t.Heights, snapshot.HeightV1{X: c.X, Z: c.Z, H: c.Value})
		}
		for _, m := range g.Mods() {
			t.Mods = append(t.Mods, snapshot.ModV1{
				ID:        m.ID,
				Name:      m.Name,
				Type:      m.Type,
				Pos:       m.Pos.Array(),
				Radius:    m.Radius,
				Height:    m.Height,
				ShapeType: m.Shape.Type,
				Points:    m.Shape.Points,
			})
		}
		e.Terrain = t
	}
	return e, errors.Join(errs...)
}
