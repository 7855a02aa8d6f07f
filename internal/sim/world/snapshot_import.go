package world

import (
	"encoding/json"
	"fmt"

	"tickworld.ai/internal/persistence/snapshot"
	"tickworld.ai/internal/protocol"
	"tickworld.ai/internal/sim/chance"
	"tickworld.ai/internal/sim/geom"
	"tickworld.ai/internal/sim/knowledge"
	"tickworld.ai/internal/sim/schedule"
	"tickworld.ai/internal/sim/tasks"
	"tickworld.ai/internal/sim/terrain"
	"tickworld.ai/internal/sim/thing"
)

// ImportSnapshot resumes a world from a snapshot. The next step to run is the
// one after the snapshot's. Restored tasks are stalled, so their progress
// restarts on the first tick after resume.
func (w *World) ImportSnapshot(s snapshot.SnapshotV1) error {
	return w.importSnapshot(s, true)
}

// RestoreSnapshot loads a snapshot exactly, tasks included, so that a replay
// of the step journal reproduces the recorded digests.
func (w *World) RestoreSnapshot(s snapshot.SnapshotV1) error {
	return w.importSnapshot(s, false)
}

func (w *World) importSnapshot(s snapshot.SnapshotV1, resume bool) error {
	if s.Header.Version != snapshot.Version {
		return fmt.Errorf("unsupported snapshot version %d", s.Header.Version)
	}
	if len(s.Tuning) > 0 {
		t := w.tune
		if err := json.Unmarshal(s.Tuning, &t); err != nil {
			return fmt.Errorf("snapshot tuning: %w", err)
		}
		if err := t.Validate(); err != nil {
			return fmt.Errorf("snapshot tuning: %w", err)
		}
		w.applyTuning(t)
	} else if s.TickRateHz > 0 {
		t := w.tune
		t.TickRateHz = s.TickRateHz
		w.applyTuning(t)
	}

	things := thing.NewTable()
	for _, e := range s.Entities {
		th, err := importThing(e)
		if err != nil {
			return fmt.Errorf("entity %s: %w", e.ID, err)
		}
		if _, err := things.Insert(th); err != nil {
			return err
		}
	}

	pending, err := unmarshalOps(s.Pending)
	if err != nil {
		return fmt.Errorf("pending: %w", err)
	}
	backlog, err := unmarshalOps(s.Backlog)
	if err != nil {
		return fmt.Errorf("backlog: %w", err)
	}

	w.things = things
	w.queue = schedule.NewQueue()
	w.queue.Restore(pending)
	w.backlog = backlog
	w.runners = map[string]*tasks.Runner{}
	for _, rs := range s.Runners {
		st := tasks.RunnerState{Owner: rs.Owner, Next: rs.Next}
		for _, t := range rs.Tasks {
			st.Tasks = append(st.Tasks, tasks.TaskState{
				ID:       t.ID,
				Kind:     tasks.Kind(t.Kind),
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
		if resume {
			w.runners[rs.Owner] = tasks.ImportRunner(st, w.taskParams, w.refOf)
		} else {
			w.runners[rs.Owner] = tasks.RestoreRunner(st, w.taskParams, w.refOf)
		}
	}

	w.cfg.Seed = s.Seed
	w.trial = chance.NewSeeded(s.Seed)
	w.env.Trial = w.trial
	w.clock = s.Clock
	w.nextEntity = s.Counters.NextEntity
	w.nextSerial = s.Counters.NextSerial
	w.step.Store(s.Header.Step + 1)
	return nil
}

func unmarshalOps(raw [][]byte) ([]protocol.Operation, error) {
	out := make([]protocol.Operation, 0, len(raw))
	for _, b := range raw {
		var op protocol.Operation
		if err := json.Unmarshal(b, &op); err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, nil
}

func importThing(e snapshot.EntityV1) (*thing.Thing, error) {
	th := &thing.Thing{ID: e.ID, Type: e.Type, Behavior: e.Behavior, Attrs: map[string]any{}}
	if len(e.Attrs) > 0 {
		if err := json.Unmarshal(e.Attrs, &th.Attrs); err != nil {
			return nil, err
		}
		if th.Attrs == nil {
			th.Attrs = map[string]any{}
		}
	}
	if len(e.Memory) > 0 {
		th.Memory = knowledge.New()
		if err := json.Unmarshal(e.Memory, th.Memory); err != nil {
			return nil, err
		}
	} else if e.Behavior == "character" {
		th.Memory = knowledge.New()
	}
	if e.Terrain != nil {
		g := terrain.NewGrid(e.Terrain.DefaultSurface)
		for _, c := range e.Terrain.Surfaces {
			g.SetSurface(float64(c.X), float64(c.Z), c.Code)
		}
		for _, c := range e.Terrain.Heights {
			g.SetHeight(float64(c.X), float64(c.Z), c.H)
		}
		for _, m := range e.Terrain.Mods {
			g.AddMod(&terrain.Mod{
				ID:     m.ID,
				Name:   m.Name,
				Type:   m.Type,
				Pos:    geom.PointFrom(m.Pos),
				Radius: m.Radius,
				Height: m.Height,
				Shape:  terrain.Shape{Type: m.ShapeType, Points: m.Points},
			})
		}
		th.Terrain = g
	}
	return th, nil
}
