// Package tasks implements resumable, tick-driven units of work (dig, delve)
// owned by an entity and aimed at a weakly referenced target.
package tasks

import (
	"errors"
	"fmt"

	"tickworld.ai/internal/protocol"
	"tickworld.ai/internal/sim/geom"
	"tickworld.ai/internal/sim/schedule"
	"tickworld.ai/internal/sim/thing"
	"tickworld.ai/internal/sim/tuning"
)

type Kind string

const (
	KindDig   Kind = "dig"
	KindDelve Kind = "delve"
)

type Status int

const (
	Active Status = iota
	Irrelevant
)

func (s Status) String() string {
	if s == Irrelevant {
		return "irrelevant"
	}
	return "active"
}

var (
	ErrUnknownSurface = errors.New("unknown surface")
	ErrUnknownKind    = errors.New("unknown task kind")
)

// progressEpsilon absorbs float accumulation so ten 0.1 increments complete.
const progressEpsilon = 1e-9

// Params tunes one task kind. Rate is Increment/RatePeriod; ticks are
// rescheduled every TickPeriod.
type Params struct {
	Increment  float64
	RatePeriod float64
	TickPeriod float64
	MinRate    float64
	Materials  map[int]string
}

func ParamsFrom(t tuning.TaskTuning) Params {
	m := make(map[int]string, len(t.Materials))
	for k, v := range t.Materials {
		m[k] = v
	}
	return Params{
		Increment:  t.Increment,
		RatePeriod: t.RatePeriod,
		TickPeriod: t.TickPeriod,
		MinRate:    t.MinRate,
		Materials:  m,
	}
}

// Lookup binds an id to a weak reference; thing.Table.Ref satisfies it.
type Lookup func(id string) thing.Ref

type Task struct {
	ID     string
	Kind   Kind
	Params Params

	Owner  thing.Ref
	Target thing.Ref
	Tool   string
	Pos    geom.Point3

	Rate     float64
	Progress float64
	Status   Status
	Surface  int
	Serial   int64 // ticks processed
}

func New(id string, kind Kind, p Params) *Task {
	return &Task{ID: id, Kind: kind, Params: p}
}

// Activate binds the task from the cut that starts it. It does not schedule
// anything; the runner invokes the first tick.
func (t *Task) Activate(op protocol.Operation, lookup Lookup) error {
	arg, err := op.Arg(0)
	if err != nil {
		return err
	}
	if arg.ID == "" {
		return fmt.Errorf("%s: target id: %w", op.Type, protocol.ErrMissingArgument)
	}
	pos, ok := arg.Vec3("pos")
	if !ok {
		return fmt.Errorf("%s: target pos: %w", op.Type, protocol.ErrMissingArgument)
	}
	t.Target = lookup(arg.ID)
	t.Owner = lookup(op.From)
	t.Tool = op.To
	t.Pos = geom.PointFrom(pos)
	return nil
}

func (t *Task) Irrelevant() { t.Status = Irrelevant }

// Stall drops the rate below any threshold so the next tick restarts
// progress from zero.
func (t *Task) Stall() { t.Rate = 0 }

func (t *Task) nextTick(ownerID string) protocol.Operation {
	return schedule.TaskTick(ownerID, t.ID, t.Params.TickPeriod)
}

// Tick advances the task by one delivered tick. A vanished target or owner
// makes the task irrelevant; so does a surface the task cannot work, which is
// also returned as an error for the caller to record.
func (t *Task) Tick() (protocol.OpList, error) {
	if t.Status == Irrelevant {
		return nil, nil
	}
	target, ok := t.Target.Get()
	if !ok {
		t.Irrelevant()
		return nil, nil
	}
	owner, ok := t.Owner.Get()
	if !ok {
		t.Irrelevant()
		return nil, nil
	}
	t.Serial++

	old := t.Rate
	t.Rate = t.Params.Increment / t.Params.RatePeriod
	if old < t.Params.MinRate {
		t.Progress = 0
	}
	t.Progress += t.Params.Increment

	if t.Progress < 1-progressEpsilon {
		return protocol.Ops(t.nextTick(owner.ID)), nil
	}
	t.Progress = 0

	var (
		done protocol.OpList
		err  error
	)
	switch t.Kind {
	case KindDig:
		done, err = t.completeDig(owner, target)
	case KindDelve:
		done, err = t.completeDelve(owner, target)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownKind, t.Kind)
	}
	if err != nil {
		t.Irrelevant()
		return nil, fmt.Errorf("task %s: %w", t.ID, err)
	}
	return done.Append(t.nextTick(owner.ID)), nil
}

func (t *Task) surface(target *thing.Thing) (string, error) {
	if target.Terrain == nil {
		return "", fmt.Errorf("%w: %s has no terrain", ErrUnknownSurface, target.ID)
	}
	code := target.Terrain.Surface(t.Pos.X, t.Pos.Z)
	mat, ok := t.Params.Materials[code]
	if !ok {
		return "", fmt.Errorf("%w: code %d at %v", ErrUnknownSurface, code, t.Pos.Array())
	}
	t.Surface = code
	return mat, nil
}

func (t *Task) completeDig(owner, target *thing.Thing) (protocol.OpList, error) {
	mat, err := t.surface(target)
	if err != nil {
		return nil, err
	}
	pile := protocol.NewEntity("", map[string]any{
		"name":     mat,
		"type":     "pile",
		"material": mat,
		"loc":      owner.Parent(),
		"pos":      t.Pos.Slice(),
	})
	create := protocol.NewOp("create", target.ID, pile)
	create.From = owner.ID
	create.SetSerialNo(0)
	return protocol.Ops(create), nil
}

// completeDelve deepens the first quarry near the task, or digs a new one,
// and then yields a chunk of the surface material.
func (t *Task) completeDelve(owner, target *thing.Thing) (protocol.OpList, error) {
	mat, err := t.surface(target)
	if err != nil {
		return nil, err
	}
	var out protocol.OpList
	reused := false
	for _, mod := range target.Terrain.FindMods(t.Pos) {
		if mod.Name != "quarry" {
			continue
		}
		mod.Height -= 2
		upd := protocol.NewOp("update", mod.ID)
		upd.From = owner.ID
		out = out.Append(upd)
		reused = true
		break
	}
	if !reused {
		quarry := protocol.NewEntity("", map[string]any{
			"name": "quarry",
			"type": "path",
			"loc":  owner.Parent(),
			"pos":  t.Pos.Slice(),
			"terrainmod": map[string]any{
				"type":   "levelmod",
				"height": owner.Pos().Y + 1,
				"shape": map[string]any{
					"type":   "polygon",
					"points": []any{[]any{-1.0, -1.0}, []any{-1.0, 1.0}, []any{1.0, 1.0}, []any{1.0, -1.0}},
				},
			},
		})
		c := protocol.NewOp("create", target.ID, quarry)
		c.From = owner.ID
		out = out.Append(c)
	}
	chunk := protocol.NewEntity("", map[string]any{
		"name": mat,
		"type": mat,
		"loc":  owner.Parent(),
		"pos":  t.Pos.Slice(),
	})
	c := protocol.NewOp("create", target.ID, chunk)
	c.From = owner.ID
	return out.Append(c), nil
}
