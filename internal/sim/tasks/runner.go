package tasks

import (
	"fmt"
	"sort"

	"tickworld.ai/internal/protocol"
	"tickworld.ai/internal/sim/geom"
	"tickworld.ai/internal/sim/schedule"
)

// Runner holds the tasks one entity is working on.
type Runner struct {
	owner  string
	params map[Kind]Params
	lookup Lookup

	next  uint64
	tasks map[string]*Task
}

func NewRunner(owner string, params map[Kind]Params, lookup Lookup) *Runner {
	return &Runner{owner: owner, params: params, lookup: lookup, tasks: map[string]*Task{}}
}

func (r *Runner) Owner() string { return r.owner }

func (r *Runner) Len() int { return len(r.tasks) }

func (r *Runner) Get(id string) (*Task, bool) {
	t, ok := r.tasks[id]
	return t, ok
}

// Start activates a new task of kind from op and runs its first tick.
func (r *Runner) Start(kind Kind, op protocol.Operation) (*Task, protocol.OpList, error) {
	p, ok := r.params[kind]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	r.next++
	t := New(fmt.Sprintf("%s/%s-%d", r.owner, kind, r.next), kind, p)
	if err := t.Activate(op, r.lookup); err != nil {
		return nil, nil, err
	}
	r.tasks[t.ID] = t
	ops, err := r.run(t)
	return t, ops, err
}

// Deliver routes a task tick. Ticks for tasks that no longer exist are
// dropped without error.
func (r *Runner) Deliver(op protocol.Operation) (protocol.OpList, error) {
	id, ok := schedule.TaskOf(op)
	if !ok {
		return nil, nil
	}
	t, ok := r.tasks[id]
	if !ok {
		return nil, nil
	}
	return r.run(t)
}

func (r *Runner) run(t *Task) (protocol.OpList, error) {
	ops, err := t.Tick()
	if t.Status == Irrelevant {
		delete(r.tasks, t.ID)
	}
	return ops, err
}

// StallAll forces every task to restart its progress on the next tick.
func (r *Runner) StallAll() {
	for _, t := range r.tasks {
		t.Stall()
	}
}

// Retune swaps the parameters of the runner and of its live tasks.
func (r *Runner) Retune(params map[Kind]Params) {
	r.params = params
	for _, t := range r.tasks {
		if p, ok := params[t.Kind]; ok {
			t.Params = p
		}
	}
}

type TaskState struct {
	ID       string     `json:"id"`
	Kind     Kind       `json:"kind"`
	Owner    string     `json:"owner"`
	Target   string     `json:"target"`
	Tool     string     `json:"tool,omitempty"`
	Pos      [3]float64 `json:"pos"`
	Rate     float64    `json:"rate"`
	Progress float64    `json:"progress"`
	Surface  int        `json:"surface"`
	Serial   int64      `json:"serial"`
}

type RunnerState struct {
	Owner string      `json:"owner"`
	Next  uint64      `json:"next"`
	Tasks []TaskState `json:"tasks"`
}

func (r *Runner) Export() RunnerState {
	st := RunnerState{Owner: r.owner, Next: r.next}
	ids := make([]string, 0, len(r.tasks))
	for id := range r.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		t := r.tasks[id]
		st.Tasks = append(st.Tasks, TaskState{
			ID:       t.ID,
			Kind:     t.Kind,
			Owner:    t.Owner.ID,
			Target:   t.Target.ID,
			Tool:     t.Tool,
			Pos:      t.Pos.Array(),
			Rate:     t.Rate,
			Progress: t.Progress,
			Surface:  t.Surface,
			Serial:   t.Serial,
		})
	}
	return st
}

// ImportRunner rebuilds a runner from a snapshot for a resumed world. Every
// restored task is stalled, so its first tick after resume restarts progress.
func ImportRunner(st RunnerState, params map[Kind]Params, lookup Lookup) *Runner {
	r := RestoreRunner(st, params, lookup)
	r.StallAll()
	return r
}

// RestoreRunner rebuilds a runner exactly as exported, rate included. Replay
// uses it to continue a run that never stopped.
func RestoreRunner(st RunnerState, params map[Kind]Params, lookup Lookup) *Runner {
	r := NewRunner(st.Owner, params, lookup)
	r.next = st.Next
	for _, ts := range st.Tasks {
		t := New(ts.ID, ts.Kind, params[ts.Kind])
		t.Owner = lookup(ts.Owner)
		t.Target = lookup(ts.Target)
		t.Tool = ts.Tool
		t.Pos = geom.PointFrom(ts.Pos)
		t.Rate = ts.Rate
		t.Progress = ts.Progress
		t.Surface = ts.Surface
		t.Serial = ts.Serial
		r.tasks[t.ID] = t
	}
	return r
}
