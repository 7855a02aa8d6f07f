package dispatch

import (
	"log"

	"tickworld.ai/internal/protocol"
	"tickworld.ai/internal/sim/chance"
	"tickworld.ai/internal/sim/thing"
	"tickworld.ai/internal/sim/tuning"
)

// TaskStarter starts a task of the given kind on behalf of op.From, using the
// op's first argument as the target, and returns the task's first-tick output.
type TaskStarter interface {
	StartTask(kind string, op protocol.Operation) (protocol.OpList, error)
}

// Env is what a handler may consult besides its own entity. Handlers must not
// mutate other entities through Resolve.
type Env struct {
	Now    float64
	Tuning tuning.Tuning
	Trial  chance.Trial
	Tasks  TaskStarter
	Logger *log.Logger

	Lookup func(id string) (*thing.Thing, bool)
}

func (e *Env) Resolve(id string) (*thing.Thing, bool) {
	if e == nil || e.Lookup == nil || id == "" {
		return nil, false
	}
	return e.Lookup(id)
}

func (e *Env) DoesItHappen(p float64) bool {
	if e == nil || e.Trial == nil {
		return false
	}
	return e.Trial.DoesItHappen(p)
}
