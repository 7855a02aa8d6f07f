package behaviors

import (
	"fmt"

	"tickworld.ai/internal/protocol"
	"tickworld.ai/internal/sim/dispatch"
	"tickworld.ai/internal/sim/thing"
)

func scytheCut(env *dispatch.Env, self *thing.Thing, in protocol.Operation) dispatch.Result {
	target, err := in.Arg(0)
	if err != nil {
		return dispatch.IgnoreErr(err)
	}
	if target.ID == "" {
		return dispatch.IgnoreErr(fmt.Errorf("cut: target id: %w", protocol.ErrMissingArgument))
	}
	wear := setSelf(self, map[string]any{"status": self.Float("status") - env.Tuning.ScytheWear})
	mow := op(self, "mow", target.ID, target.Clone())
	return dispatch.Emit(wear, mow)
}

// toolCut starts the task the tool is made for on behalf of the wielder. The
// cut is answered here; the world does nothing further with it.
func toolCut(env *dispatch.Env, self *thing.Thing, in protocol.Operation) dispatch.Result {
	kind := self.Str("task")
	if kind == "" || env.Tasks == nil {
		return dispatch.BlockErr(fmt.Errorf("%w: %s has no task", protocol.ErrUnsupported, self.ID))
	}
	ops, err := env.Tasks.StartTask(kind, in)
	if err != nil {
		return dispatch.BlockErr(err)
	}
	return dispatch.Result{Policy: dispatch.Blocked, Ops: ops}
}
