package behaviors

import (
	"tickworld.ai/internal/protocol"
	"tickworld.ai/internal/sim/dispatch"
	"tickworld.ai/internal/sim/thing"
)

// houseTick re-arms the house's tick and occasionally sets it on fire.
func houseTick(env *dispatch.Env, self *thing.Thing, _ protocol.Operation) dispatch.Result {
	next := tickSelf(self, env.Tuning.BasicTickSeconds)
	if !env.DoesItHappen(env.Tuning.FireProbability) {
		return dispatch.Emit(next)
	}
	fire := protocol.NewEntity("", map[string]any{
		"name":   "fire",
		"type":   "fire",
		"status": 0.0,
		"loc":    self.ID,
		"pos":    []float64{0, 0, 0},
	})
	if env.Tuning.DebugLevel >= 2 && env.Logger != nil {
		env.Logger.Printf("fire at %s", self.ID)
	}
	return dispatch.Emit(op(self, "create", self.ID, fire), next)
}
