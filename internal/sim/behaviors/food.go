package behaviors

import (
	"tickworld.ai/internal/protocol"
	"tickworld.ai/internal/sim/dispatch"
	"tickworld.ai/internal/sim/thing"
)

// eaten answers an eat: the food destroys itself and nourishes the eater.
func eaten(self *thing.Thing, eater string, nourish map[string]any) dispatch.Result {
	if eater == "" {
		return dispatch.IgnoreErr(protocol.ErrMissingArgument)
	}
	return dispatch.Emit(
		destroySelf(self),
		op(self, "nourish", eater, protocol.NewEntity(eater, nourish)),
	)
}

func acornEat(_ *dispatch.Env, self *thing.Thing, in protocol.Operation) dispatch.Result {
	return eaten(self, in.From, map[string]any{"mass": self.Float("mass")})
}

// Acorns decay rather than germinate.
func acornSetup(env *dispatch.Env, self *thing.Thing, _ protocol.Operation) dispatch.Result {
	return dispatch.Emit(tickSelf(self, env.Tuning.AcornDecaySeconds))
}

func acornTick(_ *dispatch.Env, self *thing.Thing, _ protocol.Operation) dispatch.Result {
	return dispatch.Emit(destroySelf(self))
}

func appleEat(_ *dispatch.Env, self *thing.Thing, in protocol.Operation) dispatch.Result {
	return eaten(self, in.From, map[string]any{
		"mass":    self.Float("mass"),
		"alcohol": self.Float("alcohol"),
	})
}

func appleSetup(env *dispatch.Env, self *thing.Thing, _ protocol.Operation) dispatch.Result {
	return dispatch.Emit(tickSelf(self, env.Tuning.AppleFermentSeconds))
}

// An apple ferments once, then rots on the following tick.
func appleTick(env *dispatch.Env, self *thing.Thing, _ protocol.Operation) dispatch.Result {
	if self.Float("alcohol") > 0 {
		return dispatch.Emit(destroySelf(self))
	}
	self.Set("alcohol", 1.0)
	return dispatch.Emit(tickSelf(self, env.Tuning.AppleFermentSeconds))
}
