package behaviors

import (
	"fmt"

	"tickworld.ai/internal/protocol"
	"tickworld.ai/internal/sim/dispatch"
	"tickworld.ai/internal/sim/geom"
	"tickworld.ai/internal/sim/thing"
)

// soilEat feeds a plant from the ground. Soil never loses status; the amount
// handed out shrinks with the slope along x.
func soilEat(env *dispatch.Env, self *thing.Thing, in protocol.Operation) dispatch.Result {
	arg, err := in.Arg(0)
	if err != nil {
		return dispatch.IgnoreErr(err)
	}
	if t, _ := arg.Str("eat_type"); t != "soil" {
		return dispatch.Ignore()
	}
	want, ok := arg.Float("mass")
	if !ok || want == 0 {
		return dispatch.BlockErr(fmt.Errorf("eat: mass: %w", protocol.ErrMissingArgument))
	}

	mass := want
	if self.Terrain != nil {
		pos, ok := arg.Vec3("pos")
		if !ok {
			return dispatch.BlockErr(fmt.Errorf("eat: pos: %w", protocol.ErrMissingArgument))
		}
		if self.Terrain.Surface(pos[0], pos[2]) != env.Tuning.SoilSurface {
			return dispatch.Block()
		}
		n := self.Terrain.Normal(pos[0], pos[2])
		if m := n.Mag(); m > 0 {
			slope := n.Dot(geom.Vector3{X: 1}) / m
			mass = want * (1 - slope)
		}
	}
	if in.From == "" {
		return dispatch.BlockErr(fmt.Errorf("eat: from: %w", protocol.ErrMissingArgument))
	}
	nourish := protocol.NewEntity("", map[string]any{"eat_type": "soil", "mass": mass})
	return dispatch.Block(op(self, "nourish", in.From, nourish))
}
