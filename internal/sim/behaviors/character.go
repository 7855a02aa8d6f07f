package behaviors

import (
	"tickworld.ai/internal/protocol"
	"tickworld.ai/internal/sim/dispatch"
	"tickworld.ai/internal/sim/knowledge"
	"tickworld.ai/internal/sim/thing"
)

// characterNourish absorbs food and remembers where it came from. An empty
// meal makes the character forget the source.
func characterNourish(_ *dispatch.Env, self *thing.Thing, in protocol.Operation) dispatch.Result {
	arg, err := in.Arg(0)
	if err != nil {
		return dispatch.BlockErr(err)
	}
	mass, _ := arg.Float("mass")
	alcohol, _ := arg.Float("alcohol")
	self.Set("mass", self.Float("mass")+mass)
	if alcohol != 0 {
		self.Set("alcohol", self.Float("alcohol")+alcohol)
	}

	if in.From != "" {
		if self.Memory == nil {
			self.Memory = knowledge.New()
		}
		if mass > 0 {
			_ = self.Memory.Add(knowledge.Location, in.From, self.Pos().Slice())
		} else {
			self.Memory.Remove(knowledge.Location, in.From)
		}
	}
	return dispatch.Block()
}
