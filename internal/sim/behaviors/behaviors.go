// Package behaviors is the registry of entity behaviors the world dispatches
// operations to.
package behaviors

import (
	"log"

	"tickworld.ai/internal/protocol"
	"tickworld.ai/internal/sim/dispatch"
	"tickworld.ai/internal/sim/schedule"
	"tickworld.ai/internal/sim/thing"
)

// Names of the registered behaviors, as referenced by the type catalog.
const (
	Thing           = "thing"
	Seed            = "seed"
	Acorn           = "acorn"
	Apple           = "apple"
	House           = "house"
	Scythe          = "scythe"
	Tool            = "tool"
	PlantNourishing = "plant_nourishing"
	Garment         = "garment"
	Character       = "character"
)

// Registry builds every behavior. Children are built on their parent's table.
func Registry() []*dispatch.Behavior {
	base := dispatch.NewBehavior(Thing, nil, nil)
	seed := dispatch.NewBehavior(Seed, base, nil)
	return []*dispatch.Behavior{
		base,
		seed,
		dispatch.NewBehavior(Acorn, seed, map[string]dispatch.HandlerFunc{
			"eat":   acornEat,
			"setup": acornSetup,
			"tick":  acornTick,
		}),
		dispatch.NewBehavior(Apple, seed, map[string]dispatch.HandlerFunc{
			"eat":   appleEat,
			"setup": appleSetup,
			"tick":  appleTick,
		}),
		dispatch.NewBehavior(House, base, map[string]dispatch.HandlerFunc{
			"setup": houseTick,
			"tick":  houseTick,
		}),
		dispatch.NewBehavior(Scythe, base, map[string]dispatch.HandlerFunc{
			"cut": scytheCut,
		}),
		dispatch.NewBehavior(Tool, base, map[string]dispatch.HandlerFunc{
			"cut": toolCut,
		}),
		dispatch.NewBehavior(PlantNourishing, base, map[string]dispatch.HandlerFunc{
			"eat": soilEat,
		}),
		dispatch.NewBehavior(Garment, base, map[string]dispatch.HandlerFunc{
			"wear": garmentWear,
		}),
		dispatch.NewBehavior(Character, base, map[string]dispatch.HandlerFunc{
			"nourish": characterNourish,
		}),
	}
}

// NewDispatcher is a dispatcher over the full registry.
func NewDispatcher(cfg dispatch.Config, logger *log.Logger) *dispatch.Dispatcher {
	return dispatch.New(cfg, logger, Registry()...)
}

func op(self *thing.Thing, typ, to string, args ...protocol.Entity) protocol.Operation {
	o := protocol.NewOp(typ, to, args...)
	o.From = self.ID
	return o
}

func setSelf(self *thing.Thing, attrs map[string]any) protocol.Operation {
	return op(self, "set", self.ID, protocol.NewEntity(self.ID, attrs))
}

func destroySelf(self *thing.Thing) protocol.Operation {
	return setSelf(self, map[string]any{"status": -1.0})
}

func tickSelf(self *thing.Thing, delay float64) protocol.Operation {
	return schedule.Tick(self.ID, delay)
}
