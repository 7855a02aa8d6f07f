package behaviors

import (
	"fmt"

	"tickworld.ai/internal/protocol"
	"tickworld.ai/internal/sim/dispatch"
	"tickworld.ai/internal/sim/thing"
)

// garmentWear dresses the wearer: the garment's mesh and material go into the
// wearer's guise under the garment's slot.
func garmentWear(env *dispatch.Env, self *thing.Thing, in protocol.Operation) dispatch.Result {
	wearer, ok := env.Resolve(in.From)
	if !ok {
		return dispatch.IgnoreErr(fmt.Errorf("wear: %w: %q", protocol.ErrUnknownEntity, in.From))
	}
	slot := self.Str("slot")
	if slot == "" {
		return dispatch.IgnoreErr(fmt.Errorf("%w: %s has no slot", protocol.ErrUnsupported, self.ID))
	}

	guise := map[string]any{}
	if cur, ok := wearer.Attrs["guise"].(map[string]any); ok {
		for k, v := range cur {
			if m, ok := v.(map[string]any); ok {
				cp := make(map[string]any, len(m))
				for mk, mv := range m {
					cp[mk] = mv
				}
				guise[k] = cp
				continue
			}
			guise[k] = v
		}
	}
	for _, layer := range []string{"mesh", "material"} {
		v := self.Str(layer)
		if v == "" {
			continue
		}
		m, _ := guise[layer].(map[string]any)
		if m == nil {
			m = map[string]any{}
			guise[layer] = m
		}
		m[slot] = v
	}
	return dispatch.Emit(op(self, "set", wearer.ID, protocol.NewEntity(wearer.ID, map[string]any{"guise": guise})))
}
