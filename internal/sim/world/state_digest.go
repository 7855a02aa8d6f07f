package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"math"
	"sort"

	"tickworld.ai/internal/sim/tasks"
	"tickworld.ai/internal/sim/terrain"
	"tickworld.ai/internal/sim/thing"
)

// stateDigest hashes everything that decides future behavior: entities,
// terrain, scheduled operations, the carried backlog and tasks.
func (w *World) stateDigest(nowStep uint64) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowStep)
	digestWriteU64(h, &tmp, math.Float64bits(w.clock))
	digestWriteU64(h, &tmp, w.nextEntity)
	digestWriteU64(h, &tmp, uint64(w.nextSerial))

	enc := json.NewEncoder(h)
	for _, th := range w.sortedThings() {
		_ = enc.Encode(digestThing(th))
	}
	for _, op := range w.queue.Pending() {
		_ = enc.Encode(op)
	}
	for _, op := range w.backlog {
		_ = enc.Encode(op)
	}
	for _, st := range w.runnerStates() {
		_ = enc.Encode(st)
	}
	return hex.EncodeToString(h.Sum(nil))
}

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

type thingDigest struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Behavior string         `json:"behavior"`
	Attrs    map[string]any `json:"attrs"`
	Memory   any            `json:"memory,omitempty"`
	Mods     []modDigest    `json:"mods,omitempty"`
	Surfaces any            `json:"surfaces,omitempty"`
	Heights  any            `json:"heights,omitempty"`
}

type modDigest struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Height float64 `json:"height"`
}

func digestThing(th *thing.Thing) thingDigest {
	d := thingDigest{ID: th.ID, Type: th.Type, Behavior: th.Behavior, Attrs: th.Attrs}
	if !th.Memory.Empty() {
		d.Memory = th.Memory
	}
	if g, ok := th.Terrain.(*terrain.Grid); ok {
		for _, m := range g.Mods() {
			d.Mods = append(d.Mods, modDigest{ID: m.ID, Name: m.Name, Height: m.Height})
		}
		d.Surfaces, d.Heights = g.Cells()
	}
	return d
}

func (w *World) sortedThings() []*thing.Thing {
	var out []*thing.Thing
	w.things.Each(func(th *thing.Thing) { out = append(out, th) })
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (w *World) runnerStates() []tasks.RunnerState {
	owners := make([]string, 0, len(w.runners))
	for id := range w.runners {
		owners = append(owners, id)
	}
	sort.Strings(owners)
	out := make([]tasks.RunnerState, 0, len(owners))
	for _, id := range owners {
		out = append(out, w.runners[id].Export())
	}
	return out
}
