package dispatch

import (
	"sort"

	"tickworld.ai/internal/protocol"
	"tickworld.ai/internal/sim/thing"
)

type HandlerFunc func(env *Env, self *thing.Thing, op protocol.Operation) Result

// Behavior is a closed op-type -> handler table. It is built once and never
// mutated, so one Behavior serves every entity that uses it.
type Behavior struct {
	name     string
	handlers map[string]HandlerFunc
	fallback Policy
}

// NewBehavior builds a behavior on top of parent's table; handlers given here
// replace the parent's for the same type. A nil parent starts empty with an
// Ignored default.
func NewBehavior(name string, parent *Behavior, handlers map[string]HandlerFunc) *Behavior {
	b := &Behavior{name: name, handlers: map[string]HandlerFunc{}, fallback: Ignored}
	if parent != nil {
		for k, h := range parent.handlers {
			b.handlers[k] = h
		}
		b.fallback = parent.fallback
	}
	for k, h := range handlers {
		b.handlers[k] = h
	}
	return b
}

// WithDefault returns a copy whose unmatched operations get p.
func (b *Behavior) WithDefault(p Policy) *Behavior {
	c := NewBehavior(b.name, b, nil)
	c.fallback = p
	return c
}

func (b *Behavior) Name() string { return b.name }

func (b *Behavior) Default() Policy { return b.fallback }

func (b *Behavior) Handler(opType string) (HandlerFunc, bool) {
	h, ok := b.handlers[opType]
	return h, ok
}

// Types lists the operation types with a handler, sorted.
func (b *Behavior) Types() []string {
	out := make([]string, 0, len(b.handlers))
	for k := range b.handlers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
