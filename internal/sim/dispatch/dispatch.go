// Package dispatch routes an operation to the handler its receiver's behavior
// registers for the operation type.
package dispatch

import (
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"tickworld.ai/internal/protocol"
	"tickworld.ai/internal/sim/thing"
)

type Config struct {
	DebugLevel int
}

type Stats struct {
	Handled uint64 `json:"handled"`
	Ignored uint64 `json:"ignored"`
	Blocked uint64 `json:"blocked"`
	Faults  uint64 `json:"faults"`
}

type Dispatcher struct {
	cfg       Config
	logger    *log.Logger
	behaviors map[string]*Behavior

	handled atomic.Uint64
	ignored atomic.Uint64
	blocked atomic.Uint64
	faults  atomic.Uint64
}

func New(cfg Config, logger *log.Logger, behaviors ...*Behavior) *Dispatcher {
	d := &Dispatcher{cfg: cfg, logger: logger, behaviors: map[string]*Behavior{}}
	for _, b := range behaviors {
		d.behaviors[b.Name()] = b
	}
	return d
}

func (d *Dispatcher) Behavior(name string) (*Behavior, bool) {
	b, ok := d.behaviors[name]
	return b, ok
}

func (d *Dispatcher) SetDebugLevel(n int) { d.cfg.DebugLevel = n }

// Dispatch delivers op to self. A panicking or faulting handler is logged and
// the operation is treated as ignored; nothing it emitted survives. Ignored
// and Blocked results keep their operations unless they carry an error.
func (d *Dispatcher) Dispatch(env *Env, self *thing.Thing, op protocol.Operation) (res Result) {
	b, ok := d.behaviors[self.Behavior]
	if !ok {
		res = IgnoreErr(fmt.Errorf("%w: behavior %q", protocol.ErrUnsupported, self.Behavior))
		d.finish(self, op, &res)
		return res
	}
	h, ok := b.Handler(op.Type)
	if !ok {
		res = Result{Policy: b.Default()}
		d.finish(self, op, &res)
		return res
	}

	defer func() {
		if r := recover(); r != nil {
			res = Fail(fmt.Errorf("%w: panic: %v", protocol.ErrFault, r))
			d.finish(self, op, &res)
		}
	}()
	res = h(env, self, op)
	d.finish(self, op, &res)
	return res
}

func (d *Dispatcher) finish(self *thing.Thing, op protocol.Operation, res *Result) {
	switch res.Policy {
	case Handled:
		d.handled.Add(1)
		return
	case Fault:
		d.faults.Add(1)
		d.logf("fault %s on %s (%s): %v", op.Type, self.ID, self.Behavior, res.Err)
		err := res.Err
		if !errors.Is(err, protocol.ErrFault) {
			err = fmt.Errorf("%w: %v", protocol.ErrFault, err)
		}
		*res = Result{Policy: Ignored, Err: err}
		return
	case Blocked:
		d.blocked.Add(1)
	default:
		d.ignored.Add(1)
	}
	if res.Err != nil {
		res.Ops = nil
		if d.cfg.DebugLevel >= 1 {
			d.logf("%s %s on %s: %v", res.Policy, op.Type, self.ID, res.Err)
		}
	}
}

func (d *Dispatcher) logf(format string, args ...any) {
	if d.logger != nil {
		d.logger.Printf(format, args...)
	}
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Handled: d.handled.Load(),
		Ignored: d.ignored.Load(),
		Blocked: d.blocked.Load(),
		Faults:  d.faults.Load(),
	}
}
