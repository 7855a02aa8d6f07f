package world

import (
	"errors"
	"fmt"

	"tickworld.ai/internal/protocol"
	"tickworld.ai/internal/sim/dispatch"
	"tickworld.ai/internal/sim/schedule"
	"tickworld.ai/internal/sim/tasks"
	"tickworld.ai/internal/sim/thing"
)

// route sends an emitted operation either to the schedule queue or to the
// back of this step's delivery backlog.
func (w *World) route(op protocol.Operation) {
	if _, ok := op.FutureSeconds(); ok {
		w.queue.Push(w.clock, op)
		return
	}
	if at, ok := op.Seconds(); ok && at > w.clock {
		op.SetFutureSeconds(at - w.clock)
		w.queue.Push(w.clock, op)
		return
	}
	w.backlog = append(w.backlog, op)
}

// deliver hands one operation to its receiver and returns what came out.
func (w *World) deliver(op protocol.Operation) protocol.OpList {
	if _, ok := op.SerialNo(); !ok {
		w.nextSerial++
		op.SetSerialNo(w.nextSerial)
	}
	self, ok := w.things.Lookup(op.To)
	if !ok {
		w.audit(AuditDropped, op.To, &op, "unknown entity")
		return nil
	}
	w.delivered++
	w.observe(self.ID, op)

	if _, ok := schedule.TaskOf(op); ok {
		return w.deliverTaskTick(self, op)
	}

	res := w.dispatcher.Dispatch(&w.env, self, op.Clone())
	if res.Err != nil && errors.Is(res.Err, protocol.ErrFault) {
		w.audit(AuditFault, self.ID, &op, res.Err.Error())
	}
	if res.Policy == dispatch.Blocked {
		return res.Ops
	}
	return protocol.Concat(res.Ops, w.defaultOp(self, op))
}

func (w *World) deliverTaskTick(owner *thing.Thing, op protocol.Operation) protocol.OpList {
	r := w.runners[owner.ID]
	if r == nil {
		return nil
	}
	before := r.Len()
	ops, err := r.Deliver(op)
	switch {
	case err != nil:
		w.audit(AuditIrrelevant, owner.ID, &op, err.Error())
	case r.Len() < before:
		w.audit(AuditIrrelevant, owner.ID, &op, "target or owner vanished")
	}
	if r.Len() == 0 {
		delete(w.runners, owner.ID)
	}
	return ops
}

// StartTask starts a task for the entity that sent op (the wielder of the
// tool op is addressed to) and runs its first tick.
func (w *World) StartTask(kind string, op protocol.Operation) (protocol.OpList, error) {
	owner, ok := w.things.Lookup(op.From)
	if !ok {
		return nil, fmt.Errorf("%w: task owner %q", protocol.ErrUnknownEntity, op.From)
	}
	r := w.runners[owner.ID]
	if r == nil {
		r = tasks.NewRunner(owner.ID, w.taskParams, w.refOf)
	}
	t, ops, err := r.Start(tasks.Kind(kind), op)
	if r.Len() > 0 {
		w.runners[owner.ID] = r
	}
	if t != nil && t.Status == tasks.Irrelevant {
		reason := "target or owner vanished"
		if err != nil {
			reason = err.Error()
		}
		w.audit(AuditIrrelevant, owner.ID, &op, reason)
	}
	if err != nil {
		return nil, err
	}
	return ops, nil
}

func (w *World) taskCount() int {
	n := 0
	for _, r := range w.runners {
		n += r.Len()
	}
	return n
}
