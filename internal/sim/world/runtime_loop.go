package world

import (
	"context"
	"time"

	"tickworld.ai/internal/protocol"
	"tickworld.ai/internal/sim/tuning"
)

func (w *World) Run(ctx context.Context) error {
	interval := w.interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingInputs []protocol.Operation
	var pendingRetunes []tuning.Tuning
	var pendingAdmin []adminSnapshotReq

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case op := <-w.inbox:
			pendingInputs = append(pendingInputs, op)
		case t := <-w.retune:
			pendingRetunes = append(pendingRetunes, t)
		case req := <-w.observerJoin:
			w.handleObserverJoin(req)
		case id := <-w.observerLeave:
			delete(w.observers, id)
		case req := <-w.admin:
			pendingAdmin = append(pendingAdmin, req)
		case req := <-w.stateReq:
			w.handleStateReq(req)
		case <-ticker.C:
			w.stepInternal(pendingInputs, pendingRetunes)
			w.handleAdminSnapshotRequests(pendingAdmin)
			pendingInputs = pendingInputs[:0]
			pendingRetunes = pendingRetunes[:0]
			pendingAdmin = pendingAdmin[:0]
			if d := w.interval(); d != interval {
				interval = d
				ticker.Reset(d)
			}
		}
	}
}

func (w *World) Stop() { close(w.stop) }

func (w *World) interval() time.Duration {
	return time.Second / time.Duration(w.tune.TickRateHz)
}

// Submit queues an operation for the next step. It never blocks; a full
// inbox is reported as ErrBusy.
func (w *World) Submit(op protocol.Operation) error {
	select {
	case w.inbox <- op:
		return nil
	default:
		return ErrBusy
	}
}

// Retune applies t at the start of the next step.
func (w *World) Retune(ctx context.Context, t tuning.Tuning) error {
	if err := t.Validate(); err != nil {
		return err
	}
	select {
	case w.retune <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
