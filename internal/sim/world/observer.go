package world

import (
	"context"
	"encoding/json"
	"errors"

	"tickworld.ai/internal/protocol"
)

// ObserverJoin subscribes a session to the operations delivered to one entity.
// OBS messages are written to Out once per step; a slow reader loses the
// oldest pending message rather than stalling the world.
type ObserverJoin struct {
	SessionID string
	EntityID  string
	Out       chan []byte
}

type observer struct {
	id       string
	entityID string
	out      chan []byte
	ops      []protocol.Operation
}

func (w *World) AttachObserver(ctx context.Context, req ObserverJoin) error {
	if w == nil || req.SessionID == "" || req.Out == nil {
		return errors.New("invalid observer join")
	}
	select {
	case w.observerJoin <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DetachObserver waits for room in the leave queue; a session left attached
// would keep receiving OBS for good. It returns early once the world stops.
func (w *World) DetachObserver(ctx context.Context, sessionID string) error {
	if w == nil {
		return nil
	}
	select {
	case w.observerLeave <- sessionID:
		return nil
	case <-w.stop:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *World) handleObserverJoin(req ObserverJoin) {
	w.observers[req.SessionID] = &observer{id: req.SessionID, entityID: req.EntityID, out: req.Out}
}

func (w *World) observe(entityID string, op protocol.Operation) {
	for _, o := range w.observers {
		if o.entityID == entityID {
			o.ops = append(o.ops, op.Clone())
		}
	}
}

func (w *World) flushObservers(nowStep uint64) {
	for _, o := range w.observers {
		msg := protocol.ObsMsg{
			Type:            protocol.TypeObs,
			ProtocolVersion: protocol.Version,
			Step:            nowStep,
			Clock:           w.clock,
			EntityID:        o.entityID,
			Ops:             o.ops,
		}
		if msg.Ops == nil {
			msg.Ops = []protocol.Operation{}
		}
		if th, ok := w.things.Lookup(o.entityID); ok {
			self := th.Snapshot()
			msg.Self = &self
		}
		o.ops = nil
		b, err := json.Marshal(msg)
		if err != nil {
			w.logf("obs marshal %s: %v", o.id, err)
			continue
		}
		sendLatest(o.out, b)
	}
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

// ObserveNow attaches an observer synchronously. Only call it from the
// goroutine driving StepOnce.
func (w *World) ObserveNow(req ObserverJoin) {
	if req.SessionID == "" || req.Out == nil {
		return
	}
	w.handleObserverJoin(req)
}
