package world

import (
	"context"
	"errors"

	"tickworld.ai/internal/protocol"
)

type adminSnapshotReq struct {
	Resp chan adminSnapshotResp
}

type adminSnapshotResp struct {
	Step uint64
	Err  string
}

// RequestSnapshot asks the world loop goroutine to enqueue a snapshot.
// It is safe to call from other goroutines (e.g. HTTP handlers).
func (w *World) RequestSnapshot(ctx context.Context) (step uint64, err error) {
	if w == nil || w.admin == nil {
		return 0, errors.New("admin snapshot not available")
	}
	resp := make(chan adminSnapshotResp, 1)
	req := adminSnapshotReq{Resp: resp}

	select {
	case w.admin <- req:
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	select {
	case r := <-resp:
		if r.Err != "" {
			return r.Step, errors.New(r.Err)
		}
		return r.Step, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (w *World) handleAdminSnapshotRequests(reqs []adminSnapshotReq) {
	if w == nil || len(reqs) == 0 {
		return
	}
	cur := w.step.Load()
	snapStep := uint64(0)
	if cur > 0 {
		snapStep = cur - 1
	}

	errStr := ""
	if w.snapshotSink == nil {
		errStr = "snapshot sink not configured"
	} else {
		snap := w.ExportSnapshot(snapStep)
		select {
		case w.snapshotSink <- snap:
		default:
			errStr = "snapshot sink backpressure"
		}
	}

	resp := adminSnapshotResp{Step: snapStep, Err: errStr}
	for _, r := range reqs {
		if r.Resp == nil {
			continue
		}
		select {
		case r.Resp <- resp:
		default:
			// Client timed out; don't block the sim loop.
		}
	}
}

// StateSummary is a point-in-time listing of the world for admin tooling.
type StateSummary struct {
	WorldID  string            `json:"world_id"`
	Step     uint64            `json:"step"`
	Clock    float64           `json:"clock"`
	Entities []protocol.Entity `json:"entities"`
	Pending  int               `json:"pending"`
	Tasks    int               `json:"tasks"`
}

type stateReq struct {
	Resp chan StateSummary
}

// State is safe to call from other goroutines; the listing is built on the
// world loop.
func (w *World) State(ctx context.Context) (StateSummary, error) {
	resp := make(chan StateSummary, 1)
	select {
	case w.stateReq <- stateReq{Resp: resp}:
	case <-ctx.Done():
		return StateSummary{}, ctx.Err()
	}
	select {
	case s := <-resp:
		return s, nil
	case <-ctx.Done():
		return StateSummary{}, ctx.Err()
	}
}

func (w *World) handleStateReq(req stateReq) {
	s := StateSummary{
		WorldID: w.cfg.ID,
		Step:    w.step.Load(),
		Clock:   w.clock,
		Pending: w.queue.Len(),
		Tasks:   w.taskCount(),
	}
	for _, th := range w.sortedThings() {
		s.Entities = append(s.Entities, th.Snapshot())
	}
	select {
	case req.Resp <- s:
	default:
	}
}
