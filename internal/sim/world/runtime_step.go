package world

import (
	"time"

	"tickworld.ai/internal/protocol"
	"tickworld.ai/internal/sim/tuning"
)

// StepOnce advances the world by a single step using the same ordering semantics as the server.
// It is primarily intended for deterministic replays/tests.
func (w *World) StepOnce(inputs []protocol.Operation) (step uint64, digest string) {
	return w.StepOnceTuned(inputs, nil)
}

// StepOnceTuned is StepOnce with a retune applied first, as recorded in the
// step journal.
func (w *World) StepOnceTuned(inputs []protocol.Operation, t *tuning.Tuning) (step uint64, digest string) {
	step = w.step.Load()
	var retunes []tuning.Tuning
	if t != nil {
		retunes = append(retunes, *t)
	}
	w.stepInternal(inputs, retunes)
	return step, w.lastDigest
}

func (w *World) stepInternal(inputs []protocol.Operation, retunes []tuning.Tuning) {
	stepStart := time.Now()
	nowStep := w.step.Load()

	w.retunedThisStep = nil
	if n := len(retunes); n > 0 {
		t := retunes[n-1]
		w.applyTuning(t)
		w.retunedThisStep = &t
	}

	w.clock += 1 / float64(w.tune.TickRateHz)
	w.env.Now = w.clock
	w.trial.Reseed(nowStep)

	// Carried-over operations first, then this step's submissions, then
	// whatever fell due.
	recorded := make([]protocol.Operation, 0, len(inputs))
	for _, op := range inputs {
		recorded = append(recorded, op.Clone())
		w.route(op.Clone())
	}
	w.backlog = append(w.backlog, w.queue.PopDue(w.clock)...)

	delivered := 0
	for len(w.backlog) > 0 && delivered < w.tune.MaxOpsPerStep {
		op := w.backlog[0]
		w.backlog[0] = protocol.Operation{}
		w.backlog = w.backlog[1:]
		delivered++
		for _, out := range w.deliver(op) {
			w.route(out)
		}
	}
	if len(w.backlog) == 0 {
		w.backlog = nil
	}

	w.flushObservers(nowStep)

	digest := w.stateDigest(nowStep)
	w.lastDigest = digest
	if w.stepLogger != nil {
		_ = w.stepLogger.WriteStep(StepLogEntry{
			Step:   nowStep,
			Clock:  w.clock,
			Inputs: recorded,
			Tuning: w.retunedThisStep,
			Digest: digest,
		})
	}

	// Snapshot every N steps, starting after step 0.
	if w.snapshotSink != nil && nowStep != 0 && w.tune.SnapshotEverySteps > 0 {
		if nowStep%uint64(w.tune.SnapshotEverySteps) == 0 {
			snap := w.ExportSnapshot(nowStep)
			select {
			case w.snapshotSink <- snap:
			default:
				// Drop snapshot if sink is backed up.
			}
		}
	}

	stepMS := float64(time.Since(stepStart).Microseconds()) / 1000.0
	nextStep := w.step.Add(1)
	w.metrics.Store(WorldMetrics{
		Step:       nextStep,
		Clock:      w.clock,
		TickRateHz: w.tune.TickRateHz,
		Entities:   w.things.Len(),
		Observers:  len(w.observers),
		Tasks:      w.taskCount(),
		QueueDepth: w.queue.Len(),
		Backlog:    len(w.backlog),
		Inbox:      len(w.inbox),
		Delivered:  w.delivered,
		Dropped:    w.dropped,
		Dispatch:   w.dispatcher.Stats(),
		StepMS:     stepMS,
	})
}
