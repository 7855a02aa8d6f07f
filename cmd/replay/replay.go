package main

import (
	"errors"
	"fmt"
	"io"

	persistlog "tickworld.ai/internal/persistence/log"
	"tickworld.ai/internal/sim/world"
)

var errNoSteps = errors.New("no journal entries after the snapshot")

// replay re-runs the journaled steps that follow w's restored state and
// compares each digest with the recorded one.
func replay(w *world.World, worldDir string, verifyFrom, toStep uint64) (uint64, error) {
	start := w.CurrentStep()
	if verifyFrom == 0 {
		verifyFrom = start
	}
	var checked, stepped uint64
	err := persistlog.ReadSteps(worldDir, func(e world.StepLogEntry) error {
		if e.Step < start {
			return nil
		}
		if toStep != 0 && e.Step > toStep {
			return io.EOF
		}
		if e.Step != w.CurrentStep() {
			return fmt.Errorf("step gap: want=%d got=%d", w.CurrentStep(), e.Step)
		}
		step, got := w.StepOnceTuned(e.Inputs, e.Tuning)
		stepped++
		if step != e.Step {
			return fmt.Errorf("internal step mismatch: stepped=%d entry=%d", step, e.Step)
		}
		if step >= verifyFrom {
			checked++
			if got != e.Digest {
				return fmt.Errorf("digest mismatch at step %d: got=%s want=%s", step, got, e.Digest)
			}
		}
		return nil
	})
	if err != nil {
		return checked, err
	}
	if stepped == 0 {
		return 0, errNoSteps
	}
	return checked, nil
}
