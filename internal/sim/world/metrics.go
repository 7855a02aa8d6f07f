package world

import "tickworld.ai/internal/sim/dispatch"

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Step       uint64  `json:"step"`
	Clock      float64 `json:"clock"`
	TickRateHz int     `json:"tick_rate_hz"`

	Entities  int `json:"entities"`
	Observers int `json:"observers"`
	Tasks     int `json:"tasks"`

	QueueDepth int `json:"queue_depth"`
	Backlog    int `json:"backlog"`
	Inbox      int `json:"inbox"`

	Delivered uint64         `json:"delivered_total"`
	Dropped   uint64         `json:"dropped_total"`
	Dispatch  dispatch.Stats `json:"dispatch"`

	StepMS float64 `json:"step_ms"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}
