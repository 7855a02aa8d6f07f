// Package schedule holds future operations until their due time.
package schedule

import (
	"container/heap"

	"tickworld.ai/internal/protocol"
)

// Tick builds a tick addressed to (and from) to, due delay seconds from now.
func Tick(to string, delay float64) protocol.Operation {
	op := protocol.NewOp("tick", to)
	op.From = to
	op.SetFutureSeconds(delay)
	return op
}

// TaskTick is a Tick routed to one of to's tasks.
func TaskTick(to, taskID string, delay float64) protocol.Operation {
	op := Tick(to, delay)
	op.Args = []protocol.Entity{protocol.NewEntity("", map[string]any{"task": taskID})}
	return op
}

// TaskOf returns the task id carried by a task tick.
func TaskOf(op protocol.Operation) (string, bool) {
	if op.Type != "tick" || len(op.Args) == 0 {
		return "", false
	}
	id, ok := op.Args[0].Str("task")
	return id, ok && id != ""
}

type item struct {
	due float64
	seq uint64
	op  protocol.Operation
}

type opHeap []item

func (h opHeap) Len() int { return len(h) }
func (h opHeap) Less(i, j int) bool {
	if h[i].due != h[j].due {
		return h[i].due < h[j].due
	}
	return h[i].seq < h[j].seq
}
func (h opHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *opHeap) Push(x any)   { *h = append(*h, x.(item)) }
func (h *opHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// Queue orders operations by due time, FIFO among equal times. It does not
// deduplicate: every pushed operation is popped exactly once.
type Queue struct {
	h   opHeap
	seq uint64
}

func NewQueue() *Queue { return &Queue{} }

// Push schedules op relative to now. The stored operation carries the absolute
// due time in seconds and no future_seconds.
func (q *Queue) Push(now float64, op protocol.Operation) float64 {
	delay, _ := op.FutureSeconds()
	if delay < 0 {
		delay = 0
	}
	due := now + delay
	op.SetSeconds(due)
	q.pushAt(due, op)
	return due
}

func (q *Queue) pushAt(due float64, op protocol.Operation) {
	q.seq++
	heap.Push(&q.h, item{due: due, seq: q.seq, op: op})
}

// PopDue removes and returns every operation due at or before now.
func (q *Queue) PopDue(now float64) []protocol.Operation {
	var out []protocol.Operation
	for len(q.h) > 0 && q.h[0].due <= now {
		it := heap.Pop(&q.h).(item)
		out = append(out, it.op)
	}
	return out
}

func (q *Queue) Len() int { return len(q.h) }

// NextDue is the earliest due time, if any.
func (q *Queue) NextDue() (float64, bool) {
	if len(q.h) == 0 {
		return 0, false
	}
	return q.h[0].due, true
}

// Pending returns the queued operations in delivery order without removing
// them.
func (q *Queue) Pending() []protocol.Operation {
	cp := make(opHeap, len(q.h))
	copy(cp, q.h)
	out := make([]protocol.Operation, 0, len(cp))
	for len(cp) > 0 {
		it := heap.Pop(&cp).(item)
		out = append(out, it.op.Clone())
	}
	return out
}

// Restore replaces the queue with ops, each due at its seconds stamp. The
// order of ops breaks ties.
func (q *Queue) Restore(ops []protocol.Operation) {
	q.h = q.h[:0]
	q.seq = 0
	for _, op := range ops {
		due, _ := op.Seconds()
		q.pushAt(due, op)
	}
}
