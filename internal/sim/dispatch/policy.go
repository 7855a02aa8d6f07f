package dispatch

import (
	"tickworld.ai/internal/protocol"
)

// Policy is how a handler answered an operation.
type Policy int

const (
	Handled Policy = iota
	Ignored
	Blocked
	Fault
)

func (p Policy) String() string {
	switch p {
	case Handled:
		return "handled"
	case Ignored:
		return "ignored"
	case Blocked:
		return "blocked"
	case Fault:
		return "fault"
	default:
		return "unknown"
	}
}

// Result is a handler's answer. The dispatcher drops Ops for Fault and for
// any result carrying Err; otherwise they are emitted whatever the policy.
type Result struct {
	Policy Policy
	Ops    protocol.OpList
	Err    error
}

func Emit(ops ...protocol.Operation) Result {
	return Result{Policy: Handled, Ops: protocol.Ops(ops...)}
}

// EmitList is Emit for an already assembled list.
func EmitList(l protocol.OpList) Result {
	return Result{Policy: Handled, Ops: l}
}

func Ignore() Result { return Result{Policy: Ignored} }

func IgnoreErr(err error) Result { return Result{Policy: Ignored, Err: err} }

// IgnoreWith emits ops but leaves the world's default processing in place.
func IgnoreWith(ops ...protocol.Operation) Result {
	return Result{Policy: Ignored, Ops: protocol.Ops(ops...)}
}

// Block answers the operation and suppresses the world's default processing.
func Block(ops ...protocol.Operation) Result {
	return Result{Policy: Blocked, Ops: protocol.Ops(ops...)}
}

func BlockErr(err error) Result { return Result{Policy: Blocked, Err: err} }

func Fail(err error) Result { return Result{Policy: Fault, Err: err} }
