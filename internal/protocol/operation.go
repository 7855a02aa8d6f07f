package protocol

import (
	"encoding/json"
	"fmt"
)

// Operation is a typed message addressed to an entity. Args order is
// significant. To/From use "" as the unset value; entity ids are never empty.
// The optional numeric fields are only reachable through comma-ok accessors so
// an unset field can't be confused with a valid zero.
type Operation struct {
	Type string
	Args []Entity
	To   string
	From string

	serialNo      *int64
	refNo         *int64
	seconds       *float64
	futureSeconds *float64
}

func NewOp(typ, to string, args ...Entity) Operation {
	return Operation{Type: typ, To: to, Args: args}
}

// Len is the argument count.
func (op Operation) Len() int { return len(op.Args) }

// Arg returns args[i], or an error wrapping ErrMissingArgument.
func (op Operation) Arg(i int) (Entity, error) {
	if i < 0 || i >= len(op.Args) {
		return Entity{}, fmt.Errorf("%s op arg %d: %w", op.Type, i, ErrMissingArgument)
	}
	return op.Args[i], nil
}

func (op Operation) SerialNo() (int64, bool) { return derefInt(op.serialNo) }
func (op Operation) RefNo() (int64, bool)    { return derefInt(op.refNo) }

func (op *Operation) SetSerialNo(n int64) { op.serialNo = &n }
func (op *Operation) SetRefNo(n int64)    { op.refNo = &n }

func (op Operation) Seconds() (float64, bool)       { return derefFloat(op.seconds) }
func (op Operation) FutureSeconds() (float64, bool) { return derefFloat(op.futureSeconds) }

// SetSeconds sets the absolute delivery time and drops any relative one.
func (op *Operation) SetSeconds(s float64) {
	op.seconds = &s
	op.futureSeconds = nil
}

// SetFutureSeconds sets a delivery offset and drops any absolute time.
func (op *Operation) SetFutureSeconds(s float64) {
	op.futureSeconds = &s
	op.seconds = nil
}

func (op Operation) Clone() Operation {
	out := op
	if op.Args != nil {
		out.Args = make([]Entity, len(op.Args))
		for i, a := range op.Args {
			out.Args[i] = a.Clone()
		}
	}
	if n, ok := op.SerialNo(); ok {
		out.SetSerialNo(n)
	}
	if n, ok := op.RefNo(); ok {
		out.SetRefNo(n)
	}
	if s, ok := op.Seconds(); ok {
		out.seconds = &s
	}
	if s, ok := op.FutureSeconds(); ok {
		out.futureSeconds = &s
	}
	return out
}

func (op Operation) String() string {
	return fmt.Sprintf("%s(%d args) %s->%s", op.Type, len(op.Args), op.From, op.To)
}

type wireOp struct {
	Type          string   `json:"type"`
	Args          []Entity `json:"args,omitempty"`
	To            string   `json:"to,omitempty"`
	From          string   `json:"from,omitempty"`
	SerialNo      *int64   `json:"serialno,omitempty"`
	RefNo         *int64   `json:"refno,omitempty"`
	Seconds       *float64 `json:"seconds,omitempty"`
	FutureSeconds *float64 `json:"future_seconds,omitempty"`
}

func (op Operation) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireOp{
		Type:          op.Type,
		Args:          op.Args,
		To:            op.To,
		From:          op.From,
		SerialNo:      op.serialNo,
		RefNo:         op.refNo,
		Seconds:       op.seconds,
		FutureSeconds: op.futureSeconds,
	})
}

func (op *Operation) UnmarshalJSON(b []byte) error {
	var w wireOp
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if w.Seconds != nil && w.FutureSeconds != nil {
		return fmt.Errorf("operation %q: both seconds and future_seconds set", w.Type)
	}
	*op = Operation{
		Type:          w.Type,
		Args:          w.Args,
		To:            w.To,
		From:          w.From,
		serialNo:      w.SerialNo,
		refNo:         w.RefNo,
		seconds:       w.Seconds,
		futureSeconds: w.FutureSeconds,
	}
	return nil
}

// OpList is the ordered set of operations one input produced. Empty means the
// input was fully absorbed.
type OpList []Operation

func Ops(ops ...Operation) OpList {
	return append(OpList(nil), ops...)
}

// Concat flattens lists in order into a fresh list; inputs are never aliased.
func Concat(lists ...OpList) OpList {
	n := 0
	for _, l := range lists {
		n += len(l)
	}
	if n == 0 {
		return nil
	}
	out := make(OpList, 0, n)
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

func (l OpList) Append(ops ...Operation) OpList {
	return Concat(l, OpList(ops))
}

func (l OpList) Types() []string {
	out := make([]string, len(l))
	for i, op := range l {
		out[i] = op.Type
	}
	return out
}

func derefInt(p *int64) (int64, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}

func derefFloat(p *float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}
