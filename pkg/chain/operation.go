package chain

import "fmt"

// Action distinguishes the three abstract operations a solver can emit.
type Action uint8

const (
	// ActionAccumulation materialises the elemental Jacobian j as a dense
	// matrix (j == k == i).
	ActionAccumulation Action = iota
	// ActionMultiplication is a dense product of the accumulated subchains
	// (j, k+1) and (k, i), with i <= k < j.
	ActionMultiplication
	// ActionElimination is a matrix-free application of one subchain to the
	// other: tangent mode applies (j, k+1) to the accumulated (k, i),
	// adjoint mode applies (k, i) to the accumulated (j, k+1).
	ActionElimination
)

// String returns a short action name for sequence listings.
func (a Action) String() string {
	switch a {
	case ActionAccumulation:
		return "ACC"
	case ActionMultiplication:
		return "MUL"
	case ActionElimination:
		return "ELI"
	default:
		return "???"
	}
}

// Operation is one abstract step of an evaluation plan. It produces the
// accumulated subchain (J, I); which matrices it consumes follows from the
// action and mode. The scheduling fields are filled in by a scheduler.
type Operation struct {
	Action Action
	Mode   Mode
	// J, K, I are the subchain indices. Accumulations have J == K == I;
	// multiplications and eliminations split (J, I) at K with I <= K < J.
	J, K, I int
	// FMA is the arithmetic work of this operation alone.
	FMA uint64

	// Thread and StartTime are assigned by a scheduler.
	Thread    int
	StartTime uint64
	// IsScheduled reports whether Thread and StartTime are valid.
	IsScheduled bool
}

// Result returns the subchain produced by the operation.
func (op *Operation) Result() (j, i int) { return op.J, op.I }

// EndTime returns StartTime + FMA. Only meaningful once scheduled.
func (op *Operation) EndTime() uint64 { return op.StartTime + op.FMA }

// Consumes reports whether the operation consumes the accumulated subchain
// (j, i). Accumulations consume nothing (they read the elemental function,
// not a materialised matrix). Multiplications consume both halves; a tangent
// elimination consumes the accumulated left half (K, I), an adjoint
// elimination the accumulated right half (J, K+1).
func (op *Operation) Consumes(j, i int) bool {
	switch op.Action {
	case ActionMultiplication:
		return (j == op.J && i == op.K+1) || (j == op.K && i == op.I)
	case ActionElimination:
		if op.Mode == ModeTangent {
			return j == op.K && i == op.I
		}
		return j == op.J && i == op.K+1
	default:
		return false
	}
}

// DependsOn reports whether other must run before op, i.e. op consumes the
// matrix other produces.
func (op *Operation) DependsOn(other *Operation) bool {
	return op.Consumes(other.J, other.I)
}

// String renders the operation the way sequence listings and DOT labels
// expect it, e.g. "ELI TAN (4, 2, 0) fma=120 t=1 s=500".
func (op *Operation) String() string {
	s := op.Action.String()
	if op.Mode != ModeNone {
		s += " " + op.Mode.String()
	}
	s += fmt.Sprintf(" (%d, %d, %d) fma=%d", op.J, op.K, op.I, op.FMA)
	if op.IsScheduled {
		s += fmt.Sprintf(" t=%d s=%d", op.Thread, op.StartTime)
	}
	return s
}
