package sequence

import (
	"testing"

	"github.com/lgerste/chainopt/pkg/chain"
)

// twoAccOneMul builds the smallest complete plan: accumulate both elementals
// of a length-2 chain, multiply them.
func twoAccOneMul() *Sequence {
	s := New()
	s.Push(chain.Operation{Action: chain.ActionAccumulation, Mode: chain.ModeTangent, J: 0, K: 0, I: 0, FMA: 10})
	s.Push(chain.Operation{Action: chain.ActionAccumulation, Mode: chain.ModeAdjoint, J: 1, K: 1, I: 1, FMA: 20})
	s.Push(chain.Operation{Action: chain.ActionMultiplication, Mode: chain.ModeNone, J: 1, K: 0, I: 0, FMA: 5})
	return s
}

func TestDependencyQueries(t *testing.T) {
	s := twoAccOneMul()

	children := s.Children(2)
	if len(children) != 2 || children[0] != 0 || children[1] != 1 {
		t.Errorf("Children(mul) = %v, want [0 1]", children)
	}
	if got := s.Children(0); len(got) != 0 {
		t.Errorf("Children(acc) = %v, want none", got)
	}

	parent, ok := s.Parent(0)
	if !ok || parent != 2 {
		t.Errorf("Parent(0) = %d, %v; want 2, true", parent, ok)
	}
	if _, ok := s.Parent(2); ok {
		t.Error("terminal operation has a parent")
	}
}

func TestLevels(t *testing.T) {
	s := twoAccOneMul()
	if got := s.Level(2); got != 1 {
		t.Errorf("Level(mul) = %d, want 1", got)
	}
	if got := s.Level(0); got != 2 {
		t.Errorf("Level(acc) = %d, want 2", got)
	}
}

func TestEarliestStartAndMakespan(t *testing.T) {
	s := twoAccOneMul()

	// Schedule the accumulations side by side.
	s.At(0).Thread = 0
	s.At(0).StartTime = 0
	s.At(0).IsScheduled = true
	s.At(1).Thread = 1
	s.At(1).StartTime = 0
	s.At(1).IsScheduled = true

	if got := s.EarliestStart(2); got != 20 {
		t.Errorf("EarliestStart(mul) = %d, want 20", got)
	}

	s.At(2).Thread = 1
	s.At(2).StartTime = 20
	s.At(2).IsScheduled = true

	if got := s.Makespan(); got != 25 {
		t.Errorf("Makespan = %d, want 25", got)
	}
	if got := s.MakespanOn(0); got != 10 {
		t.Errorf("MakespanOn(0) = %d, want 10", got)
	}
	if got := s.MakespanOn(1); got != 25 {
		t.Errorf("MakespanOn(1) = %d, want 25", got)
	}
	if got := s.SequentialMakespan(); got != 35 {
		t.Errorf("SequentialMakespan = %d, want 35", got)
	}
}

func TestCriticalPath(t *testing.T) {
	s := twoAccOneMul()
	// Unscheduled: the heaviest accumulation followed by the multiplication.
	if got := s.CriticalPath(); got != 25 {
		t.Errorf("CriticalPath = %d, want 25", got)
	}
}

func TestCriticalPathRespectsStartTimes(t *testing.T) {
	s := twoAccOneMul()
	s.At(1).StartTime = 100
	if got := s.CriticalPath(); got != 125 {
		t.Errorf("CriticalPath = %d, want 125", got)
	}
}

func TestIsSchedulable(t *testing.T) {
	s := twoAccOneMul()
	if !s.IsSchedulable(0) {
		t.Error("accumulation with no dependencies not schedulable")
	}
	if s.IsSchedulable(2) {
		t.Error("multiplication schedulable before its inputs")
	}

	s.At(0).IsScheduled = true
	s.At(1).IsScheduled = true
	if !s.IsSchedulable(2) {
		t.Error("multiplication not schedulable after its inputs")
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := twoAccOneMul()
	clone := s.Clone()
	clone.At(0).FMA = 999

	if s.At(0).FMA != 10 {
		t.Error("mutation of clone leaked into the original")
	}
	if clone.Len() != s.Len() {
		t.Errorf("clone length %d, want %d", clone.Len(), s.Len())
	}
}

func TestPushPopStackDiscipline(t *testing.T) {
	s := New()
	s.Push(chain.Operation{Action: chain.ActionAccumulation, J: 0, K: 0, I: 0, FMA: 1})
	s.Push(chain.Operation{Action: chain.ActionAccumulation, J: 1, K: 1, I: 1, FMA: 2})

	popped := s.Pop()
	if popped.J != 1 {
		t.Errorf("popped J = %d, want 1", popped.J)
	}
	if s.Len() != 1 {
		t.Errorf("length after pop = %d, want 1", s.Len())
	}
}

func TestEliminationDependencies(t *testing.T) {
	s := New()
	s.Push(chain.Operation{Action: chain.ActionAccumulation, Mode: chain.ModeTangent, J: 0, K: 0, I: 0, FMA: 4})
	// Tangent elimination consumes the accumulated left half (0, 0).
	s.Push(chain.Operation{Action: chain.ActionElimination, Mode: chain.ModeTangent, J: 1, K: 0, I: 0, FMA: 8})
	// Adjoint elimination consumes the accumulated right half (2, 1).
	s.Push(chain.Operation{Action: chain.ActionElimination, Mode: chain.ModeAdjoint, J: 2, K: 0, I: 0, FMA: 6})

	if !s.At(1).DependsOn(s.At(0)) {
		t.Error("tangent elimination does not depend on its input")
	}
	if s.At(0).DependsOn(s.At(1)) {
		t.Error("dependency relation reversed")
	}

	// (2, 0) adjoint at k = 0 consumes (2, 1), which no listed operation
	// produces; it must not depend on (1, 0).
	if s.At(2).DependsOn(s.At(1)) {
		t.Error("adjoint elimination depends on the wrong half")
	}
}
