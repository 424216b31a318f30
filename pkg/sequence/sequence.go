// Package sequence implements the ordered operation container produced by
// the solvers and consumed by the schedulers. A Sequence preserves
// production order; the dependency DAG between operations is implicit in the
// produces/consumes relation on subchain ranges and queried on demand.
package sequence

import (
	"math"
	"strings"

	"github.com/gammazero/deque"

	"github.com/lgerste/chainopt/pkg/chain"
)

// Infinity is the makespan of an unsolved problem.
const Infinity = uint64(math.MaxUint64)

// Sequence is an ordered container of operations. Solvers append and pop at
// the back during search (stack discipline); schedulers mutate the
// scheduling fields in place. The invariant at any search node: every
// operation's dependencies either appear earlier in the sequence or are
// elemental Jacobians.
type Sequence struct {
	ops deque.Deque[*chain.Operation]
}

// New returns an empty sequence.
func New() *Sequence { return &Sequence{} }

// Len returns the number of operations.
func (s *Sequence) Len() int { return s.ops.Len() }

// At returns the operation at index idx. The pointer refers to the stored
// operation, so scheduling-field updates are visible to later queries.
func (s *Sequence) At(idx int) *chain.Operation { return s.ops.At(idx) }

// Push appends a copy of op at the back.
func (s *Sequence) Push(op chain.Operation) {
	s.ops.PushBack(&op)
}

// Pop removes and returns the last operation. Popping an empty sequence is a
// programming error and panics.
func (s *Sequence) Pop() chain.Operation {
	return *s.ops.PopBack()
}

// Back returns the last operation.
func (s *Sequence) Back() *chain.Operation { return s.ops.Back() }

// Clone returns a deep copy. Search branches clone their working sequence on
// task spawn so no operation is shared across goroutines.
func (s *Sequence) Clone() *Sequence {
	clone := &Sequence{}
	clone.ops.Grow(s.ops.Len())
	for idx := 0; idx < s.ops.Len(); idx++ {
		op := *s.ops.At(idx)
		clone.ops.PushBack(&op)
	}
	return clone
}

// Makespan returns the maximum end time over all scheduled operations.
func (s *Sequence) Makespan() uint64 {
	var makespan uint64
	for idx := 0; idx < s.Len(); idx++ {
		op := s.At(idx)
		if !op.IsScheduled {
			panic("sequence: makespan of an unscheduled operation")
		}
		makespan = max(makespan, op.EndTime())
	}
	return makespan
}

// MakespanOn returns the maximum end time over the operations assigned to
// one thread.
func (s *Sequence) MakespanOn(thread int) uint64 {
	var makespan uint64
	for idx := 0; idx < s.Len(); idx++ {
		op := s.At(idx)
		if op.Thread != thread {
			continue
		}
		if !op.IsScheduled {
			panic("sequence: makespan of an unscheduled operation")
		}
		makespan = max(makespan, op.EndTime())
	}
	return makespan
}

// SequentialMakespan returns the total work of the sequence, i.e. its
// makespan on a single thread.
func (s *Sequence) SequentialMakespan() uint64 {
	var cost uint64
	for idx := 0; idx < s.Len(); idx++ {
		cost += s.At(idx).FMA
	}
	return cost
}

// Children returns the indices of the operations whose results opIdx
// consumes.
func (s *Sequence) Children(opIdx int) []int {
	op := s.At(opIdx)
	var children []int
	for idx := 0; idx < s.Len(); idx++ {
		if op.DependsOn(s.At(idx)) {
			children = append(children, idx)
		}
	}
	return children
}

// Parent returns the index of the operation that consumes opIdx's result,
// or ok == false for the terminal operation.
func (s *Sequence) Parent(opIdx int) (parent int, ok bool) {
	op := s.At(opIdx)
	for idx := 0; idx < s.Len(); idx++ {
		if s.At(idx).DependsOn(op) {
			return idx, true
		}
	}
	return 0, false
}

// Level returns the scheduling priority of opIdx: the terminal operation has
// level 1, every other operation one more than its parent. Deep operations
// must run early, so higher levels are scheduled first.
func (s *Sequence) Level(opIdx int) int {
	if parent, ok := s.Parent(opIdx); ok {
		return s.Level(parent) + 1
	}
	return 1
}

// EarliestStart returns the earliest feasible start of opIdx under the
// current schedule: the maximum end time over the operations it consumes.
func (s *Sequence) EarliestStart(opIdx int) uint64 {
	op := s.At(opIdx)
	var start uint64
	for idx := 0; idx < s.Len(); idx++ {
		if other := s.At(idx); op.DependsOn(other) {
			start = max(start, other.EndTime())
		}
	}
	return start
}

// CriticalPath returns the longest chain of fma costs through the
// dependency DAG, respecting any start times already assigned. It is a lower
// bound on the makespan of any schedule of this sequence.
func (s *Sequence) CriticalPath() uint64 {
	var path uint64
	for idx := 0; idx < s.Len(); idx++ {
		path = max(path, s.criticalPathFrom(idx, 0))
	}
	return path
}

func (s *Sequence) criticalPathFrom(opIdx int, startTime uint64) uint64 {
	op := s.At(opIdx)
	startTime = max(startTime, op.StartTime)
	endTime := startTime + op.FMA
	if parent, ok := s.Parent(opIdx); ok {
		return s.criticalPathFrom(parent, endTime)
	}
	return endTime
}

// IsSchedulable reports whether every operation opIdx depends on has been
// scheduled already.
func (s *Sequence) IsSchedulable(opIdx int) bool {
	op := s.At(opIdx)
	for idx := 0; idx < s.Len(); idx++ {
		if other := s.At(idx); op.DependsOn(other) && !other.IsScheduled {
			return false
		}
	}
	return true
}

// IsScheduled reports whether every operation carries a valid schedule.
func (s *Sequence) IsScheduled() bool {
	for idx := 0; idx < s.Len(); idx++ {
		if !s.At(idx).IsScheduled {
			return false
		}
	}
	return true
}

// ResetSchedule clears the scheduling flag of every operation.
func (s *Sequence) ResetSchedule() {
	for idx := 0; idx < s.Len(); idx++ {
		s.At(idx).IsScheduled = false
	}
}

// Accumulations counts the accumulation operations; no schedule can keep
// more threads busy than that.
func (s *Sequence) Accumulations() int {
	count := 0
	for idx := 0; idx < s.Len(); idx++ {
		if s.At(idx).Action == chain.ActionAccumulation {
			count++
		}
	}
	return count
}

// String renders one operation per line in production order.
func (s *Sequence) String() string {
	var b strings.Builder
	for idx := 0; idx < s.Len(); idx++ {
		b.WriteString(s.At(idx).String())
		b.WriteByte('\n')
	}
	return b.String()
}
