package scheduler

import (
	"github.com/lgerste/chainopt/pkg/sequence"
	"github.com/lgerste/chainopt/pkg/timer"
)

// BranchAndBound finds a makespan-optimal thread assignment by depth-first
// enumeration over (operation, thread) choices in topological order. Partial
// states are pruned against the better of the average-load bound
// (idle + total work) / threads and the critical path. The search respects a
// wall-clock deadline; on expiry (or when the search cannot beat the upper
// bound) the sequence keeps the greedy list schedule computed up front. When
// the critical path already reaches the upper bound, Schedule returns the
// critical path and leaves the sequence unscheduled.
type BranchAndBound struct {
	fallback *PriorityList
	deadline *timer.Timer
}

// NewBranchAndBound returns a branch-and-bound scheduler sharing the given
// deadline. A nil deadline means unlimited.
func NewBranchAndBound(deadline *timer.Timer) *BranchAndBound {
	if deadline == nil {
		deadline = timer.New()
	}
	return &BranchAndBound{fallback: NewPriorityList(), deadline: deadline}
}

// bnbState carries the mutable search state of one Schedule call, keeping
// the scheduler itself stateless and safe for concurrent use.
type bnbState struct {
	seq         *sequence.Sequence
	work        *sequence.Sequence
	threadLoads []uint64
	sequential  uint64
	makespan    uint64
	idleTime    uint64
	best        uint64
	lowerBound  uint64
	deadline    *timer.Timer
	usable      int
}

// Schedule implements [Scheduler].
func (b *BranchAndBound) Schedule(seq *sequence.Sequence, threads int, upperBound uint64) uint64 {
	if seq.Len() == 0 {
		return 0
	}
	usable := usableThreads(seq, threads)

	work := seq.Clone()
	work.ResetSchedule()
	lowerBound := work.CriticalPath()
	if lowerBound >= upperBound {
		return lowerBound
	}

	// Greedy fallback first: the sequence always leaves with a complete
	// schedule, and the result seeds the bound.
	best := b.fallback.Schedule(seq, threads, upperBound)

	st := &bnbState{
		seq:         seq,
		work:        work,
		threadLoads: make([]uint64, usable),
		sequential:  work.SequentialMakespan(),
		best:        min(best, upperBound),
		lowerBound:  lowerBound,
		deadline:    b.deadline,
		usable:      usable,
	}
	st.descend()

	return st.best
}

// descend tries every (unscheduled ready operation, thread) pair, bounding
// each partial assignment. Returns true when the proven lower bound was
// reached and the search can stop.
func (st *bnbState) descend() bool {
	if st.deadline.Expired() {
		return true
	}

	everythingScheduled := true
	for opIdx := 0; opIdx < st.work.Len(); opIdx++ {
		op := st.work.At(opIdx)
		if op.IsScheduled {
			continue
		}
		everythingScheduled = false

		if !st.work.IsSchedulable(opIdx) {
			continue
		}

		op.IsScheduled = true
		triedEmptyThread := false
		earliestStart := st.work.EarliestStart(opIdx)

		for t := 0; t < st.usable; t++ {
			// All empty threads are interchangeable; trying one suffices.
			if st.threadLoads[t] == 0 {
				if triedEmptyThread {
					break
				}
				triedEmptyThread = true
			}

			startTime := max(st.threadLoads[t], earliestStart)
			op.StartTime = startTime

			oldThreadLoad := st.threadLoads[t]
			st.threadLoads[t] = startTime + op.FMA

			oldIdleTime := st.idleTime
			st.idleTime += startTime - oldThreadLoad

			oldMakespan := st.makespan
			st.makespan = max(st.makespan, st.threadLoads[t])

			bound := max(
				(st.idleTime+st.sequential)/uint64(st.usable),
				st.work.CriticalPath(),
			)

			if max(bound, st.makespan) < st.best {
				op.Thread = t
				if st.descend() {
					return true
				}
			}

			st.threadLoads[t] = oldThreadLoad
			st.idleTime = oldIdleTime
			st.makespan = oldMakespan
		}

		op.IsScheduled = false
	}

	if everythingScheduled && st.makespan < st.best {
		st.best = st.makespan
		for idx := 0; idx < st.seq.Len(); idx++ {
			src := st.work.At(idx)
			dst := st.seq.At(idx)
			dst.Thread = src.Thread
			dst.StartTime = src.StartTime
			dst.IsScheduled = true
		}
		if st.best <= st.lowerBound {
			return true
		}
	}

	return false
}
