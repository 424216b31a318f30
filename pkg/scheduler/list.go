package scheduler

import (
	"cmp"

	"github.com/addrummond/heap"

	"github.com/lgerste/chainopt/pkg/sequence"
)

// PriorityList is a greedy list scheduler: operations are ordered by level
// (depth below the terminal operation) and work, and each is placed on the
// thread that lets it start earliest, preferring the smaller idle gap on
// ties. Runs in O(N log N + N*T) once the levels are known.
type PriorityList struct{}

// NewPriorityList returns the list scheduler.
func NewPriorityList() *PriorityList { return &PriorityList{} }

// listItem orders ready operations: deepest level first, then largest work,
// then lowest index so equal priorities pop deterministically.
type listItem struct {
	level int
	fma   uint64
	idx   int
}

func (a *listItem) Cmp(b *listItem) int {
	if c := cmp.Compare(a.level, b.level); c != 0 {
		return c
	}
	if c := cmp.Compare(a.fma, b.fma); c != 0 {
		return c
	}
	return cmp.Compare(b.idx, a.idx)
}

// Schedule implements [Scheduler]. The upper bound is ignored: the greedy
// pass always completes.
func (*PriorityList) Schedule(seq *sequence.Sequence, threads int, _ uint64) uint64 {
	if seq.Len() == 0 {
		return 0
	}
	usable := usableThreads(seq, threads)

	seq.ResetSchedule()

	var queue heap.Heap[listItem, heap.Max]
	for idx := 0; idx < seq.Len(); idx++ {
		heap.PushOrderable(&queue, listItem{level: seq.Level(idx), fma: seq.At(idx).FMA, idx: idx})
	}

	threadLoads := make([]uint64, usable)
	for {
		item, ok := heap.PopOrderable(&queue)
		if !ok {
			break
		}
		earliestStart := seq.EarliestStart(item.idx)

		op := seq.At(item.idx)
		op.Thread = 0
		op.StartTime = max(threadLoads[0], earliestStart)
		idleTime := op.StartTime - threadLoads[0]

		for t := 1; t < usable; t++ {
			startOnT := max(threadLoads[t], earliestStart)
			idleOnT := startOnT - threadLoads[t]

			if startOnT < op.StartTime || (startOnT == op.StartTime && idleOnT < idleTime) {
				op.Thread = t
				op.StartTime = startOnT
				idleTime = idleOnT
			}
		}

		threadLoads[op.Thread] = op.EndTime()
		op.IsScheduled = true
	}

	return seq.Makespan()
}
