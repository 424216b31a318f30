// Package scheduler assigns a thread and start time to every operation of a
// sequence. Two implementations exist: a greedy priority-list scheduler and
// an optimal (but bounded) branch-and-bound scheduler. Solvers hold a shared
// read-only Scheduler reference; implementations are stateless with respect
// to a single Schedule call and therefore safe for concurrent use.
package scheduler

import "github.com/lgerste/chainopt/pkg/sequence"

// Scheduler assigns threads and start times to a sequence in place and
// returns the resulting makespan. upperBound is exclusive: a scheduler may
// give up as soon as it can prove no schedule beats it. threads == 0 means
// unlimited.
type Scheduler interface {
	Schedule(seq *sequence.Sequence, threads int, upperBound uint64) uint64
}

// usableThreads caps the requested thread count: a schedule can never keep
// more threads busy than the sequence has accumulations.
func usableThreads(seq *sequence.Sequence, threads int) int {
	usable := seq.Accumulations()
	if threads > 0 && threads < usable {
		usable = threads
	}
	return max(usable, 1)
}
