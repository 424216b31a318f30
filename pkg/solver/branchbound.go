package solver

import (
	"context"
	"runtime"
	"sync/atomic"

	charmlog "github.com/charmbracelet/log"
	psg "github.com/petenewcomb/psg-go"

	"github.com/lgerste/chainopt/pkg/chain"
	"github.com/lgerste/chainopt/pkg/scheduler"
	"github.com/lgerste/chainopt/pkg/sequence"
	"github.com/lgerste/chainopt/pkg/stats"
	"github.com/lgerste/chainopt/pkg/timer"
)

// BranchAndBound searches exhaustively over pre-accumulation choices and
// elimination orderings. The outer recursion enumerates which elementals to
// pre-accumulate (their count per iteration, then their identities); once
// committed, each elimination descent runs as its own task over deep copies
// of the search state. Leaves hand the complete sequence to the scheduler;
// internal nodes prune on the critical-path lower bound against the shared
// best makespan.
type BranchAndBound struct {
	base

	deadline *timer.Timer
	search   *stats.Search

	// bound is the shared exclusive pruning bound: the best makespan found
	// so far (plus one when seeded, so an equal solution can replace the
	// seed). Branches lower it with a CAS loop; an equal solution never
	// replaces.
	bound atomic.Uint64

	upperBound     uint64
	seed           uint64
	seeded         bool
	best           *sequence.Sequence
	bestMakespan   uint64
	finishedInTime bool
}

// NewBranchAndBound returns a branch-and-bound solver sharing the given
// deadline with its scheduler. A nil deadline means unlimited.
func NewBranchAndBound(deadline *timer.Timer) *BranchAndBound {
	if deadline == nil {
		deadline = timer.New()
	}
	return &BranchAndBound{deadline: deadline, upperBound: sequence.Infinity}
}

// Init binds the solver to a chain.
func (s *BranchAndBound) Init(c *chain.JacobianChain, sched scheduler.Scheduler, opts Options, logger *charmlog.Logger) {
	s.init(c, sched, opts, logger)
	s.upperBound = sequence.Infinity
	s.seeded = false
	s.best = nil
	s.bestMakespan = sequence.Infinity
	s.finishedInTime = true
}

// SetUpperBound seeds the search with a known makespan U, typically the DP
// optimum. Internally U+1 is stored so a solution equal to U still replaces
// the seed (the seed carries no sequence).
func (s *BranchAndBound) SetUpperBound(upperBound uint64) {
	s.upperBound = upperBound + 1
	s.seed = upperBound
	s.seeded = true
}

// FinishedInTime reports whether the last Solve ran to exhaustion within
// the wall-clock budget.
func (s *BranchAndBound) FinishedInTime() bool { return s.finishedInTime }

// BestMakespan returns the makespan of the best solution known after Solve.
// When no leaf beat a seeded upper bound the seed itself is the best known
// solution; without a seed it is [sequence.Infinity].
func (s *BranchAndBound) BestMakespan() uint64 { return s.bestMakespan }

// branchResult is the outcome of one elimination-descent task.
type branchResult struct {
	seq      *sequence.Sequence
	makespan uint64
}

// branchFrame is the search state owned by one branch. Frames are deep
// copied at every task spawn; nothing mutable crosses a goroutine boundary.
type branchFrame struct {
	seq   *sequence.Sequence
	state *chain.JacobianChain
	elims []chain.Operation
}

func (f *branchFrame) clone() *branchFrame {
	return &branchFrame{
		seq:   f.seq.Clone(),
		state: f.state.Clone(),
		elims: append([]chain.Operation(nil), f.elims...),
	}
}

// Solve runs the search and returns the best sequence found, or nil when no
// solution at or below the seeded upper bound was found. The returned
// sequence is scheduled.
func (s *BranchAndBound) Solve(ctx context.Context) *sequence.Sequence {
	s.search = stats.NewSearch(s.chain.LongestPossibleSequence())
	s.bound.Store(s.upperBound)
	s.bestMakespan = s.upperBound
	s.deadline.SetTimer(s.opts.TimeToSolve)
	s.deadline.Start()

	pool := psg.NewPool(runtime.GOMAXPROCS(0))
	job := psg.NewJob(ctx, pool)
	defer job.Cancel()

	gather := psg.NewGather(func(_ context.Context, r branchResult, err error) error {
		if err == nil && r.seq != nil && r.makespan < s.bestMakespan {
			s.best = r.seq
			s.bestMakespan = r.makespan
		}
		return nil
	})

	accs := 0
	if !s.opts.MatrixFree {
		accs = s.length - 1
	}
	for accs++; accs <= s.length; accs++ {
		frame := &branchFrame{seq: sequence.New(), state: s.chain.Clone()}
		s.addAccumulation(ctx, gather, pool, frame, accs, 0)
	}

	_ = job.GatherAll(ctx)

	s.finishedInTime = s.deadline.FinishedInTime()
	s.search.Log(s.logger)
	if s.best == nil {
		s.bestMakespan = sequence.Infinity
		if s.seeded {
			s.bestMakespan = s.seed
		}
	}
	return s.best
}

// addAccumulation picks the remaining pre-accumulations in increasing index
// order. Once the configured count is committed the elimination descent is
// spawned as a task over a copy of the frame.
func (s *BranchAndBound) addAccumulation(ctx context.Context, gather *psg.Gather[branchResult], pool *psg.Pool, frame *branchFrame, accs, j int) {
	if s.deadline.Expired() {
		return
	}

	if accs > 0 {
		for ; j < s.length; j++ {
			op := s.cheapestAccumulation(j)
			if !frame.state.Apply(&op) {
				continue
			}

			frame.seq.Push(op)
			pushed := s.pushPossibleEliminations(frame.state, &frame.elims, op.J, op.I)

			s.addAccumulation(ctx, gather, pool, frame, accs-1, j+1)

			frame.elims = frame.elims[:len(frame.elims)-pushed]
			frame.seq.Pop()
			frame.state.Revert(&op)
		}
		return
	}

	task := frame.clone()
	s.search.Task()
	_ = gather.Scatter(ctx, pool, func(context.Context) (branchResult, error) {
		local := branchResult{makespan: sequence.Infinity}
		s.addElimination(task, 0, &local)
		return local, nil
	})
}

// addElimination descends over the ordered candidate list. A branch whose
// chain is fully accumulated is a leaf and goes to the scheduler; otherwise
// the critical path bounds the branch before descending.
func (s *BranchAndBound) addElimination(frame *branchFrame, elimIdx int, local *branchResult) {
	if s.deadline.Expired() {
		return
	}

	if frame.state.At(s.length-1, 0).IsAccumulated {
		s.scheduleLeaf(frame, local)
		return
	}

	if frame.seq.CriticalPath() >= s.bound.Load() {
		s.search.Prune(frame.seq.Len())
		return
	}

	for ; elimIdx < len(frame.elims); elimIdx++ {
		op := frame.elims[elimIdx]
		if !frame.state.Apply(&op) {
			continue
		}

		frame.seq.Push(op)
		pushed := s.pushPossibleEliminations(frame.state, &frame.elims, op.J, op.I)

		s.addElimination(frame, elimIdx+1, local)

		frame.elims = frame.elims[:len(frame.elims)-pushed]
		frame.seq.Pop()
		frame.state.Revert(&op)
	}
}

// scheduleLeaf schedules a copy of the complete sequence against the current
// bound, lowers the shared bound on improvement and keeps the branch-local
// best for the gather stage.
func (s *BranchAndBound) scheduleLeaf(frame *branchFrame, local *branchResult) {
	s.search.Leaf()

	work := frame.seq.Clone()
	makespan := s.sched.Schedule(work, s.usable, s.bound.Load())

	for {
		current := s.bound.Load()
		if makespan >= current {
			return
		}
		if s.bound.CompareAndSwap(current, makespan) {
			break
		}
	}

	if makespan < local.makespan {
		local.seq = work
		local.makespan = makespan
	}
}

// cheapestAccumulation picks the cheaper of tangent and adjoint for the
// elemental j; adjoint only qualifies when its tape fits the memory budget.
func (s *BranchAndBound) cheapestAccumulation(j int) chain.Operation {
	jac := s.chain.At(j, j)
	op := chain.Operation{
		Action: chain.ActionAccumulation,
		Mode:   chain.ModeTangent,
		J:      j,
		K:      j,
		I:      j,
		FMA:    jac.AccumulationFMA(chain.ModeTangent),
	}

	if s.opts.AvailableMemory == 0 || s.opts.AvailableMemory >= uint64(jac.EdgesInDAG) {
		if adjointFMA := jac.AccumulationFMA(chain.ModeAdjoint); adjointFMA < op.FMA {
			op.Mode = chain.ModeAdjoint
			op.FMA = adjointFMA
		}
	}

	return op
}

// pushPossibleEliminations appends the candidates enabled by the freshly
// accumulated (opJ, opI): at most one on the right (a multiplication with an
// already accumulated right partner, else a tangent elimination into the
// adjacent elemental) and symmetrically at most one on the left. Returns how
// many candidates were pushed so the caller can pop them on unwind.
func (s *BranchAndBound) pushPossibleEliminations(state *chain.JacobianChain, elims *[]chain.Operation, opJ, opI int) int {
	pushed := 0

	// Tangent or multiplication.
	if opJ < s.length-1 {
		k := opJ
		i := opI
		ki := state.At(k, i)

		found := false
		for j := s.length - 1; j >= k+1; j-- {
			jk := state.At(j, k+1)
			if !jk.IsAccumulated {
				continue
			}

			*elims = append(*elims, chain.Operation{
				Action: chain.ActionMultiplication,
				J:      j,
				K:      k,
				I:      i,
				FMA:    uint64(jk.M) * uint64(ki.M) * uint64(ki.N),
			})
			pushed++
			found = true
			break
		}

		if !found && s.opts.MatrixFree {
			j := k + 1
			jk := state.At(j, k+1)

			*elims = append(*elims, chain.Operation{
				Action: chain.ActionElimination,
				Mode:   chain.ModeTangent,
				J:      j,
				K:      k,
				I:      i,
				FMA:    jk.EliminationFMA(chain.ModeTangent, ki.N),
			})
			pushed++
		}
	}

	// Adjoint or multiplication.
	if opI > 0 {
		k := opI - 1
		j := opJ
		jk := state.At(j, k+1)

		found := false
		for i := 0; i <= k; i++ {
			ki := state.At(k, i)
			if !ki.IsAccumulated {
				continue
			}

			*elims = append(*elims, chain.Operation{
				Action: chain.ActionMultiplication,
				J:      j,
				K:      k,
				I:      i,
				FMA:    uint64(jk.M) * uint64(ki.M) * uint64(ki.N),
			})
			pushed++
			found = true
			break
		}

		if !found && s.opts.MatrixFree {
			i := k
			ki := state.At(k, i)

			if s.opts.AvailableMemory == 0 || s.opts.AvailableMemory >= uint64(ki.EdgesInDAG) {
				*elims = append(*elims, chain.Operation{
					Action: chain.ActionElimination,
					Mode:   chain.ModeAdjoint,
					J:      j,
					K:      k,
					I:      i,
					FMA:    ki.EliminationFMA(chain.ModeAdjoint, jk.M),
				})
				pushed++
			}
		}
	}

	return pushed
}
