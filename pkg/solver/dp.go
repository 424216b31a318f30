package solver

import (
	"context"
	"runtime"

	charmlog "github.com/charmbracelet/log"
	psg "github.com/petenewcomb/psg-go"

	"github.com/lgerste/chainopt/pkg/chain"
	"github.com/lgerste/chainopt/pkg/scheduler"
	"github.com/lgerste/chainopt/pkg/sequence"
)

// dpNode is one cell of the (j, i, t) table: the cheapest known way to
// accumulate the subchain (j, i) with t threads, the operation that achieves
// it and, for parallel multiplications, how many of the t threads the right
// subproblem received (0 means the siblings run in serial).
type dpNode struct {
	op          chain.Operation
	cost        uint64
	threadSplit int
	visited     bool
}

// DynamicProgramming computes optimal bracketings of a Jacobian chain over
// every thread count up to the budget. Entries with the same subchain length
// and thread count are independent, so each (len, t) wave fans its right
// endpoints out over a task pool. Optimality holds for one thread and for
// unlimited threads; in between the reconstruction fixes sibling orderings
// and is typically post-passed by a scheduler.
type DynamicProgramming struct {
	base
	table []dpNode
}

// NewDynamicProgramming returns an uninitialised DP solver; call Init before
// Solve.
func NewDynamicProgramming() *DynamicProgramming {
	return &DynamicProgramming{}
}

// Init binds the solver to a chain and sizes the table. Pre-accumulation
// cells (i == j) exist only at t == 1, so the stacked triangular layers are
// compacted by L cells each.
func (s *DynamicProgramming) Init(c *chain.JacobianChain, sched scheduler.Scheduler, opts Options, logger *charmlog.Logger) {
	s.init(c, sched, opts, logger)

	nodes := s.length * (s.length + 1) / 2
	if s.usable > 0 {
		nodes *= s.usable
		nodes -= (s.usable - 1) * s.length
	}

	s.logger.Debug("dynamic programming table", "cells", nodes, "threads", s.usable)
	s.table = make([]dpNode, nodes)
	for idx := range s.table {
		s.table[idx].cost = sequence.Infinity
	}
}

// node returns the cell (j, i, t). The triangular base index is
// j*(j+1)/2 + i; layer t adds (t-1) full triangles minus the compaction
// term (t-2)*L + j for the diagonal cells the layers above t == 1 do not
// carry. Diagonal cells ignore t entirely.
func (s *DynamicProgramming) node(j, i, t int) *dpNode {
	idx := j*(j+1)/2 + i
	if s.usable > 0 && j != i {
		idx += (t - 1) * (s.length + 1) * s.length / 2
		if t >= 2 {
			idx -= (t-2)*s.length + j
		}
	}
	return &s.table[idx]
}

// Solve fills the table wave by wave and returns the reconstructed sequence
// for the full thread budget.
func (s *DynamicProgramming) Solve(ctx context.Context) *sequence.Sequence {
	pool := psg.NewPool(runtime.GOMAXPROCS(0))
	job := psg.NewJob(ctx, pool)
	defer job.Cancel()
	gather := psg.NewGather(func(context.Context, struct{}, error) error { return nil })

	// Accumulation costs.
	for j := 0; j < s.length; j++ {
		j := j
		_ = gather.Scatter(ctx, pool, func(context.Context) (struct{}, error) {
			s.tryAccumulation(j, chain.ModeTangent)
			s.tryAccumulation(j, chain.ModeAdjoint)
			return struct{}{}, nil
		})
	}
	_ = job.GatherAll(ctx)

	// Iterate over the amount of available threads. Zero means unlimited,
	// which needs exactly one pass.
	for t := 1; ; t++ {
		for length := 2; length <= s.length; length++ {
			// Cells with the same length and thread count are independent.
			for j := length - 1; j < s.length; j++ {
				j := j
				t := t
				length := length
				_ = gather.Scatter(ctx, pool, func(context.Context) (struct{}, error) {
					i := j - (length - 1)
					for k := i; k < j; k++ {
						s.tryMultiplication(j, i, k, t)

						if s.opts.MatrixFree {
							s.tryElimination(j, i, k, t, chain.ModeTangent)

							// Scan adjoint splits mirrored so the longest
							// adjoint elimination wins among equal costs,
							// which keeps the emitted sequence short.
							k2 := j - (k - i + 1)
							s.tryElimination(j, i, k2, t, chain.ModeAdjoint)
						}
					}
					return struct{}{}, nil
				})
			}
			_ = job.GatherAll(ctx)
		}
		if t >= s.usable {
			break
		}
	}

	return s.Sequence(s.usable)
}

// Cost returns the optimal accumulation cost of the full chain with t
// threads (t == 0 for the unlimited model).
func (s *DynamicProgramming) Cost(t int) uint64 {
	if s.usable == 0 {
		t = 0
	}
	node := s.node(s.length-1, 0, max(t, 1))
	if !node.visited {
		panic("solver: dynamic program has no solution for the terminal cell")
	}
	return node.cost
}

// Sequence reconstructs the operation sequence for the given thread count.
// The emitted schedule minimises the DP cost but fixes sibling orderings, so
// callers typically post-pass it through a scheduler.
func (s *DynamicProgramming) Sequence(threads int) *sequence.Sequence {
	seq := sequence.New()
	hi := threads - 1
	if s.usable == 0 {
		hi = 0
	}
	s.buildSequence(s.length-1, 0, threadWindow{0, hi}, seq, 0)
	return seq
}

// threadWindow is the contiguous range of thread ids a subproblem owns.
type threadWindow struct{ lo, hi int }

func (w threadWindow) size() int { return w.hi - w.lo + 1 }

func (s *DynamicProgramming) buildSequence(j, i int, window threadWindow, seq *sequence.Sequence, startTime uint64) uint64 {
	t := window.size()
	if s.usable == 0 {
		t = 1
	}
	node := s.node(j, i, t)
	if !node.visited {
		panic("solver: reconstruction reached an unvisited cell")
	}
	op := node.op

	switch op.Action {
	case chain.ActionAccumulation:
		op.Thread = window.lo
		if s.usable > 0 {
			op.StartTime = max(seq.MakespanOn(op.Thread), startTime)
		} else {
			op.StartTime = 0
		}

	case chain.ActionMultiplication:
		windowJK := window
		windowKI := window
		if node.threadSplit > 0 {
			windowKI.lo = window.lo + node.threadSplit
			windowJK.hi = windowKI.lo - 1
		}
		jkEnd := s.buildSequence(j, op.K+1, windowJK, seq, startTime)

		// threadSplit == 0 runs the siblings in serial, so the left
		// subproblem starts after the right one ends. The resulting
		// schedule can be suboptimal; rescheduling with branch and bound
		// as a post-processing step recovers it.
		if node.threadSplit == 0 {
			startTime = jkEnd
		}
		kiEnd := s.buildSequence(op.K, i, windowKI, seq, startTime)

		if jkEnd >= kiEnd {
			op.Thread = windowJK.lo
			op.StartTime = jkEnd
		} else {
			op.Thread = windowKI.lo
			op.StartTime = kiEnd
		}

	case chain.ActionElimination:
		var endTime uint64
		if op.Mode == chain.ModeTangent {
			endTime = s.buildSequence(op.K, i, window, seq, startTime)
		} else {
			endTime = s.buildSequence(j, op.K+1, window, seq, startTime)
		}
		op.Thread = window.lo
		op.StartTime = endTime

	default:
		panic("solver: invalid action in dynamic programming table")
	}

	op.IsScheduled = true
	seq.Push(op)
	return seq.Back().EndTime()
}

// tryAccumulation relaxes the diagonal cell (j, j) with a tangent or adjoint
// pre-accumulation. Adjoint is rejected when its tape exceeds the memory
// budget.
func (s *DynamicProgramming) tryAccumulation(j int, mode chain.Mode) {
	jac := s.chain.At(j, j)
	if mode == chain.ModeAdjoint && s.opts.AvailableMemory > 0 {
		if uint64(jac.EdgesInDAG) > s.opts.AvailableMemory {
			return
		}
	}

	fma := jac.AccumulationFMA(mode)
	node := s.node(j, j, 1)
	if fma < node.cost {
		node.op = chain.Operation{
			Action: chain.ActionAccumulation,
			Mode:   mode,
			J:      j,
			K:      j,
			I:      j,
			FMA:    fma,
		}
		node.cost = fma
		node.threadSplit = 0
		node.visited = true
	}
}

// tryMultiplication relaxes (j, i, t) with the dense product of (j, k+1) and
// (k, i). The siblings either share the t threads in serial or split them;
// with an unlimited budget they are free to run side by side.
func (s *DynamicProgramming) tryMultiplication(j, i, k, t int) {
	var cost uint64
	threadSplit := 0

	{
		jk := s.node(j, k+1, t)
		ki := s.node(k, i, t)
		if !jk.visited || !ki.visited {
			panic("solver: multiplication depends on an unvisited cell")
		}

		if s.usable > 0 {
			cost = jk.cost + ki.cost
		} else {
			cost = max(jk.cost, ki.cost)
		}
	}

	if t > 1 {
		for t1 := 1; t1 < t; t1++ {
			jk := s.node(j, k+1, t1)
			ki := s.node(k, i, t-t1)
			if !jk.visited || !ki.visited {
				panic("solver: multiplication depends on an unvisited cell")
			}

			if c := max(jk.cost, ki.cost); c < cost {
				cost = c
				threadSplit = t1
			}
		}
	}

	fma := uint64(s.chain.Elementals[j].M) *
		uint64(s.chain.Elementals[k].M) *
		uint64(s.chain.Elementals[i].N)
	cost += fma

	node := s.node(j, i, t)
	if cost < node.cost {
		node.op = chain.Operation{
			Action: chain.ActionMultiplication,
			Mode:   chain.ModeNone,
			J:      j,
			K:      k,
			I:      i,
			FMA:    fma,
		}
		node.cost = cost
		node.threadSplit = threadSplit
		node.visited = true
	}
}

// tryElimination relaxes (j, i, t) with a matrix-free elimination at split
// k: tangent applies the subchain (j, k+1) to the accumulated (k, i),
// adjoint applies (k, i) to the accumulated (j, k+1). Adjoint is rejected
// when the subchain tape exceeds the memory budget.
func (s *DynamicProgramming) tryElimination(j, i, k, t int, mode chain.Mode) {
	var cost, fma uint64
	if mode == chain.ModeAdjoint {
		ki := s.chain.At(k, i)
		if s.opts.AvailableMemory > 0 && uint64(ki.EdgesInDAG) > s.opts.AvailableMemory {
			return
		}

		jk := s.node(j, k+1, t)
		if !jk.visited {
			panic("solver: elimination depends on an unvisited cell")
		}
		fma = ki.EliminationFMA(mode, s.chain.Elementals[j].M)
		cost = jk.cost + fma
	} else {
		ki := s.node(k, i, t)
		if !ki.visited {
			panic("solver: elimination depends on an unvisited cell")
		}
		fma = s.chain.At(j, k+1).EliminationFMA(mode, s.chain.Elementals[i].N)
		cost = ki.cost + fma
	}

	node := s.node(j, i, t)
	if cost < node.cost {
		node.op = chain.Operation{
			Action: chain.ActionElimination,
			Mode:   mode,
			J:      j,
			K:      k,
			I:      i,
			FMA:    fma,
		}
		node.cost = cost
		node.threadSplit = 0
		node.visited = true
	}
}
