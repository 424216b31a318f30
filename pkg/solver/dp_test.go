package solver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lgerste/chainopt/pkg/chain"
	"github.com/lgerste/chainopt/pkg/scheduler"
	"github.com/lgerste/chainopt/pkg/sequence"
)

func uniformChain(length, dim, edges int) *chain.JacobianChain {
	c := &chain.JacobianChain{}
	for k := 0; k < length; k++ {
		c.Elementals = append(c.Elementals, chain.NewElemental(k, dim, dim, edges, 1.0, 1.0))
	}
	c.InitSubchains()
	return c
}

func newDP(t *testing.T, c *chain.JacobianChain, opts Options) *DynamicProgramming {
	t.Helper()
	dp := NewDynamicProgramming()
	dp.Init(c, scheduler.NewPriorityList(), opts, nil)
	dp.Solve(context.Background())
	return dp
}

// A single 5x5 elemental with a cheap tangent: the optimum is one tangent
// accumulation.
func TestDPSingleElemental(t *testing.T) {
	c := &chain.JacobianChain{}
	c.Elementals = append(c.Elementals, chain.NewElemental(0, 5, 5, 100, 1.0, 3.0))
	c.InitSubchains()

	opts := DefaultOptions()
	opts.AvailableThreads = 1
	dp := newDP(t, c, opts)

	if got := dp.Cost(1); got != 500 {
		t.Errorf("Cost(1) = %d, want 500", got)
	}

	seq := dp.Sequence(1)
	if seq.Len() != 1 {
		t.Fatalf("sequence length = %d, want 1", seq.Len())
	}
	op := seq.At(0)
	if op.Action != chain.ActionAccumulation || op.Mode != chain.ModeTangent {
		t.Errorf("op = %s, want tangent accumulation", op)
	}
	if got := seq.Makespan(); got != 500 {
		t.Errorf("makespan = %d, want 500", got)
	}
}

// A 1x10 times 10x1 chain: adjoint-accumulate the thin side, tangent the
// other, multiply densely.
func TestDPThinChain(t *testing.T) {
	c := &chain.JacobianChain{}
	c.Elementals = append(c.Elementals, chain.NewElemental(0, 10, 1, 10, 1.0, 1.0))
	c.Elementals = append(c.Elementals, chain.NewElemental(1, 1, 10, 10, 1.0, 1.0))
	c.InitSubchains()

	opts := DefaultOptions()
	opts.AvailableThreads = 1
	dp := newDP(t, c, opts)

	if got := dp.Cost(1); got != 120 {
		t.Errorf("Cost(1) = %d, want 120", got)
	}

	seq := dp.Sequence(1)
	if seq.Len() != 3 {
		t.Fatalf("sequence length = %d, want 3", seq.Len())
	}
	if got := seq.Makespan(); got != 120 {
		t.Errorf("makespan = %d, want 120", got)
	}
}

// Two threads beat one on a chain of square elementals thanks to the
// parallel multiplication case.
func TestDPParallelMultiplication(t *testing.T) {
	chk := require.New(t)

	c := uniformChain(3, 2, 4)
	opts := DefaultOptions()
	opts.AvailableThreads = 2
	dp := newDP(t, c, opts)

	chk.Equal(uint64(40), dp.Cost(1))
	chk.Equal(uint64(32), dp.Cost(2))

	seq1 := dp.Sequence(1)
	seq2 := dp.Sequence(2)
	chk.Less(seq2.Makespan(), seq1.Makespan())

	// The scheduling post-pass may only improve the makespan.
	post := seq2.Clone()
	postMakespan := scheduler.NewBranchAndBound(nil).Schedule(post, 2, sequence.Infinity)
	chk.LessOrEqual(postMakespan, seq2.Makespan())
}

// A tape budget below every elemental forces a pure tangent plan even in the
// matrix-free regime.
func TestDPMemoryBoundForcesTangent(t *testing.T) {
	c := uniformChain(4, 3, 9)
	opts := DefaultOptions()
	opts.MatrixFree = true
	opts.AvailableMemory = 1
	opts.AvailableThreads = 1
	dp := newDP(t, c, opts)

	seq := dp.Sequence(1)
	if seq.Len() == 0 {
		t.Fatal("empty sequence")
	}
	for idx := 0; idx < seq.Len(); idx++ {
		if seq.At(idx).Mode == chain.ModeAdjoint {
			t.Errorf("adjoint operation emitted under a one-edge tape budget: %s", seq.At(idx))
		}
	}
}

// The sibling subproblems of a multiplication compose by sum when threads
// are a strict resource and by max under the unlimited model.
func TestTryMultiplicationSiblingComposition(t *testing.T) {
	build := func(threads int) *DynamicProgramming {
		c := &chain.JacobianChain{}
		c.Elementals = append(c.Elementals, chain.NewElemental(0, 10, 1, 10, 1.0, 1.0))
		c.Elementals = append(c.Elementals, chain.NewElemental(1, 1, 10, 10, 1.0, 1.0))
		c.InitSubchains()
		opts := DefaultOptions()
		opts.AvailableThreads = threads
		return newDP(t, c, opts)
	}

	// Strict resource: accumulations serialise, 10 + 10 + 100.
	if got := build(1).Cost(1); got != 120 {
		t.Errorf("strict-resource cost = %d, want 120", got)
	}

	// Unlimited: siblings run side by side, max(10, 10) + 100.
	if got := build(0).Cost(1); got != 110 {
		t.Errorf("unlimited cost = %d, want 110", got)
	}
}

// Every cell of the compacted (j, i, t) table must be distinct: the layers
// above t == 1 drop their diagonal entries.
func TestTableCompaction(t *testing.T) {
	c := uniformChain(4, 2, 4)
	opts := DefaultOptions()
	opts.AvailableThreads = 3
	dp := NewDynamicProgramming()
	dp.Init(c, scheduler.NewPriorityList(), opts, nil)

	seen := make(map[*dpNode][3]int)
	for tc := 1; tc <= 3; tc++ {
		for j := 0; j < 4; j++ {
			for i := 0; i <= j; i++ {
				if i == j && tc > 1 {
					continue // diagonal cells exist only at t == 1
				}
				cell := dp.node(j, i, tc)
				if prev, dup := seen[cell]; dup {
					t.Fatalf("cell (%d,%d,%d) aliases (%d,%d,%d)", j, i, tc, prev[0], prev[1], prev[2])
				}
				seen[cell] = [3]int{j, i, tc}
			}
		}
	}
	if len(seen) != len(dp.table) {
		t.Errorf("visited %d cells, table has %d", len(seen), len(dp.table))
	}
}

// In the matrix-free regime the emitted plan applies cleanly to a fresh
// chain and accumulates the whole Jacobian.
func TestDPMatrixFreeSequenceApplies(t *testing.T) {
	c := uniformChain(4, 2, 4)
	opts := DefaultOptions()
	opts.MatrixFree = true
	opts.AvailableThreads = 1
	dp := newDP(t, c, opts)

	seq := dp.Sequence(1)
	fresh := uniformChain(4, 2, 4)
	for idx := 0; idx < seq.Len(); idx++ {
		op := *seq.At(idx)
		if !fresh.Apply(&op) {
			t.Fatalf("op %d (%s) rejected by a fresh chain", idx, &op)
		}
	}
	if !fresh.At(3, 0).IsAccumulated {
		t.Error("plan did not accumulate the full chain")
	}
}

// Start times in the reconstructed schedule respect the dependency DAG.
func TestDPSequenceStartsAfterChildren(t *testing.T) {
	for _, threads := range []int{1, 2, 3} {
		c := uniformChain(4, 3, 9)
		opts := DefaultOptions()
		opts.AvailableThreads = threads
		dp := newDP(t, c, opts)

		seq := dp.Sequence(threads)
		for idx := 0; idx < seq.Len(); idx++ {
			if seq.At(idx).StartTime < seq.EarliestStart(idx) {
				t.Errorf("threads %d: op %d starts at %d before %d", threads, idx, seq.At(idx).StartTime, seq.EarliestStart(idx))
			}
		}
	}
}
