// Package solver contains the two optimization strategies over Jacobian
// chains: a dynamic program over the triangular subchain lattice and an
// exhaustive branch-and-bound search over elimination sequences. Both emit a
// [sequence.Sequence]; a [scheduler.Scheduler] assigns threads and start
// times.
package solver

import (
	charmlog "github.com/charmbracelet/log"

	"github.com/lgerste/chainopt/pkg/chain"
	"github.com/lgerste/chainopt/pkg/props"
	"github.com/lgerste/chainopt/pkg/scheduler"
)

// Options carries the solver configuration shared by both strategies.
type Options struct {
	// MatrixFree enables elimination operations.
	MatrixFree bool
	// Banded and Sparse are accepted and stored; the dense cost model does
	// not consume them.
	Banded bool
	Sparse bool
	// AvailableMemory bounds the tape size of adjoint-producing operations.
	// Zero means unlimited.
	AvailableMemory uint64
	// AvailableThreads is the thread budget of the evaluation. Zero means
	// unlimited.
	AvailableThreads int
	// TimeToSolve is the wall-clock budget of a branch-and-bound solve in
	// seconds. Negative means unlimited.
	TimeToSolve float64
}

// DefaultOptions returns the configuration of an unconstrained dense solve.
func DefaultOptions() Options {
	return Options{TimeToSolve: -1}
}

// Register adds the solver configuration keys to the registry.
func (o *Options) Register(p *props.Properties) {
	p.Bool(&o.MatrixFree, "matrix_free", "Whether we optimize the matrix-free problem.")
	p.Bool(&o.Banded, "banded", "Whether to assume that the Jacobians are banded.")
	p.Bool(&o.Sparse, "sparse", "Whether to assume that the Jacobians are sparse.")
	p.Uint64(&o.AvailableMemory, "available_memory", "Amount of available persistent memory.")
	p.Int(&o.AvailableThreads, "available_threads", "Amount of threads that are available for the evaluation of the Jacobian chain.")
	p.Float(&o.TimeToSolve, "time_to_solve", "Wall-clock budget in seconds for the branch-and-bound solver. Negative means unlimited.")
}

// base wires a solver to its chain, scheduler and logger.
type base struct {
	opts   Options
	chain  *chain.JacobianChain
	length int
	usable int
	sched  scheduler.Scheduler
	logger *charmlog.Logger
}

// init binds the solver to a chain. The usable thread count is capped at the
// chain length; zero stays zero (unlimited).
func (b *base) init(c *chain.JacobianChain, sched scheduler.Scheduler, opts Options, logger *charmlog.Logger) {
	b.opts = opts
	b.chain = c
	b.length = c.Length()
	b.usable = min(opts.AvailableThreads, b.length)
	b.sched = sched
	if logger == nil {
		logger = charmlog.Default()
	}
	b.logger = logger
}

// UsableThreads returns the capped thread count the solver plans for.
func (b *base) UsableThreads() int { return b.usable }
