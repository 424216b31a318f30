// Package stats collects search statistics with relaxed atomic counters so
// parallel branches can report without contention.
package stats

import (
	"sync/atomic"

	charmlog "github.com/charmbracelet/log"
)

// Search counts pruned nodes per depth plus scheduled leaves and spawned
// tasks of one branch-and-bound solve.
type Search struct {
	prunes []atomic.Uint64
	leaves atomic.Uint64
	tasks  atomic.Uint64
}

// NewSearch returns counters for searches up to maxDepth operations deep.
func NewSearch(maxDepth int) *Search {
	return &Search{prunes: make([]atomic.Uint64, maxDepth+1)}
}

// Prune records a cut at the given depth.
func (s *Search) Prune(depth int) {
	if depth >= 0 && depth < len(s.prunes) {
		s.prunes[depth].Add(1)
	}
}

// Leaf records one fully accumulated sequence handed to a scheduler.
func (s *Search) Leaf() { s.leaves.Add(1) }

// Task records one spawned elimination-descent task.
func (s *Search) Task() { s.tasks.Add(1) }

// Leaves returns the number of scheduled leaves.
func (s *Search) Leaves() uint64 { return s.leaves.Load() }

// Tasks returns the number of spawned tasks.
func (s *Search) Tasks() uint64 { return s.tasks.Load() }

// Prunes returns the cut counts indexed by depth.
func (s *Search) Prunes() []uint64 {
	out := make([]uint64, len(s.prunes))
	for i := range s.prunes {
		out[i] = s.prunes[i].Load()
	}
	return out
}

// Log reports the counters at debug level.
func (s *Search) Log(logger *charmlog.Logger) {
	logger.Debug("search statistics", "tasks", s.Tasks(), "leaves", s.Leaves())
	for depth, count := range s.Prunes() {
		if count > 0 {
			logger.Debug("pruned branches", "depth", depth, "count", count)
		}
	}
}
