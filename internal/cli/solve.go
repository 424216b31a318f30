package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	charmlog "github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lgerste/chainopt/pkg/chain"
	"github.com/lgerste/chainopt/pkg/errors"
	"github.com/lgerste/chainopt/pkg/export"
	"github.com/lgerste/chainopt/pkg/props"
	"github.com/lgerste/chainopt/pkg/scheduler"
	"github.com/lgerste/chainopt/pkg/sequence"
	"github.com/lgerste/chainopt/pkg/solver"
	"github.com/lgerste/chainopt/pkg/timer"
)

// configHelp renders the table of all configuration keys both registries
// recognise.
func configHelp() string {
	p := props.New()
	chain.NewGenerator().Register(p)
	opts := solver.DefaultOptions()
	opts.Register(p)
	return p.Help()
}

func newSolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "solve <config> [output-dir]",
		Short: "Generate Jacobian chains and compute optimized parallel schedules",
		Long: "Solve reads the configuration, generates random Jacobian chains, and for every chain " +
			"and thread count runs the dynamic-programming and branch-and-bound solvers with both " +
			"schedulers. Results are written as GraphML and DOT files plus a results.csv batch summary.\n\n" +
			"Configuration keys:\n" + configHelp(),
		Args: cobra.RangeArgs(1, 2),
		RunE: runSolve,
	}
}

func runSolve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)

	gen := chain.NewGenerator()
	genProps := props.New()
	gen.Register(genProps)

	opts := solver.DefaultOptions()
	solverProps := props.New()
	opts.Register(solverProps)

	// Both registries read the same file, each skipping the other's keys.
	configPath := args[0]
	if err := genProps.ParseFile(configPath, true); err != nil {
		return err
	}
	if err := solverProps.ParseFile(configPath, true); err != nil {
		return err
	}
	genProps.Echo(logger)
	solverProps.Echo(logger)

	outputDir := "."
	if len(args) > 1 {
		outputDir = args[1]
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return errors.Wrap(errors.CodeIO, err, "create output dir %s", outputDir)
	}

	runID := uuid.New()
	logger.Info("starting batch", "run", runID, "config", configPath)
	printInfo("writing results to %s", outputDir)

	csvFile, err := os.Create(filepath.Join(outputDir, "results.csv"))
	if err != nil {
		return errors.Wrap(errors.CodeIO, err, "create results.csv")
	}
	defer csvFile.Close()

	maxLength := 0
	for _, l := range gen.Lengths {
		maxLength = max(maxLength, l)
	}
	results := export.NewResultWriter(csvFile, maxLength)

	gen.InitRNG()
	total := 0
	var c chain.JacobianChain
	for gen.Next(&c) {
		total++
		track := newProgress(logger)
		spin := newSpinner(ctx, fmt.Sprintf("solving chain %d (length %d)", c.ID, c.Length()))
		spin.Start()

		row, best := solveChain(ctx, logger, &c, opts)

		spin.Stop()
		track.done(fmt.Sprintf("solved chain %d (length %d)", c.ID, c.Length()))

		printSuccess("chain %d/%d", c.Length(), c.ID)
		for t := 1; t < len(c.OptimizedCosts); t++ {
			printKeyValue(fmt.Sprintf("threads %d", t), fmt.Sprintf("makespan %d", c.OptimizedCosts[t]))
		}

		if err := results.Write(row); err != nil {
			return err
		}

		path, err := export.WriteGraphMLFile(outputDir, &c)
		if err != nil {
			return err
		}
		printFile(path)

		if best != nil {
			name := fmt.Sprintf("%d_%d", c.Length(), c.ID)
			path, err := export.WriteSequenceDOT(outputDir, name, best)
			if err != nil {
				return err
			}
			printFile(path)
		}
	}

	if err := results.Flush(); err != nil {
		return err
	}
	logger.Info("batch finished", "run", runID, "chains", total)
	return nil
}

// solveChain runs the full solver matrix on one chain: the DP table once,
// then per thread count both branch-and-bound variants seeded with the DP
// optimum. Returns the CSV row and the overall best sequence.
func solveChain(ctx context.Context, logger *charmlog.Logger, c *chain.JacobianChain, opts solver.Options) (export.ResultRow, *sequence.Sequence) {
	c.InitSubchains()
	length := c.Length()
	c.OptimizedCosts = make([]uint64, length+1)

	list := scheduler.NewPriorityList()

	dpOpts := opts
	dpOpts.AvailableThreads = length
	dp := solver.NewDynamicProgramming()
	dp.Init(c, list, dpOpts, logger)
	dp.Solve(ctx)

	row := export.ResultRow{Length: length, ID: c.ID}
	var best *sequence.Sequence
	bestMakespan := sequence.Infinity

	for t := 1; t <= length; t++ {
		var r export.ThreadResult

		dpSeq := dp.Sequence(t)
		r.DPMakespan = dpSeq.Makespan()

		postDeadline := timer.New()
		postDeadline.SetTimer(opts.TimeToSolve)
		postDeadline.Start()
		postSeq := dpSeq.Clone()
		r.DPBnBMakespan = scheduler.NewBranchAndBound(postDeadline).Schedule(postSeq, t, sequence.Infinity)

		bnbOpts := opts
		bnbOpts.AvailableThreads = t

		listSolver := solver.NewBranchAndBound(timer.New())
		listSolver.Init(c, list, bnbOpts, logger)
		listSolver.SetUpperBound(dp.Cost(t))
		listSeq := listSolver.Solve(ctx)
		r.BnBListMakespan = listSolver.BestMakespan()

		bnbDeadline := timer.New()
		bnbSolver := solver.NewBranchAndBound(bnbDeadline)
		bnbSolver.Init(c, scheduler.NewBranchAndBound(bnbDeadline), bnbOpts, logger)
		bnbSolver.SetUpperBound(dp.Cost(t))
		bnbSeq := bnbSolver.Solve(ctx)
		r.BnBBnBMakespan = bnbSolver.BestMakespan()
		r.BnBBnBFinished = bnbSolver.FinishedInTime()

		c.OptimizedCosts[t] = min(r.DPMakespan, r.DPBnBMakespan, r.BnBListMakespan, r.BnBBnBMakespan)

		for _, candidate := range []struct {
			seq      *sequence.Sequence
			makespan uint64
		}{
			{bnbSeq, r.BnBBnBMakespan},
			{listSeq, r.BnBListMakespan},
			{postSeq, r.DPBnBMakespan},
			{dpSeq, r.DPMakespan},
		} {
			if candidate.seq != nil && candidate.makespan < bestMakespan {
				best = candidate.seq
				bestMakespan = candidate.makespan
			}
		}

		row.Results = append(row.Results, r)
	}

	return row, best
}
