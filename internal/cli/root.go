package cli

import (
	"context"
	"fmt"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	version string // semantic version (e.g., "v1.2.3")
	commit  string // git commit SHA
	date    string // build timestamp
)

// SetVersion sets the version information displayed by --version. Typically
// called by the main package with values injected via ldflags.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// Execute runs the chainopt CLI and returns an error if any command fails.
//
// The historical invocation `chainopt <config> [output-dir]` still works:
// positional arguments on the root command are forwarded to solve. With no
// arguments the help (including the table of configuration keys) is printed.
func Execute(ctx context.Context) error {
	var verbose bool

	root := &cobra.Command{
		Use:          "chainopt [config] [output-dir]",
		Short:        "chainopt computes parallel evaluation schedules of Jacobian chains",
		Long: "chainopt generates random Jacobian chains and searches for provably good (and, for small inputs, optimal) " +
			"parallel evaluation schedules, combining a dynamic program over the subchain lattice with " +
			"branch-and-bound search and scheduling.\n\nConfiguration keys:\n" + configHelp(),
		Version:      version,
		SilenceUsage: true,
		Args:         cobra.MaximumNArgs(2),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := charmlog.InfoLevel
			if verbose {
				level = charmlog.DebugLevel
			}
			ctx := withLogger(cmd.Context(), newLogger(os.Stderr, level))
			cmd.SetContext(ctx)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return runSolve(cmd, args)
		},
	}

	root.SetVersionTemplate(fmt.Sprintf("chainopt %s\ncommit: %s\nbuilt: %s\n", version, commit, date))
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(newSolveCmd())
	root.AddCommand(newRenderCmd())

	return root.ExecuteContext(ctx)
}
