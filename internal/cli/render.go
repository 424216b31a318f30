package cli

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lgerste/chainopt/pkg/errors"
	"github.com/lgerste/chainopt/pkg/export"
)

func newRenderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "render <sequence.dot> [output.svg]",
		Short: "Render an emitted sequence DOT file to SVG",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dotPath := args[0]
			svgPath := strings.TrimSuffix(dotPath, ".dot") + ".svg"
			if len(args) > 1 {
				svgPath = args[1]
			}

			out, err := os.Create(svgPath)
			if err != nil {
				return errors.Wrap(errors.CodeIO, err, "create %s", svgPath)
			}
			defer out.Close()

			if err := export.RenderSVGFile(cmd.Context(), dotPath, out); err != nil {
				return err
			}
			printFile(svgPath)
			return nil
		},
	}
}
