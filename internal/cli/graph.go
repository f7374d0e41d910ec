package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/canopyscan/canopy/pkg/export"
	"github.com/canopyscan/canopy/pkg/graph"
)

func newGraphCmd() *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "graph [file]",
		Short: "Render a resolved dependency graph as DOT or SVG",
		Long: `Render a previously resolved graph. The input is the JSON produced by
'canopy resolve'; reading from stdin is the default so the two commands
compose:

  canopy resolve | canopy graph -f svg -o deps.svg`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := readGraph(args)
			if err != nil {
				return err
			}

			dot := export.ToDOT(g)
			switch strings.ToLower(format) {
			case "dot":
				return writeOutput(output, func(w io.Writer) error {
					_, err := io.WriteString(w, dot)
					return err
				})
			case "svg":
				svg, err := export.RenderSVG(cmd.Context(), dot)
				if err != nil {
					return fmt.Errorf("render svg: %w", err)
				}
				return writeOutput(output, func(w io.Writer) error {
					_, err := w.Write(svg)
					return err
				})
			default:
				return fmt.Errorf("unknown format %q (want dot or svg)", format)
			}
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "dot", "output format: dot, svg")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (stdout if empty)")

	return cmd
}

func readGraph(args []string) (*graph.Graph, error) {
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return export.ReadJSON(f)
	}
	return export.ReadJSON(os.Stdin)
}
