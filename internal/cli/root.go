package cli

import (
	"context"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/canopyscan/canopy/pkg/buildinfo"
)

// Execute runs the canopy CLI and returns an error if any command fails.
//
// The function sets up the root command with all subcommands (resolve,
// graph, serve, cache, completion), configures logging based on the
// --verbose flag, and executes the command tree.
//
// Logging:
//   - Default: info level (logs to stderr)
//   - With --verbose (-v): debug level
//
// The logger is attached to the context and accessible to all commands
// via loggerFromContext.
func Execute(ctx context.Context) error {
	var verbose bool

	root := &cobra.Command{
		Use:          "canopy",
		Short:        "Canopy resolves JavaScript dependency graphs for compliance analysis",
		Long:         `Canopy resolves the full, de-duplicated dependency graph of a JavaScript/TypeScript project or yarn workspace, reconciling package manager output and installed module layouts into exact, cycle-free package identities for license and vulnerability analysis.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := charmlog.InfoLevel
			if verbose {
				level = charmlog.DebugLevel
			}
			ctx := withLogger(cmd.Context(), newLogger(os.Stderr, level))
			cmd.SetContext(ctx)
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(newResolveCmd())
	root.AddCommand(newGraphCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newCacheCmd())
	root.AddCommand(newCompletionCmd())

	return root.ExecuteContext(ctx)
}
