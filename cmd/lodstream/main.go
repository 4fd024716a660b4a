// Command lodstream inspects tree files and drives streaming sessions.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "lodstream",
		Short: "Out-of-core point cloud streaming",
		Long: `lodstream streams level-of-detail point cloud nodes into a fixed memory pool.

Commands:
  inspect   Print a tree file
  budget    Size the slot pool for a memory ratio
  stream    Run a session for a number of frames
  ply       Print a PLY header
  upload    Copy datasets to the configured remote store`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		inspectCmd(),
		budgetCmd(),
		streamCmd(),
		plyCmd(),
		uploadCmd(),
		versionCmd(),
	)

	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "lodstream %s (commit: %s)\n", version, commit)
		},
	}
}
