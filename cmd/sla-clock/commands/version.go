package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	// Skip logging and config setup.
	PersistentPreRun: func(cmd *cobra.Command, args []string) {},
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "sla-clock %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		return err
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
