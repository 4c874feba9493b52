package commands

import (
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the dbusd version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.Printf("dbusd %s (commit %s, built %s)\n", Version, Commit, Date)
		return nil
	},
}
