package cli

import (
	"github.com/spf13/cobra"
)

// Version is set by ldflags in cmd/txinsight.
var Version = "dev"

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printJSON(cmd.OutOrStdout(), map[string]string{
			"version": Version,
			"name":    "txinsight",
		})
	},
}
