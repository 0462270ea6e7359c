package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(chainsCmd)
}

var chainsCmd = &cobra.Command{
	Use:   "chains",
	Short: "List known chains and their screening coverage",
	RunE:  runChains,
}

func runChains(cmd *cobra.Command, args []string) error {
	list, err := newClient().ListChains(cmd.Context())
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		return printJSON(cmd.OutOrStdout(), list)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHAIN\tNAME\tTOKEN\tCOVERAGE")
	for _, c := range list {
		coverage := "url only"
		if c.Supported {
			coverage = "full"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.ChainID, c.Name, c.NativeToken, coverage)
	}
	return tw.Flush()
}
