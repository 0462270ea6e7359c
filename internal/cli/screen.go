package cli

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/mbd888/txinsight/internal/detect"
	"github.com/mbd888/txinsight/internal/server"
)

var (
	screenChain  string
	screenFrom   string
	screenTo     string
	screenValue  string
	screenData   string
	screenOrigin string
)

func init() {
	rootCmd.AddCommand(screenCmd)
	screenCmd.Flags().StringVar(&screenChain, "chain", "", "Chain id: hex, decimal or eip155:<n> (required)")
	screenCmd.Flags().StringVar(&screenFrom, "from", "", "Sending address (required)")
	screenCmd.Flags().StringVar(&screenTo, "to", "", "Destination address")
	screenCmd.Flags().StringVar(&screenValue, "value", "", "Value in wei, decimal or 0x hex")
	screenCmd.Flags().StringVar(&screenData, "data", "", "Calldata as 0x hex")
	screenCmd.Flags().StringVar(&screenOrigin, "origin", "", "URL of the requesting website")
	_ = screenCmd.MarkFlagRequired("chain")
	_ = screenCmd.MarkFlagRequired("from")
}

var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "Screen a pending transaction",
	Long: "Screens a transaction before signing. Ethereum and BNB Smart Chain get\n" +
		"transaction, destination and website screening; other chains get website\n" +
		"screening only.\n\n" +
		"Exit code 1 when screening could not be completed.",
	RunE: runScreen,
}

func runScreen(cmd *cobra.Command, args []string) error {
	value, err := weiQuantity(screenValue)
	if err != nil {
		return err
	}

	resp, err := newClient().ScreenTransaction(cmd.Context(), server.TransactionInsightRequest{
		ChainID: screenChain,
		Origin:  screenOrigin,
		Transaction: detect.Transaction{
			From:  screenFrom,
			To:    screenTo,
			Value: value,
			Data:  screenData,
		},
	})
	return printInsight(cmd.OutOrStdout(), resp, err)
}

// weiQuantity accepts a decimal or 0x-hex wei amount and returns the hex
// quantity the API expects.
func weiQuantity(s string) (string, error) {
	if s == "" || strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return "", fmt.Errorf("invalid value %q: want a non-negative wei amount", s)
	}
	return hexutil.EncodeBig(v), nil
}
