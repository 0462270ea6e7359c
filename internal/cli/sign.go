package cli

import (
	"github.com/spf13/cobra"

	"github.com/mbd888/txinsight/internal/detect"
	"github.com/mbd888/txinsight/internal/server"
)

var (
	signChain   string
	signAddress string
	signMessage string
	signMethod  string
	signOrigin  string
)

func init() {
	rootCmd.AddCommand(signCmd)
	signCmd.Flags().StringVar(&signChain, "chain", "", "Chain id (required)")
	signCmd.Flags().StringVar(&signAddress, "address", "", "Signing address (required)")
	signCmd.Flags().StringVar(&signMessage, "message", "", "Message or typed data being signed (required)")
	signCmd.Flags().StringVar(&signMethod, "method", "personal_sign", "Signing method")
	signCmd.Flags().StringVar(&signOrigin, "origin", "", "URL of the requesting website")
	_ = signCmd.MarkFlagRequired("chain")
	_ = signCmd.MarkFlagRequired("address")
	_ = signCmd.MarkFlagRequired("message")
}

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Screen a pending signature request",
	RunE:  runSign,
}

func runSign(cmd *cobra.Command, args []string) error {
	resp, err := newClient().ScreenSignature(cmd.Context(), server.SignatureInsightRequest{
		ChainID: signChain,
		Origin:  signOrigin,
		Signature: detect.SignatureMeta{
			Address: signAddress,
			Message: signMessage,
			Method:  signMethod,
		},
	})
	return printInsight(cmd.OutOrStdout(), resp, err)
}
