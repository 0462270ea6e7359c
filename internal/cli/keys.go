package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mbd888/txinsight/internal/server"
)

var (
	keysFrom      string
	keysMessage   string
	keysSignature string
)

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysStatusCmd, keysRegisterCmd)

	keysRegisterCmd.Flags().StringVar(&keysFrom, "from", "", "Address that signed the message (required)")
	keysRegisterCmd.Flags().StringVar(&keysMessage, "message", "", "Signed message (required)")
	keysRegisterCmd.Flags().StringVar(&keysSignature, "signature", "", "65-byte personal_sign signature as 0x hex (required)")
	_ = keysRegisterCmd.MarkFlagRequired("from")
	_ = keysRegisterCmd.MarkFlagRequired("message")
	_ = keysRegisterCmd.MarkFlagRequired("signature")
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage screening key registrations",
}

var keysStatusCmd = &cobra.Command{
	Use:   "status <address>",
	Short: "Show whether an address has registered a key",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysStatus,
}

var keysRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register the public key recovered from a signed message",
	RunE:  runKeysRegister,
}

func runKeysStatus(cmd *cobra.Command, args []string) error {
	st, err := newClient().GetKeyStatus(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if outputFormat == "json" {
		return printJSON(cmd.OutOrStdout(), st)
	}
	if !st.Registered {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: not registered\n", st.Address)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: registered (updated %s)\n", st.Address, st.UpdatedAt)
	return nil
}

func runKeysRegister(cmd *cobra.Command, args []string) error {
	reg, err := newClient().RegisterKey(cmd.Context(), server.KeyRegistrationRequest{
		From:      keysFrom,
		Message:   keysMessage,
		Signature: keysSignature,
	})
	if err != nil {
		return err
	}
	if outputFormat == "json" {
		return printJSON(cmd.OutOrStdout(), reg)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "registered %s\npublic key: %s\n", reg.UserAddress, reg.PublicKey)
	return nil
}
