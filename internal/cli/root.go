// Package cli implements the txinsight command line, a thin client of the
// screening API.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbd888/txinsight/internal/apiclient"
	"github.com/mbd888/txinsight/internal/presentation"
	"github.com/mbd888/txinsight/internal/server"
)

var (
	serverURL     string
	outputFormat  string
	clientTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "txinsight",
	Short: "Screen EVM transactions and signature requests with HashDit",
	Long: "Sends pending transactions and signature requests to a txinsight server\n" +
		"and prints the risk insights for the transaction, its destination and the\n" +
		"requesting website.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch outputFormat {
		case "text", "markdown", "json":
			return nil
		default:
			return fmt.Errorf("unknown format %q (text|markdown|json)", outputFormat)
		}
	},
}

func init() {
	defaultServer := os.Getenv("TXINSIGHT_SERVER")
	if defaultServer == "" {
		defaultServer = apiclient.DefaultAPIURL
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer, "txinsight server URL (env TXINSIGHT_SERVER)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "text", "Output format (text|markdown|json)")
	rootCmd.PersistentFlags().DurationVar(&clientTimeout, "timeout", 60*time.Second, "Request timeout")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newClient() *apiclient.Client {
	return apiclient.New(apiclient.Config{APIURL: serverURL, Timeout: clientTimeout})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printInsight writes an insight response in the selected format. A
// fallback presentation is printed before err is returned so the transfer
// details stay visible when screening fails.
func printInsight(w io.Writer, resp *server.InsightResponse, err error) error {
	if resp == nil {
		return err
	}
	var printErr error
	switch outputFormat {
	case "json":
		printErr = printJSON(w, resp)
	case "markdown":
		_, printErr = fmt.Fprint(w, resp.Markdown)
	default:
		if resp.Presentation != nil {
			printErr = presentation.Terminal(w, resp.Presentation)
		}
	}
	if err != nil {
		return fmt.Errorf("screening failed: %w", err)
	}
	return printErr
}
