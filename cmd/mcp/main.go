// txinsight MCP server - exposes transaction screening as MCP tools for LLMs
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/mbd888/txinsight/internal/apiclient"
	"github.com/mbd888/txinsight/internal/mcpserver"
)

// Version is set by ldflags.
var Version = "dev"

func main() {
	cfg := apiclient.Config{
		APIURL: envOrDefault("TXINSIGHT_API_URL", apiclient.DefaultAPIURL),
	}
	if v := os.Getenv("TXINSIGHT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid TXINSIGHT_TIMEOUT: %v\n", err)
			os.Exit(1)
		}
		cfg.Timeout = d
	}

	s := mcpserver.NewMCPServer(cfg, Version)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
