package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbd888/txinsight/internal/apiclient"
	"github.com/mbd888/txinsight/internal/detect"
	"github.com/mbd888/txinsight/internal/server"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *apiclient.Client
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *apiclient.Client) *Handlers {
	return &Handlers{client: client}
}

// HandleScreenTransaction screens a transaction and returns the insights as
// markdown.
func (h *Handlers) HandleScreenTransaction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chainID := req.GetString("chain_id", "")
	from := req.GetString("from", "")
	if chainID == "" || from == "" {
		return mcp.NewToolResultError("chain_id and from are required"), nil
	}

	resp, err := h.client.ScreenTransaction(ctx, server.TransactionInsightRequest{
		ChainID: chainID,
		Origin:  req.GetString("origin", ""),
		Transaction: detect.Transaction{
			From:  from,
			To:    req.GetString("to", ""),
			Value: req.GetString("value", ""),
			Data:  req.GetString("data", ""),
		},
	})
	return insightResult(resp, err)
}

// HandleScreenSignature screens a signature request.
func (h *Handlers) HandleScreenSignature(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chainID := req.GetString("chain_id", "")
	address := req.GetString("address", "")
	message := req.GetString("message", "")
	if chainID == "" || address == "" || message == "" {
		return mcp.NewToolResultError("chain_id, address and message are required"), nil
	}

	resp, err := h.client.ScreenSignature(ctx, server.SignatureInsightRequest{
		ChainID: chainID,
		Origin:  req.GetString("origin", ""),
		Signature: detect.SignatureMeta{
			Address: address,
			Message: message,
			Method:  req.GetString("method", "personal_sign"),
		},
	})
	return insightResult(resp, err)
}

// insightResult shows a fallback presentation as text even when screening
// failed: it still carries the transfer details.
func insightResult(resp *server.InsightResponse, err error) (*mcp.CallToolResult, error) {
	var apiErr *apiclient.APIError
	switch {
	case err == nil:
		return mcp.NewToolResultText(resp.Markdown), nil
	case errors.As(err, &apiErr) && resp != nil:
		return mcp.NewToolResultText(fmt.Sprintf(
			"Screening could not be completed (%s). Treat this transaction as unverified.\n\n%s",
			apiErr.Message, resp.Markdown)), nil
	default:
		return mcp.NewToolResultError(fmt.Sprintf("Screening failed: %v", err)), nil
	}
}

// HandleListChains lists known chains.
func (h *Handlers) HandleListChains(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := h.client.ListChains(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list chains: %v", err)), nil
	}

	if len(list) == 0 {
		return mcp.NewToolResultText("No chains configured."), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Known chains (%d):\n\n", len(list))
	for _, c := range list {
		coverage := "URL screening only"
		if c.Supported {
			coverage = "full screening"
		}
		fmt.Fprintf(&sb, "- %s (%s): %s, %s\n", c.Name, c.ChainID, c.NativeToken, coverage)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleKeyStatus reports key registration for an address.
func (h *Handlers) HandleKeyStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address := req.GetString("address", "")
	if address == "" {
		return mcp.NewToolResultError("address is required"), nil
	}

	st, err := h.client.GetKeyStatus(ctx, address)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to check key status: %v", err)), nil
	}

	if !st.Registered {
		return mcp.NewToolResultText(fmt.Sprintf(
			"%s has not registered a key. Screening will only show setup instructions until it signs the registration message.",
			st.Address)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s is registered (updated %s).", st.Address, st.UpdatedAt)), nil
}
