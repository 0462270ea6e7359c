package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the txinsight MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolScreenTransaction = mcp.NewTool("screen_transaction",
	mcp.WithDescription(
		"Screen a pending EVM transaction before it is signed. "+
			"Returns HashDit risk levels for the transaction, the destination address and the requesting website, "+
			"plus transfer details and a trace id. Full screening covers Ethereum and BNB Smart Chain mainnets; "+
			"other chains get URL screening only."),
	mcp.WithString("chain_id",
		mcp.Required(),
		mcp.Description("Chain id as hex (0x38), decimal (56) or CAIP-2 (eip155:56)")),
	mcp.WithString("from",
		mcp.Required(),
		mcp.Description("Sending address. It must have registered a key with the server.")),
	mcp.WithString("to",
		mcp.Description("Destination address. Omit for contract creation.")),
	mcp.WithString("value",
		mcp.Description("Native value in wei as a 0x hex quantity (e.g. '0xde0b6b3a7640000' for 1 token)")),
	mcp.WithString("data",
		mcp.Description("Calldata as 0x-prefixed hex")),
	mcp.WithString("origin",
		mcp.Description("URL of the website that requested the transaction")),
)

var ToolScreenSignature = mcp.NewTool("screen_signature",
	mcp.WithDescription(
		"Screen a pending signature request (personal_sign, eth_signTypedData) together with the requesting website."),
	mcp.WithString("chain_id",
		mcp.Required(),
		mcp.Description("Chain id as hex, decimal or CAIP-2")),
	mcp.WithString("address",
		mcp.Required(),
		mcp.Description("Signing address")),
	mcp.WithString("message",
		mcp.Required(),
		mcp.Description("Message or typed data being signed")),
	mcp.WithString("method",
		mcp.Description("Signing method, e.g. 'personal_sign'")),
	mcp.WithString("origin",
		mcp.Description("URL of the website that requested the signature")),
)

var ToolListChains = mcp.NewTool("list_chains",
	mcp.WithDescription(
		"List the chains the server knows, with native token, explorer and whether full screening is supported."),
)

var ToolKeyStatus = mcp.NewTool("key_status",
	mcp.WithDescription(
		"Check whether an address has registered its public key, which screening requires."),
	mcp.WithString("address",
		mcp.Required(),
		mcp.Description("Wallet address (e.g. '0x1234...')")),
)
