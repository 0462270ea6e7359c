package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/txinsight/internal/apiclient"
	"github.com/mbd888/txinsight/internal/presentation"
	"github.com/mbd888/txinsight/internal/server"
)

// --- Test helpers ---

func newTestSetup(t *testing.T, handler http.Handler) *Handlers {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return NewHandlers(apiclient.New(apiclient.Config{APIURL: ts.URL}))
}

func makeRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	if args == nil {
		args = map[string]any{}
	}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content block")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

func TestScreenTransaction_Success(t *testing.T) {
	var got server.TransactionInsightRequest
	h := newTestSetup(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		_ = json.NewEncoder(w).Encode(server.InsightResponse{
			Presentation: presentation.New(),
			Markdown:     "## HashDit Transaction Screening\n\n**Overall risk:** _Low Risk_",
		})
	}))

	result, err := h.HandleScreenTransaction(context.Background(), makeRequest(map[string]any{
		"chain_id": "56",
		"from":     "0x1111111111111111111111111111111111111111",
		"to":       "0x2222222222222222222222222222222222222222",
		"value":    "0xde0b6b3a7640000",
		"origin":   "https://pancakeswap.finance",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Low Risk")

	assert.Equal(t, "56", got.ChainID)
	assert.Equal(t, "0xde0b6b3a7640000", got.Transaction.Value)
	assert.Equal(t, "https://pancakeswap.finance", got.Origin)
}

func TestScreenTransaction_MissingArgs(t *testing.T) {
	h := newTestSetup(t, http.NotFoundHandler())

	result, err := h.HandleScreenTransaction(context.Background(), makeRequest(map[string]any{"chain_id": "0x38"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "required")
}

func TestScreenTransaction_Fallback(t *testing.T) {
	h := newTestSetup(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(server.InsightResponse{
			Presentation: presentation.New(presentation.Section{Kind: presentation.KindError}),
			Markdown:     "## Transfer Details",
			Error:        "detection_failed",
			Message:      "upstream returned 500",
		})
	}))

	result, err := h.HandleScreenTransaction(context.Background(), makeRequest(map[string]any{
		"chain_id": "0x38",
		"from":     "0x1111111111111111111111111111111111111111",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	text := resultText(t, result)
	assert.Contains(t, text, "upstream returned 500")
	assert.Contains(t, text, "Transfer Details")
}

func TestScreenTransaction_ServerDown(t *testing.T) {
	h := NewHandlers(apiclient.New(apiclient.Config{APIURL: "http://127.0.0.1:1"}))

	result, err := h.HandleScreenTransaction(context.Background(), makeRequest(map[string]any{
		"chain_id": "0x38",
		"from":     "0x1111111111111111111111111111111111111111",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestScreenSignature_DefaultsMethod(t *testing.T) {
	var got server.SignatureInsightRequest
	h := newTestSetup(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"markdown":"## HashDit Signature Insights"}`))
	}))

	result, err := h.HandleScreenSignature(context.Background(), makeRequest(map[string]any{
		"chain_id": "0x1",
		"address":  "0x1111111111111111111111111111111111111111",
		"message":  "hello",
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Signature")
	assert.Equal(t, "personal_sign", got.Signature.Method)
}

func TestListChains(t *testing.T) {
	h := newTestSetup(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chains", r.URL.Path)
		_, _ = w.Write([]byte(`{"chains":[
			{"chainId":"0x1","name":"Ethereum Mainnet","nativeToken":"ETH","decimals":18,"supported":true},
			{"chainId":"0x89","name":"Polygon Mainnet","nativeToken":"POL","decimals":18,"supported":false}
		],"count":2}`))
	}))

	result, err := h.HandleListChains(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, "Known chains (2)")
	assert.Contains(t, text, "Ethereum Mainnet (0x1): ETH, full screening")
	assert.Contains(t, text, "Polygon Mainnet (0x89): POL, URL screening only")
}

func TestKeyStatus(t *testing.T) {
	h := newTestSetup(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"address":"0xabc","registered":false}`))
	}))

	result, err := h.HandleKeyStatus(context.Background(), makeRequest(map[string]any{"address": "0xabc"}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "has not registered a key")

	result, err = h.HandleKeyStatus(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestNewMCPServer(t *testing.T) {
	s := NewMCPServer(apiclient.Config{APIURL: "http://localhost:8080"}, "test")
	require.NotNil(t, s)
}
