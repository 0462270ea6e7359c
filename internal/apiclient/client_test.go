package apiclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/txinsight/internal/detect"
	"github.com/mbd888/txinsight/internal/presentation"
	"github.com/mbd888/txinsight/internal/server"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return New(Config{APIURL: ts.URL + "/"})
}

func TestScreenTransaction(t *testing.T) {
	var got server.TransactionInsightRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/insights/transaction", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		_ = json.NewEncoder(w).Encode(server.InsightResponse{
			Presentation: presentation.New(presentation.Section{Kind: presentation.KindTraceID, Heading: "HashDit Trace-ID"}),
			Markdown:     "## HashDit Trace-ID",
		})
	})

	resp, err := c.ScreenTransaction(context.Background(), server.TransactionInsightRequest{
		ChainID:     "0x38",
		Transaction: detect.Transaction{From: "0x1111111111111111111111111111111111111111"},
	})
	require.NoError(t, err)
	assert.Equal(t, "0x38", got.ChainID)
	assert.True(t, resp.Presentation.Has(presentation.KindTraceID))
	assert.Equal(t, "## HashDit Trace-ID", resp.Markdown)
}

func TestScreenTransaction_FallbackOnFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(server.InsightResponse{
			Presentation: presentation.New(presentation.Section{Kind: presentation.KindError}),
			Error:        "detection_failed",
			Message:      "upstream down",
		})
	})

	resp, err := c.ScreenTransaction(context.Background(), server.TransactionInsightRequest{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "detection_failed", apiErr.Code)
	require.NotNil(t, resp, "fallback presentation should be returned with the error")
	assert.True(t, resp.Presentation.Has(presentation.KindError))
}

func TestScreenSignature_ValidationError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"validation_failed","message":"signature.address: is required"}`))
	})

	resp, err := c.ScreenSignature(context.Background(), server.SignatureInsightRequest{})
	assert.Nil(t, resp)
	assert.EqualError(t, err, "API error (400): signature.address: is required")
}

func TestRegisterKeyAndStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/keys":
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"userAddress":"0xabc","publicKey":"04ff"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v1/keys/0xabc":
			_, _ = w.Write([]byte(`{"address":"0xabc","registered":true,"updatedAt":"2026-01-01T00:00:00Z"}`))
		default:
			http.NotFound(w, r)
		}
	})

	reg, err := c.RegisterKey(context.Background(), server.KeyRegistrationRequest{From: "0xabc", Message: "m", Signature: "0x00"})
	require.NoError(t, err)
	assert.Equal(t, "04ff", reg.PublicKey)

	st, err := c.GetKeyStatus(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.True(t, st.Registered)
}

func TestListChains(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"chains":[{"chainId":"0x38","name":"BNB Smart Chain Mainnet","nativeToken":"BNB","decimals":18,"explorerUrl":"https://bscscan.com/address/","supported":true}],"count":1}`))
	})

	list, err := c.ListChains(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "BNB", list[0].NativeToken)
	assert.True(t, list[0].Supported)
}

func TestHealth_Degraded(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"degraded","version":"dev","timestamp":"now"}`))
	})

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "degraded", h.Status)
}

func TestRequestFailure(t *testing.T) {
	c := New(Config{APIURL: "http://127.0.0.1:1"})
	_, err := c.ListChains(context.Background())
	assert.ErrorContains(t, err, "request failed")
}
