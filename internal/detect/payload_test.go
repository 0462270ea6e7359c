package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/txinsight/internal/risk"
)

func TestAPIChainID(t *testing.T) {
	tests := []struct {
		in        string
		want      string
		wantKnown bool
	}{
		{"0x1", "1", true},
		{"0x38", "56", true},
		{"56", "56", true},
		{"eip155:1", "1", true},
		{"0x61", "56", false},
		{"0x89", "56", false},
		{"", "56", false},
		{"garbage", "56", false},
	}
	for _, tt := range tests {
		got, known := APIChainID(tt.in)
		assert.Equal(t, tt.want, got, "chain %q", tt.in)
		assert.Equal(t, tt.wantKnown, known, "chain %q", tt.in)
	}
}

func TestBuildPayload(t *testing.T) {
	tx := &Transaction{
		From:  "0x1111111111111111111111111111111111111111",
		To:    "0x2222222222222222222222222222222222222222",
		Value: "0x0",
		Data:  "0xa9059cbb",
	}

	tests := []struct {
		name string
		req  Request
		want string
	}{
		{
			name: "url detection",
			req:  Request{Business: risk.URLDetection, Origin: "https://x.io/?a=1&b=<2>"},
			want: `{"url":"https://x.io/?a=1&b=<2>"}`,
		},
		{
			name: "native transfer",
			req:  Request{Business: risk.NativeTransfer, ChainID: "0x38", Transaction: tx},
			want: `{"address":"0x2222222222222222222222222222222222222222","chain_id":"56"}`,
		},
		{
			name: "address labels",
			req:  Request{Business: risk.AddressLabels, ChainID: "0x1", Transaction: tx},
			want: `{"address":"0x2222222222222222222222222222222222222222","chain_id":"1"}`,
		},
		{
			name: "transaction request",
			req:  Request{Business: risk.TransactionRequest, ChainID: "0x1", Origin: "https://app.example", Transaction: tx},
			want: `{"address":"0x2222222222222222222222222222222222222222","chain_id":"1","trace_id":"trace-1",` +
				`"transaction":"{\"data\":\"0xa9059cbb\",\"from\":\"0x1111111111111111111111111111111111111111\",` +
				`\"to\":\"0x2222222222222222222222222222222222222222\",\"value\":\"0x0\"}","url":"https://app.example"}`,
		},
		{
			name: "signature request",
			req: Request{
				Business:  risk.SignatureRequest,
				ChainID:   "0x38",
				Origin:    "https://app.example",
				Signature: &SignatureMeta{Address: "0x1111111111111111111111111111111111111111", Message: "0xdeadbeef", Method: "eth_sign"},
			},
			want: `{"address":"0x1111111111111111111111111111111111111111","chain_id":"56","message":"0xdeadbeef",` +
				`"method":"eth_sign","trace_id":"trace-1","url":"https://app.example"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildPayload(tt.req, "trace-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestBuildPayload_Errors(t *testing.T) {
	_, err := BuildPayload(Request{Business: risk.NativeTransfer, ChainID: "0x1"}, "t")
	assert.ErrorIs(t, err, ErrMissingTransaction)

	_, err = BuildPayload(Request{Business: risk.TransactionRequest, ChainID: "0x1"}, "t")
	assert.ErrorIs(t, err, ErrMissingTransaction)

	_, err = BuildPayload(Request{Business: risk.SignatureRequest, ChainID: "0x1"}, "t")
	assert.ErrorIs(t, err, ErrMissingSignature)

	_, err = BuildPayload(Request{Business: "nope"}, "t")
	assert.ErrorIs(t, err, ErrUnknownBusiness)
}

func TestBuildPayload_UnsupportedChainFallsBack(t *testing.T) {
	tx := &Transaction{To: "0x2222222222222222222222222222222222222222"}
	got, err := BuildPayload(Request{Business: risk.NativeTransfer, ChainID: "0x89", Transaction: tx}, "t")
	require.NoError(t, err)
	assert.Contains(t, string(got), `"chain_id":"56"`)
}
