package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/txinsight/internal/circuitbreaker"
	"github.com/mbd888/txinsight/internal/config"
	"github.com/mbd888/txinsight/internal/detect"
	"github.com/mbd888/txinsight/internal/identity"
	"github.com/mbd888/txinsight/internal/presentation"
	"github.com/mbd888/txinsight/internal/risk"
	"github.com/mbd888/txinsight/internal/snapstate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	userAddr     = "0x1111111111111111111111111111111111111111"
	eoaAddr      = "0x2222222222222222222222222222222222222222"
	contractAddr = "0x3333333333333333333333333333333333333333"
)

// mockFetcher returns canned upstream data per business type.
type mockFetcher struct {
	mu    sync.Mutex
	data  map[risk.BusinessType]string
	err   error
	calls []risk.BusinessType
}

func (m *mockFetcher) FetchRisk(_ context.Context, req detect.Request) (*risk.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req.Business)
	if m.err != nil {
		return nil, m.err
	}
	data := m.data[req.Business]
	if data == "" {
		data = "{}"
	}
	r := risk.Normalize(req.Business, json.RawMessage(data), "trace-"+string(req.Business))
	return &r, nil
}

func (m *mockFetcher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// mockCode treats contractAddr as the only contract.
type mockCode struct{}

func (mockCode) Has(string) bool { return true }

func (mockCode) CodeAt(_ context.Context, _, address string) ([]byte, error) {
	if address == contractAddr {
		return []byte{0x60, 0x80}, nil
	}
	return nil, nil
}

// testConfig returns a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Port:                  "0",
		Env:                   "development",
		LogLevel:              "error",
		LogFormat:             "text",
		DetectBaseURL:         "https://detect.invalid",
		DetectAppID:           "app",
		DetectAppSecret:       "secret",
		DetectNativeAppID:     "native",
		DetectNativeAppSecret: "native-secret",
		SupportedChains:       config.DefaultSupportedChains,
	}
}

type testEnv struct {
	srv     *Server
	fetcher *mockFetcher
	store   *snapstate.MemoryStore
}

func newTestEnv(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()
	env := &testEnv{
		fetcher: &mockFetcher{data: map[risk.BusinessType]string{
			risk.NativeTransfer:     `{"risk_level":0,"black_labels":"[]","white_labels":"[]"}`,
			risk.URLDetection:       `{"risk_level":1}`,
			risk.TransactionRequest: `{"detection_result":{"risks":{"risk_level":2}}}`,
			risk.SignatureRequest:   `{"risk_level":0}`,
		}},
		store: snapstate.NewMemoryStore(),
	}
	s, err := New(cfg, WithFetcher(env.fetcher), WithStore(env.store), WithCodeReader(mockCode{}))
	require.NoError(t, err)
	env.srv = s
	return env
}

func (e *testEnv) register(t *testing.T, addr string) {
	t.Helper()
	require.NoError(t, e.store.Put(context.Background(), &snapstate.Credentials{
		PublicKey:   "04aa",
		UserAddress: addr,
	}))
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	e.srv.Router().ServeHTTP(w, req)
	return w
}

func decodeInsight(t *testing.T, w *httptest.ResponseRecorder) InsightResponse {
	t.Helper()
	var resp InsightResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func txBody(chainID, to, value string) string {
	return `{"chain_id":"` + chainID + `","origin":"https://pancakeswap.finance","transaction":{"from":"` +
		userAddr + `","to":"` + to + `","value":"` + value + `"}}`
}

// ---------------------------------------------------------------------------
// Health endpoint tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, testConfig())

	w := env.do("GET", "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	require.Len(t, resp.Checks, 1)
	assert.Equal(t, "detect_credentials", resp.Checks[0].Name)
}

func TestHealthEndpoint_MissingCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.DetectNativeAppSecret = ""
	env := newTestEnv(t, cfg)

	w := env.do("GET", "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "degraded")
}

func TestLivenessEndpoint(t *testing.T) {
	env := newTestEnv(t, testConfig())
	assert.Equal(t, http.StatusOK, env.do("GET", "/health/live", "").Code)
}

func TestReadinessEndpoint(t *testing.T) {
	env := newTestEnv(t, testConfig())

	// Run() has not been called
	assert.Equal(t, http.StatusServiceUnavailable, env.do("GET", "/health/ready", "").Code)

	env.srv.ready.Store(true)
	assert.Equal(t, http.StatusOK, env.do("GET", "/health/ready", "").Code)
}

// ---------------------------------------------------------------------------
// Route registration tests
// ---------------------------------------------------------------------------

func TestCoreRoutesRegistered(t *testing.T) {
	env := newTestEnv(t, testConfig())

	routeSet := make(map[string]bool)
	for _, route := range env.srv.Router().Routes() {
		routeSet[route.Method+":"+route.Path] = true
	}

	for _, e := range []string{
		"GET:/health",
		"GET:/health/live",
		"GET:/health/ready",
		"GET:/metrics",
		"POST:/v1/insights/transaction",
		"POST:/v1/insights/signature",
		"POST:/v1/keys",
		"GET:/v1/keys/:address",
		"GET:/v1/chains",
	} {
		assert.True(t, routeSet[e], "route %s not registered", e)
	}
}

func TestNotFoundRoute(t *testing.T) {
	env := newTestEnv(t, testConfig())
	assert.Equal(t, http.StatusNotFound, env.do("GET", "/v1/nonexistent", "").Code)
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t, testConfig())

	w := env.do("GET", "/health/live", "")
	assert.Len(t, w.Header().Get("X-Request-ID"), 32)

	req := httptest.NewRequest("GET", "/health/live", nil)
	req.Header.Set("X-Request-ID", "lb-123")
	w = httptest.NewRecorder()
	env.srv.Router().ServeHTTP(w, req)
	assert.Equal(t, "lb-123", w.Header().Get("X-Request-ID"))
}

// ---------------------------------------------------------------------------
// Transaction insights
// ---------------------------------------------------------------------------

func TestTransactionInsight_NativeTransfer(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.register(t, userAddr)

	w := env.do("POST", "/v1/insights/transaction", txBody("0x38", eoaAddr, "0xde0b6b3a7640000"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decodeInsight(t, w)
	require.NotNil(t, resp.Presentation)
	assert.Equal(t, []presentation.Kind{
		presentation.KindTransactionRisk,
		presentation.KindURLRisk,
		presentation.KindTransfer,
		presentation.KindExplorer,
		presentation.KindTraceID,
	}, resp.Presentation.Kinds())
	assert.Contains(t, resp.Markdown, "Transfer Details")
	assert.Contains(t, resp.Markdown, "1 BNB")
	assert.Empty(t, resp.Error)
}

func TestTransactionInsight_ContractInteraction(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.register(t, userAddr)

	w := env.do("POST", "/v1/insights/transaction", txBody("56", contractAddr, "0x0"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decodeInsight(t, w)
	assert.True(t, resp.Presentation.Has(presentation.KindTransactionRisk))
	assert.True(t, resp.Presentation.Has(presentation.KindDestinationRisk))
	assert.False(t, resp.Presentation.Has(presentation.KindTransfer), "zero value shows no transfer")
}

func TestTransactionInsight_NoCredentials(t *testing.T) {
	env := newTestEnv(t, testConfig())

	w := env.do("POST", "/v1/insights/transaction", txBody("0x38", eoaAddr, "0x1"))
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeInsight(t, w)
	assert.Equal(t, []presentation.Kind{presentation.KindSetup}, resp.Presentation.Kinds())
	assert.Zero(t, env.fetcher.callCount())
}

func TestTransactionInsight_UnsupportedChain(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.register(t, userAddr)

	w := env.do("POST", "/v1/insights/transaction", txBody("0x89", contractAddr, "0x0"))
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeInsight(t, w)
	assert.True(t, resp.Presentation.Has(presentation.KindUnsupportedChain))
	assert.Equal(t, []risk.BusinessType{risk.URLDetection}, env.fetcher.calls)
}

func TestTransactionInsight_MissingChain(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.register(t, userAddr)

	w := env.do("POST", "/v1/insights/transaction", txBody("", eoaAddr, "0x1"))
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeInsight(t, w)
	assert.Equal(t, []presentation.Kind{presentation.KindError}, resp.Presentation.Kinds())
}

func TestTransactionInsight_DetectionFailure(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.register(t, userAddr)
	env.fetcher.err = &detect.RemoteServiceError{Business: risk.NativeTransfer, StatusCode: 500}

	w := env.do("POST", "/v1/insights/transaction", txBody("0x38", eoaAddr, "0xde0b6b3a7640000"))
	assert.Equal(t, http.StatusBadGateway, w.Code)

	resp := decodeInsight(t, w)
	assert.Equal(t, "detection_failed", resp.Error)
	require.NotNil(t, resp.Presentation)
	assert.Equal(t, []presentation.Kind{
		presentation.KindError,
		presentation.KindTransfer,
		presentation.KindExplorer,
	}, resp.Presentation.Kinds())
}

func TestTransactionInsight_Validation(t *testing.T) {
	env := newTestEnv(t, testConfig())

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"missing from", `{"chain_id":"0x38","transaction":{"to":"` + eoaAddr + `"}}`},
		{"bad to", txBody("0x38", "0x1234", "0x1")},
		{"bad value", txBody("0x38", eoaAddr, "100")},
		{"bad chain", txBody("bsc", eoaAddr, "0x1")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do("POST", "/v1/insights/transaction", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
	assert.Zero(t, env.fetcher.callCount())
}

func TestTransactionInsight_MarkdownFormat(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.register(t, userAddr)

	w := env.do("POST", "/v1/insights/transaction?format=markdown", txBody("0x38", eoaAddr, "0x1"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/markdown")
	assert.Contains(t, w.Body.String(), "## ")
}

// ---------------------------------------------------------------------------
// Signature insights
// ---------------------------------------------------------------------------

func sigBody(chainID string) string {
	return `{"chain_id":"` + chainID + `","origin":"https://app.example","signature":{"address":"` +
		userAddr + `","message":"hello","method":"personal_sign"}}`
}

func TestSignatureInsight_Disabled(t *testing.T) {
	env := newTestEnv(t, testConfig())

	w := env.do("POST", "/v1/insights/signature", sigBody("0x1"))
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeInsight(t, w)
	assert.Equal(t, []presentation.Kind{presentation.KindSignature}, resp.Presentation.Kinds())
	assert.Zero(t, env.fetcher.callCount())
}

func TestSignatureInsight_Enabled(t *testing.T) {
	cfg := testConfig()
	cfg.SignatureScreening = true
	env := newTestEnv(t, cfg)
	env.register(t, userAddr)

	w := env.do("POST", "/v1/insights/signature", sigBody("0x1"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeInsight(t, w)
	assert.Equal(t, []presentation.Kind{
		presentation.KindSignature,
		presentation.KindURLRisk,
		presentation.KindTraceID,
	}, resp.Presentation.Kinds())
}

// ---------------------------------------------------------------------------
// Keys
// ---------------------------------------------------------------------------

func TestRegisterKey(t *testing.T) {
	env := newTestEnv(t, testConfig())

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()
	sig, err := crypto.Sign(identity.HashMessage("txinsight"), key)
	require.NoError(t, err)
	sig[64] += 27

	body := `{"from":"` + addr + `","message":"txinsight","signature":"` + hexutil.Encode(sig) + `"}`
	w := env.do("POST", "/v1/keys", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), strings.ToLower(addr))

	w = env.do("GET", "/v1/keys/"+addr, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"registered":true`)

	// Someone else's signature
	w = env.do("POST", "/v1/keys", `{"from":"`+userAddr+`","message":"txinsight","signature":"`+hexutil.Encode(sig)+`"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do("POST", "/v1/keys", `{"from":"`+userAddr+`","message":"txinsight","signature":"0x12"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do("POST", "/v1/keys", `{"from":"`+userAddr+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestKeyStatus(t *testing.T) {
	env := newTestEnv(t, testConfig())

	w := env.do("GET", "/v1/keys/"+userAddr, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"registered":false`)

	assert.Equal(t, http.StatusBadRequest, env.do("GET", "/v1/keys/nope", "").Code)
}

// ---------------------------------------------------------------------------
// Chains
// ---------------------------------------------------------------------------

func TestChainsEndpoint(t *testing.T) {
	env := newTestEnv(t, testConfig())

	w := env.do("GET", "/v1/chains", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Chains []ChainView `json:"chains"`
		Count  int         `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Chains)
	assert.Equal(t, len(resp.Chains), resp.Count)
	assert.Equal(t, "0x1", resp.Chains[0].ChainID)

	supported := map[string]bool{}
	for _, c := range resp.Chains {
		supported[c.ChainID] = c.Supported
	}
	assert.True(t, supported["0x1"])
	assert.True(t, supported["0x38"])
	assert.False(t, supported["0x61"])
}

func TestShutdownWithoutRun(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.srv.drainDelay = 0
	assert.NoError(t, env.srv.Shutdown())
}

func TestNew_ProductionRejectsPlaintextUpstream(t *testing.T) {
	cfg := testConfig()
	cfg.Env = "production"
	cfg.DetectBaseURL = "http://cb.commonservice.io"

	_, err := New(cfg, WithStore(snapstate.NewMemoryStore()), WithCodeReader(mockCode{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DETECT_BASE_URL")

	cfg.DetectBaseURL = "https://8.8.8.8"
	cfg.RPCURLs = map[string]string{"0x1": "http://127.0.0.1:8545"}
	_, err = New(cfg, WithStore(snapstate.NewMemoryStore()), WithCodeReader(mockCode{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RPC_URLS[0x1]")
}

func TestBreakerCheck(t *testing.T) {
	b := circuitbreaker.New(1, time.Minute)
	check := breakerCheck(b)

	st := check(context.Background())
	assert.True(t, st.Healthy)

	_ = b.Execute(risk.NativeTransfer, func() error { return errors.New("down") })
	st = check(context.Background())
	assert.False(t, st.Healthy)
	assert.Equal(t, "open: "+string(risk.NativeTransfer), st.Detail)
}
