// Package apiclient is an HTTP client for the insight API, shared by the
// CLI and the MCP server.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mbd888/txinsight/internal/server"
)

// DefaultAPIURL is used when no server URL is configured.
const DefaultAPIURL = "http://localhost:8080"

// Config holds the configuration for connecting to the insight API.
type Config struct {
	APIURL  string        // Base URL, e.g. "http://localhost:8080"
	Timeout time.Duration // 0 = 60s
}

// Client is a pure HTTP client for the insight API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new client.
func New(cfg Config) *Client {
	base := strings.TrimRight(cfg.APIURL, "/")
	if base == "" {
		base = DefaultAPIURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error (%d)", e.StatusCode)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request and returns the status and body.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body any) (int, []byte, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// call decodes a 2xx body into out and turns anything else into an
// APIError.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	status, data, err := c.doRequest(ctx, method, path, nil, body)
	if err != nil {
		return err
	}
	if status >= 400 {
		return apiError(status, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func apiError(status int, data []byte) *APIError {
	var eb errorBody
	if json.Unmarshal(data, &eb) == nil && (eb.Error != "" || eb.Message != "") {
		return &APIError{StatusCode: status, Code: eb.Error, Message: eb.Message}
	}
	return &APIError{StatusCode: status, Message: strings.TrimSpace(string(data))}
}

// insight posts an insight request. When screening failed the API still
// returns a fallback presentation; it is returned together with the
// APIError so callers can show it.
func (c *Client) insight(ctx context.Context, path string, body any) (*server.InsightResponse, error) {
	status, data, err := c.doRequest(ctx, http.MethodPost, path, nil, body)
	if err != nil {
		return nil, err
	}

	var resp server.InsightResponse
	decodeErr := json.Unmarshal(data, &resp)
	if status >= 400 {
		apiErr := apiError(status, data)
		if decodeErr == nil && resp.Presentation != nil {
			return &resp, apiErr
		}
		return nil, apiErr
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode response: %w", decodeErr)
	}
	return &resp, nil
}

// ScreenTransaction requests transaction insights.
func (c *Client) ScreenTransaction(ctx context.Context, req server.TransactionInsightRequest) (*server.InsightResponse, error) {
	return c.insight(ctx, "/v1/insights/transaction", req)
}

// ScreenSignature requests signature insights.
func (c *Client) ScreenSignature(ctx context.Context, req server.SignatureInsightRequest) (*server.InsightResponse, error) {
	return c.insight(ctx, "/v1/insights/signature", req)
}

// Registration is the result of a key registration.
type Registration struct {
	UserAddress string `json:"userAddress"`
	PublicKey   string `json:"publicKey"`
}

// RegisterKey registers the public key recovered from a signed message.
func (c *Client) RegisterKey(ctx context.Context, req server.KeyRegistrationRequest) (*Registration, error) {
	var out Registration
	if err := c.call(ctx, http.MethodPost, "/v1/keys", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// KeyStatus reports whether an address has registered a key.
type KeyStatus struct {
	Address    string `json:"address"`
	Registered bool   `json:"registered"`
	UpdatedAt  string `json:"updatedAt,omitempty"`
}

// GetKeyStatus looks up the registration for address.
func (c *Client) GetKeyStatus(ctx context.Context, address string) (*KeyStatus, error) {
	var out KeyStatus
	if err := c.call(ctx, http.MethodGet, "/v1/keys/"+url.PathEscape(address), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListChains returns the chain registry with support flags.
func (c *Client) ListChains(ctx context.Context) ([]server.ChainView, error) {
	var out struct {
		Chains []server.ChainView `json:"chains"`
	}
	if err := c.call(ctx, http.MethodGet, "/v1/chains", nil, &out); err != nil {
		return nil, err
	}
	return out.Chains, nil
}

// Health returns the server health report. A degraded server answers 503
// with a body, which is returned without error.
func (c *Client) Health(ctx context.Context) (*server.HealthResponse, error) {
	status, data, err := c.doRequest(ctx, http.MethodGet, "/health", nil, nil)
	if err != nil {
		return nil, err
	}
	var out server.HealthResponse
	if jsonErr := json.Unmarshal(data, &out); jsonErr != nil || out.Status == "" {
		if status >= 400 {
			return nil, apiError(status, data)
		}
		return nil, errors.New("decode health response: unexpected body")
	}
	return &out, nil
}
