// Package detect is the client for the HashDit detection API: payload
// construction, HMAC request signing and the single-attempt transport call
// whose data object is handed to risk.Normalize.
package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mbd888/txinsight/internal/circuitbreaker"
	"github.com/mbd888/txinsight/internal/idgen"
	"github.com/mbd888/txinsight/internal/logging"
	"github.com/mbd888/txinsight/internal/metrics"
	"github.com/mbd888/txinsight/internal/risk"
	"github.com/mbd888/txinsight/internal/traces"
	"go.opentelemetry.io/otel/codes"
)

const maxResponseSize = 5 * 1024 * 1024 // 5MB

// StatusOK is the envelope status of a successful call.
const StatusOK = "OK"

var (
	// ErrRemoteService matches every *RemoteServiceError via errors.Is.
	ErrRemoteService = errors.New("detect: remote service error")
	// ErrCircuitOpen is the cause when the breaker rejects a call.
	ErrCircuitOpen = errors.New("detect: circuit open")
	// ErrMalformedEnvelope is the cause when the response is not a usable envelope.
	ErrMalformedEnvelope = errors.New("detect: malformed response envelope")
)

// RemoteServiceError reports a failed detection call: a transport failure,
// a non-2xx response, or an envelope whose status is not "OK".
type RemoteServiceError struct {
	Business   risk.BusinessType
	StatusCode int    // HTTP status; 0 when no response was received
	Status     string // envelope status, if one was decoded
	ErrorData  string // upstream errorData, verbatim
	Err        error  // underlying cause, if any
}

func (e *RemoteServiceError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "detect %s failed", e.Business)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": http %d", e.StatusCode)
	}
	if e.Status != "" {
		fmt.Fprintf(&b, ": status %s", e.Status)
	}
	if e.ErrorData != "" {
		fmt.Fprintf(&b, ": %s", e.ErrorData)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *RemoteServiceError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrRemoteService) true for any RemoteServiceError.
func (e *RemoteServiceError) Is(target error) bool { return target == ErrRemoteService }

type envelope struct {
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data"`
	ErrorData json.RawMessage `json:"errorData"`
}

// Client calls the detection API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	signer     *Signer
	httpClient *http.Client
	timeout    time.Duration
	breaker    *circuitbreaker.Breaker
	logger     *slog.Logger
	now        func() time.Time
	newTraceID func() string
	newNonce   func() string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds each call. Zero leaves the transport client's own
// timeout. The client passed to WithHTTPClient is never modified.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithBreaker makes calls fail fast while the upstream for a business type
// is tripped.
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// WithLogger sets the fallback logger used when the context carries none.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithIDs overrides trace id and nonce generation.
func WithIDs(traceID, nonce func() string) Option {
	return func(c *Client) {
		c.newTraceID = traceID
		c.newNonce = nonce
	}
}

// NewClient creates a client for the API at baseURL.
func NewClient(baseURL string, keys Keyring, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		signer:     NewSigner(keys),
		httpClient: &http.Client{},
		now:        time.Now,
		newTraceID: idgen.New,
		newNonce:   idgen.Nonce,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c
}

// FetchRisk performs one detection call and returns the normalized report.
// The call is attempted exactly once.
func (c *Client) FetchRisk(ctx context.Context, req Request) (*risk.Report, error) {
	if !req.Business.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBusiness, req.Business)
	}

	traceID := c.newTraceID()
	log := c.log(ctx).With("business", string(req.Business), "detect_trace_id", traceID)

	if req.Business != risk.URLDetection {
		if id, known := APIChainID(req.ChainID); !known {
			log.Warn("chain not in detection API enumeration, using fallback",
				"chain_id", req.ChainID, "api_chain_id", id)
		}
	}

	payload, err := BuildPayload(req, traceID)
	if err != nil {
		return nil, err
	}

	ctx, span := traces.StartSpan(ctx, "detect.FetchRisk",
		traces.Business(string(req.Business)),
		traces.TraceID(traceID),
		traces.ChainID(req.ChainID),
	)
	defer span.End()

	start := c.now()
	var data json.RawMessage
	err = c.breaker.Execute(req.Business, func() error {
		var callErr error
		data, callErr = c.call(ctx, req.Business, payload)
		return callErr
	})
	elapsed := time.Since(start)

	if errors.Is(err, circuitbreaker.ErrOpen) {
		err = &RemoteServiceError{Business: req.Business, Err: ErrCircuitOpen}
	}
	if err != nil {
		metrics.ObserveDetect(string(req.Business), resultLabel(err), elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn("detection call failed", "error", err, "elapsed_ms", elapsed.Milliseconds())
		return nil, err
	}

	metrics.ObserveDetect(string(req.Business), "ok", elapsed)
	log.Debug("detection call succeeded", "elapsed_ms", elapsed.Milliseconds())

	report := risk.Normalize(req.Business, data, traceID)
	return &report, nil
}

// call sends the signed request and returns the envelope's data object.
func (c *Client) call(ctx context.Context, business risk.BusinessType, payload []byte) (json.RawMessage, error) {
	endpoint := c.baseURL + APIPath
	if q := Query(business); q != "" {
		endpoint += "?" + q
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &RemoteServiceError{Business: business, Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", ContentType)
	c.signer.Sign(business, payload, c.now().UnixMilli(), c.newNonce()).Apply(httpReq.Header)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &RemoteServiceError{Business: business, Err: fmt.Errorf("http request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &RemoteServiceError{Business: business, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &RemoteServiceError{Business: business, StatusCode: resp.StatusCode}
		}
		return nil, &RemoteServiceError{Business: business, StatusCode: resp.StatusCode, Err: ErrMalformedEnvelope}
	}

	rse := &RemoteServiceError{
		Business:   business,
		StatusCode: resp.StatusCode,
		Status:     env.Status,
		ErrorData:  errorText(env.ErrorData),
	}
	switch {
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, rse
	case env.Status != StatusOK:
		return nil, rse
	case !isObject(env.Data):
		rse.Err = ErrMalformedEnvelope
		return nil, rse
	}
	return env.Data, nil
}

func (c *Client) log(ctx context.Context) *slog.Logger {
	if c.logger != nil && logging.FromContext(ctx) == slog.Default() {
		return c.logger
	}
	return logging.L(ctx)
}

func resultLabel(err error) string {
	if errors.Is(err, ErrCircuitOpen) {
		return "circuit_open"
	}
	var rse *RemoteServiceError
	if errors.As(err, &rse) && rse.StatusCode == 0 {
		return "transport_error"
	}
	return "error"
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

// errorText renders errorData verbatim when it is a string and as compact
// JSON otherwise.
func errorText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
