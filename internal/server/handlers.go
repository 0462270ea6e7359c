package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/txinsight/internal/chains"
	"github.com/mbd888/txinsight/internal/detect"
	"github.com/mbd888/txinsight/internal/health"
	"github.com/mbd888/txinsight/internal/identity"
	"github.com/mbd888/txinsight/internal/logging"
	"github.com/mbd888/txinsight/internal/presentation"
	"github.com/mbd888/txinsight/internal/screening"
	"github.com/mbd888/txinsight/internal/snapstate"
	"github.com/mbd888/txinsight/internal/traces"
	"github.com/mbd888/txinsight/internal/validation"
)

// TransactionInsightRequest is the body of POST /v1/insights/transaction.
type TransactionInsightRequest struct {
	ChainID     string             `json:"chain_id"`
	Origin      string             `json:"origin"`
	Transaction detect.Transaction `json:"transaction"`
}

// SignatureInsightRequest is the body of POST /v1/insights/signature.
type SignatureInsightRequest struct {
	ChainID   string               `json:"chain_id"`
	Origin    string               `json:"origin"`
	Signature detect.SignatureMeta `json:"signature"`
}

// InsightResponse carries a presentation and its markdown rendering. Error
// and Message are set when screening failed and Presentation is the
// fallback.
type InsightResponse struct {
	Presentation *presentation.Model `json:"presentation,omitempty"`
	Markdown     string              `json:"markdown,omitempty"`
	Error        string              `json:"error,omitempty"`
	Message      string              `json:"message,omitempty"`
}

// KeyRegistrationRequest is the body of POST /v1/keys.
type KeyRegistrationRequest struct {
	From      string `json:"from" binding:"required"`
	Message   string `json:"message" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// ChainView is one entry of GET /v1/chains.
type ChainView struct {
	chains.Entry
	Supported bool `json:"supported"`
}

// -----------------------------------------------------------------------------
// Insights
// -----------------------------------------------------------------------------

func (s *Server) transactionInsightHandler(c *gin.Context) {
	var req TransactionInsightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	tx := req.Transaction
	errs := validation.Validate(
		validation.Required("transaction.from", tx.From),
		validation.ValidAddress("transaction.from", tx.From),
		validation.ValidAddress("transaction.to", tx.To),
		validation.ValidQuantity("transaction.value", tx.Value),
		validation.ValidCalldata("transaction.data", tx.Data),
		validation.ValidChainID("chain_id", req.ChainID),
		validation.ValidOrigin("origin", req.Origin),
		validation.MaxLength("origin", req.Origin, validation.MaxStringLength),
	)
	if len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	tx.From = validation.SanitizeAddress(tx.From)
	tx.To = validation.SanitizeAddress(tx.To)
	chainID := normalizeChain(req.ChainID)

	ctx, span := traces.StartSpan(c.Request.Context(), "http.TransactionInsight", traces.ChainID(chainID))
	defer span.End()

	host := screening.NewRequestHost(chainID, tx.From, s.store, s.code)
	m, err := s.engine.EvaluateTransaction(ctx, host, tx, req.Origin)
	if err != nil {
		status, code := failureStatus(err)
		s.respond(c, status, InsightResponse{
			Presentation: s.engine.Fallback(tx, chainID, err),
			Error:        code,
			Message:      err.Error(),
		})
		return
	}
	s.respond(c, http.StatusOK, InsightResponse{Presentation: m})
}

func (s *Server) signatureInsightHandler(c *gin.Context) {
	var req SignatureInsightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	sig := req.Signature
	errs := validation.Validate(
		validation.Required("signature.address", sig.Address),
		validation.ValidAddress("signature.address", sig.Address),
		validation.MaxLength("signature.message", sig.Message, validation.MaxStringLength),
		validation.ValidChainID("chain_id", req.ChainID),
		validation.ValidOrigin("origin", req.Origin),
	)
	if len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	sig.Address = validation.SanitizeAddress(sig.Address)
	chainID := normalizeChain(req.ChainID)

	ctx, span := traces.StartSpan(c.Request.Context(), "http.SignatureInsight", traces.ChainID(chainID))
	defer span.End()

	host := screening.NewRequestHost(chainID, sig.Address, s.store, s.code)
	m, err := s.engine.EvaluateSignature(ctx, host, sig, req.Origin)
	if err != nil {
		status, code := failureStatus(err)
		c.JSON(status, InsightResponse{Error: code, Message: err.Error()})
		return
	}
	s.respond(c, http.StatusOK, InsightResponse{Presentation: m})
}

// respond writes JSON, or bare markdown when ?format=markdown.
func (s *Server) respond(c *gin.Context, status int, resp InsightResponse) {
	if resp.Presentation != nil {
		resp.Markdown = resp.Presentation.String()
	}
	if c.Query("format") == "markdown" {
		c.Data(status, "text/markdown; charset=utf-8", []byte(resp.Markdown))
		return
	}
	c.JSON(status, resp)
}

// failureStatus maps an evaluation error: detection API failures are a bad
// gateway, anything else (storage, RPC) is internal.
func failureStatus(err error) (int, string) {
	if errors.Is(err, detect.ErrRemoteService) {
		return http.StatusBadGateway, "detection_failed"
	}
	return http.StatusInternalServerError, "screening_failed"
}

// normalizeChain returns the hex form of a validated chain id, or "" so the
// engine reports the missing chain.
func normalizeChain(chainID string) string {
	if chainID == "" {
		return ""
	}
	norm, err := chains.Normalize(chainID)
	if err != nil {
		return ""
	}
	return norm
}

// -----------------------------------------------------------------------------
// Keys
// -----------------------------------------------------------------------------

func (s *Server) registerKeyHandler(c *gin.Context) {
	var req KeyRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "from, message and signature are required",
		})
		return
	}

	creds, err := s.registrar.Register(c.Request.Context(), req.From, req.Message, req.Signature)
	switch {
	case errors.Is(err, identity.ErrAddressMismatch):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "signature_mismatch",
			"message": err.Error(),
		})
		return
	case errors.Is(err, identity.ErrInvalidSignature),
		errors.Is(err, identity.ErrInvalidAddress),
		errors.Is(err, identity.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	case err != nil:
		logging.L(c.Request.Context()).Error("key registration failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to save credentials",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"userAddress": creds.UserAddress,
		"publicKey":   creds.PublicKey,
	})
}

func (s *Server) keyStatusHandler(c *gin.Context) {
	creds, err := snapstate.Lookup(c.Request.Context(), s.store, c.Param("address"))
	if err != nil {
		logging.L(c.Request.Context()).Error("credential lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to read credentials",
		})
		return
	}

	resp := gin.H{
		"address":    snapstate.Key(c.Param("address")),
		"registered": creds != nil,
	}
	if creds != nil {
		resp["updatedAt"] = creds.UpdatedAt.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

// -----------------------------------------------------------------------------
// Chains
// -----------------------------------------------------------------------------

func (s *Server) chainsHandler(c *gin.Context) {
	entries := s.chains.All()
	out := make([]ChainView, 0, len(entries))
	for _, e := range entries {
		out = append(out, ChainView{Entry: e, Supported: s.engine.Supported(e.ChainID)})
	}
	c.JSON(http.StatusOK, gin.H{
		"chains": out,
		"count":  len(out),
	})
}

// -----------------------------------------------------------------------------
// Health
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, checks := s.health.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   Version,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
