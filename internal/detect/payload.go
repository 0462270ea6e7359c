package detect

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/mbd888/txinsight/internal/chains"
	"github.com/mbd888/txinsight/internal/risk"
)

var (
	ErrMissingTransaction = errors.New("detect: business type requires a transaction")
	ErrMissingSignature   = errors.New("detect: signature request requires signature metadata")
	ErrUnknownBusiness    = errors.New("detect: unknown business type")
)

// DefaultAPIChainID is sent for chains the upstream does not enumerate.
const DefaultAPIChainID = "56"

// Transaction is the outgoing transaction under evaluation. Value and gas
// fields are hex quantities as supplied by the wallet.
type Transaction struct {
	From                 string `json:"from"`
	To                   string `json:"to,omitempty"`
	Value                string `json:"value,omitempty"`
	Data                 string `json:"data,omitempty"`
	Gas                  string `json:"gas,omitempty"`
	GasPrice             string `json:"gasPrice,omitempty"`
	MaxFeePerGas         string `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas string `json:"maxPriorityFeePerGas,omitempty"`
	Nonce                string `json:"nonce,omitempty"`
}

// SignatureMeta describes a pending signature request.
type SignatureMeta struct {
	Address string `json:"address"` // signing account
	Message string `json:"message"`
	Method  string `json:"method"` // e.g. eth_sign, personal_sign
}

// Request is one detection call before signing.
type Request struct {
	Business    risk.BusinessType
	Origin      string
	ChainID     string
	Transaction *Transaction
	Signature   *SignatureMeta
}

// Payload shapes. Field order is alphabetical so the canonical encoding
// matches the upstream's historical byte layout.
type (
	urlPayload struct {
		URL string `json:"url"`
	}
	addressPayload struct {
		Address string `json:"address"`
		ChainID string `json:"chain_id"`
	}
	transactionPayload struct {
		Address     string `json:"address"`
		ChainID     string `json:"chain_id"`
		TraceID     string `json:"trace_id"`
		Transaction string `json:"transaction"`
		URL         string `json:"url"`
	}
	signaturePayload struct {
		Address string `json:"address"`
		ChainID string `json:"chain_id"`
		Message string `json:"message"`
		Method  string `json:"method"`
		TraceID string `json:"trace_id"`
		URL     string `json:"url"`
	}
)

// APIChainID maps a wallet chain id to the upstream's chain enumeration.
// Unmapped chains fall back to DefaultAPIChainID with known == false.
func APIChainID(chainID string) (id string, known bool) {
	norm, err := chains.Normalize(chainID)
	if err != nil {
		return DefaultAPIChainID, false
	}
	switch norm {
	case "0x1":
		return "1", true
	case "0x38":
		return "56", true
	default:
		return DefaultAPIChainID, false
	}
}

// BuildPayload returns the canonical JSON body for req. The same bytes are
// signed and sent.
func BuildPayload(req Request, traceID string) ([]byte, error) {
	chainID, _ := APIChainID(req.ChainID)

	var body any
	switch req.Business {
	case risk.URLDetection:
		body = urlPayload{URL: req.Origin}

	case risk.NativeTransfer, risk.AddressLabels:
		if req.Transaction == nil {
			return nil, ErrMissingTransaction
		}
		body = addressPayload{Address: req.Transaction.To, ChainID: chainID}

	case risk.TransactionRequest:
		if req.Transaction == nil {
			return nil, ErrMissingTransaction
		}
		tx, err := canonical(req.Transaction)
		if err != nil {
			return nil, fmt.Errorf("detect: encode transaction: %w", err)
		}
		body = transactionPayload{
			Address:     req.Transaction.To,
			ChainID:     chainID,
			TraceID:     traceID,
			Transaction: string(tx),
			URL:         req.Origin,
		}

	case risk.SignatureRequest:
		if req.Signature == nil {
			return nil, ErrMissingSignature
		}
		body = signaturePayload{
			Address: req.Signature.Address,
			ChainID: chainID,
			Message: req.Signature.Message,
			Method:  req.Signature.Method,
			TraceID: traceID,
			URL:     req.Origin,
		}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBusiness, req.Business)
	}

	out, err := canonical(body)
	if err != nil {
		return nil, fmt.Errorf("detect: encode payload: %w", err)
	}
	return out, nil
}

// canonical encodes v as RFC 8785 JSON: sorted keys, no HTML escaping.
func canonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(raw)
}
