package risk

import (
	"bytes"
	"encoding/json"
	"math"
)

// Data is the decoded payload of one detection response. Each business type
// has its own variant; every field is optional because the upstream schema
// is not stable.
type Data interface {
	Business() BusinessType
}

// URLDetectionData is the URL screening response.
type URLDetectionData struct {
	RiskLevel *Level
}

// LabelsData covers native-transfer and address-label responses, which
// share a shape.
type LabelsData struct {
	Kind             BusinessType
	RiskLevel        *Level
	BlackLabels      []json.RawMessage
	WhiteLabels      []json.RawMessage
	RiskDetailSimple *string // value of risk_detail_simple[0].value
}

// TransactionRequestData is the contract-interaction response.
type TransactionRequestData struct {
	DetectionResult *DetectionResult
}

// DetectionResult is transaction-request detection_result.
type DetectionResult struct {
	RiskLevel         *Level
	FunctionName      *string
	Params            []Param
	HasParams         bool
	TransactionDetail *string // risks.transaction[0].risk_detail
	URLRiskLevel      *Level  // risks.url.risk_level
}

// SignatureRequestData is reserved; the upstream returns nothing usable yet.
type SignatureRequestData struct{}

// UnrecognizedData is produced for business types this package does not know.
type UnrecognizedData struct {
	Kind BusinessType
}

func (URLDetectionData) Business() BusinessType       { return URLDetection }
func (d LabelsData) Business() BusinessType           { return d.Kind }
func (TransactionRequestData) Business() BusinessType { return TransactionRequest }
func (SignatureRequestData) Business() BusinessType   { return SignatureRequest }
func (d UnrecognizedData) Business() BusinessType     { return d.Kind }

type fields map[string]json.RawMessage

// Decode maps a raw data object onto the variant for business. It never
// fails: anything missing or malformed is left absent.
func Decode(business BusinessType, raw json.RawMessage) Data {
	f, _ := parseOptional[fields](raw)

	switch business {
	case URLDetection:
		return URLDetectionData{RiskLevel: parseLevel(f["risk_level"])}
	case NativeTransfer, AddressLabels:
		return decodeLabels(business, f)
	case TransactionRequest:
		return decodeTransactionRequest(f)
	case SignatureRequest:
		return SignatureRequestData{}
	default:
		return UnrecognizedData{Kind: business}
	}
}

func decodeLabels(business BusinessType, f fields) LabelsData {
	d := LabelsData{Kind: business, RiskLevel: parseLevel(f["risk_level"])}
	d.BlackLabels, _ = parseOptional[[]json.RawMessage](f["black_labels"])
	d.WhiteLabels, _ = parseOptional[[]json.RawMessage](f["white_labels"])

	if entries, ok := parseOptional[[]fields](f["risk_detail_simple"]); ok && len(entries) > 0 {
		d.RiskDetailSimple = parseText(entries[0]["value"])
	}
	return d
}

func decodeTransactionRequest(f fields) TransactionRequestData {
	result, ok := parseOptional[fields](f["detection_result"])
	if !ok {
		return TransactionRequestData{}
	}

	dr := &DetectionResult{}
	if name, ok := parseOptional[string](result["function_name"]); ok {
		dr.FunctionName = &name
	}
	if params, ok := parseOptional[[]fields](result["params"]); ok {
		dr.HasParams = true
		dr.Params = make([]Param, 0, len(params))
		for _, p := range params {
			dr.Params = append(dr.Params, decodeParam(p))
		}
	}

	if risks, ok := parseOptional[fields](result["risks"]); ok {
		dr.RiskLevel = parseLevel(risks["risk_level"])
		if txs, ok := parseOptional[[]fields](risks["transaction"]); ok && len(txs) > 0 {
			if detail, ok := parseOptional[string](txs[0]["risk_detail"]); ok {
				dr.TransactionDetail = &detail
			}
		}
		if url, ok := parseOptional[fields](risks["url"]); ok {
			dr.URLRiskLevel = parseLevel(url["risk_level"])
		}
	}
	return TransactionRequestData{DetectionResult: dr}
}

func decodeParam(f fields) Param {
	p := Param{}
	if v := parseText(f["name"]); v != nil {
		p.Name = *v
	}
	if v := parseText(f["type"]); v != nil {
		p.Type = *v
	}
	if v := parseText(f["value"]); v != nil {
		p.Value = *v
	}
	return p
}

// parseOptional decodes raw into T. Values the upstream double-encodes as a
// JSON string ("[\"a\"]") are unwrapped once. Absent, null or undecodable
// input yields ok == false and the caller keeps its default.
func parseOptional[T any](raw json.RawMessage) (T, bool) {
	var zero T
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return zero, false
	}

	var v T
	if err := json.Unmarshal(raw, &v); err == nil {
		return v, true
	}

	var inner string
	if err := json.Unmarshal(raw, &inner); err != nil {
		return zero, false
	}
	if err := json.Unmarshal([]byte(inner), &v); err != nil {
		return zero, false
	}
	return v, true
}

// maxLevel caps absurd upstream levels so they still title as high risk.
const maxLevel = math.MaxInt32

// parseLevel accepts integer, float or numeric-string levels. Negative
// values collapse to Unknown, values past maxLevel clamp to it.
func parseLevel(raw json.RawMessage) *Level {
	f, ok := parseOptional[float64](raw)
	if !ok || math.IsNaN(f) || math.IsInf(f, -1) {
		return nil
	}
	l := Unknown
	switch {
	case f > maxLevel:
		l = Level(maxLevel)
	case f >= 0:
		l = Level(int(f))
	}
	return &l
}

// parseText returns a string value verbatim and any other non-null JSON
// value as its compact JSON text.
func parseText(raw json.RawMessage) *string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil
	}
	s = buf.String()
	return &s
}
