// Package risk defines the unified risk report produced for every detection
// call and the pure normalization that builds it from the detection API's
// per-business response shapes.
//
// Risk levels are small integers from the upstream (0 = safe, 5 = critical).
// Level Unknown (-1) marks "no verdict" and is never compared numerically
// or shown to a user as a number.
package risk

import (
	"fmt"
	"strconv"
)

// BusinessType selects the detection API endpoint behaviour.
type BusinessType string

const (
	URLDetection       BusinessType = "hashdit_snap_tx_api_url_detection"
	NativeTransfer     BusinessType = "hashdit_native_transfer"
	TransactionRequest BusinessType = "hashdit_snap_tx_api_transaction_request"
	SignatureRequest   BusinessType = "hashdit_snap_tx_api_signature_request"
	// AddressLabels is the upstream's own (misspelt) name for destination
	// address label screening.
	AddressLabels BusinessType = "internal_address_lables_tags"
)

// BusinessTypes lists every business type the client can issue.
var BusinessTypes = []BusinessType{URLDetection, NativeTransfer, TransactionRequest, SignatureRequest, AddressLabels}

// Valid reports whether b is a known business type.
func (b BusinessType) Valid() bool {
	for _, known := range BusinessTypes {
		if b == known {
			return true
		}
	}
	return false
}

// ParseBusinessType validates a business type name.
func ParseBusinessType(s string) (BusinessType, error) {
	b := BusinessType(s)
	if !b.Valid() {
		return "", fmt.Errorf("risk: unknown business type %q", s)
	}
	return b, nil
}

// Level is a risk level reported by the detection API.
type Level int

// Unknown is the sentinel for "no verdict".
const Unknown Level = -1

// Known reports whether l carries a real verdict.
func (l Level) Known() bool { return l >= 0 }

// String renders the level for display; unknown levels never render as -1.
func (l Level) String() string {
	if !l.Known() {
		return "Unknown"
	}
	return strconv.Itoa(int(l))
}

// Thresholds shared by URL and overall titles.
const (
	HighThreshold   Level = 4
	MediumThreshold Level = 2
)

// Display strings.
const (
	TitleUnknown  = "Unknown Risk"
	DetailUnknown = "No details"

	TitleHigh    = "⚠️ High Risk ⚠️"
	DetailHigh   = "This transaction is considered high risk. It is advised to reject this transaction."
	TitleMedium  = "🔎 Medium Risk 🔎"
	DetailMedium = "This transaction is considered medium risk. Please review the details of this transaction."
	TitleLow     = "Low Risk"
	DetailLow    = "This transaction is considered low risk. Please review the details of this transaction."

	TitleDangerousSite  = "⚠️ Interaction with a dangerous site ⚠️"
	TitleSuspiciousSite = "⚠️ Interaction with a suspicious site ⚠️"

	DetailNoneFound   = "None found"
	DetailBlacklisted = "Destination address is in HashDit blacklist"
	DetailWhitelisted = "Destination address is whitelisted, please still review the transaction details"
)

// OverallTitle derives the overall title and detail from a level. The
// unknown branch is checked before any threshold.
func OverallTitle(l Level) (title, detail string) {
	switch {
	case !l.Known():
		return TitleUnknown, DetailUnknown
	case l >= HighThreshold:
		return TitleHigh, DetailHigh
	case l >= MediumThreshold:
		return TitleMedium, DetailMedium
	default:
		return TitleLow, DetailLow
	}
}

// URLTitle derives the URL warning title. Low and unknown levels get none.
func URLTitle(l Level) string {
	switch {
	case !l.Known():
		return ""
	case l >= HighThreshold:
		return TitleDangerousSite
	case l >= MediumThreshold:
		return TitleSuspiciousSite
	default:
		return ""
	}
}

// Param is one decoded function-call argument, in upstream order.
type Param struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// IsAddress reports whether the argument should get address-aware display.
func (p Param) IsAddress() bool { return p.Type == "address" }

// Report is the normalized result of any detection call.
type Report struct {
	OverallRisk           Level   `json:"overallRisk"`
	OverallRiskTitle      string  `json:"overallRiskTitle"`
	OverallRiskDetail     string  `json:"overallRiskDetail"`
	URLRisk               Level   `json:"urlRisk"`
	URLRiskTitle          string  `json:"urlRiskTitle,omitempty"`
	FunctionName          string  `json:"functionName,omitempty"`
	FunctionParams        []Param `json:"functionParams,omitempty"`
	TransactionRiskDetail string  `json:"transactionRiskDetail"`
	TraceID               string  `json:"traceId"`
}

// NewReport returns the all-unknown report every normalization starts from.
func NewReport(traceID string) Report {
	return Report{
		OverallRisk:           Unknown,
		OverallRiskTitle:      TitleUnknown,
		OverallRiskDetail:     DetailUnknown,
		URLRisk:               Unknown,
		TransactionRiskDetail: DetailNoneFound,
		TraceID:               traceID,
	}
}

// HasFunction reports whether a function call was decoded.
func (r *Report) HasFunction() bool { return r.FunctionName != "" }
