package risk

import "encoding/json"

// Normalize builds the unified report for one detection response. It is a
// pure function: identical inputs always give identical reports, and the
// supplied trace id is always carried through.
func Normalize(business BusinessType, data json.RawMessage, traceID string) Report {
	return Apply(Decode(business, data), traceID)
}

// Apply overlays decoded data onto the default report and derives titles.
func Apply(d Data, traceID string) Report {
	r := NewReport(traceID)

	switch v := d.(type) {
	case URLDetectionData:
		if v.RiskLevel != nil {
			r.URLRisk = *v.RiskLevel
		}
	case LabelsData:
		applyLabels(&r, v)
	case TransactionRequestData:
		applyTransactionRequest(&r, v)
	case SignatureRequestData, UnrecognizedData:
		// defaults only
	}

	r.URLRiskTitle = URLTitle(r.URLRisk)
	r.OverallRiskTitle, r.OverallRiskDetail = OverallTitle(r.OverallRisk)
	return r
}

// applyLabels picks the transaction detail with blacklist > whitelist >
// first simple risk detail precedence.
func applyLabels(r *Report, d LabelsData) {
	if d.RiskLevel != nil {
		r.OverallRisk = *d.RiskLevel
	}
	switch {
	case len(d.BlackLabels) > 0:
		r.TransactionRiskDetail = DetailBlacklisted
	case len(d.WhiteLabels) > 0:
		r.TransactionRiskDetail = DetailWhitelisted
	case d.RiskDetailSimple != nil:
		r.TransactionRiskDetail = *d.RiskDetailSimple
	}
}

func applyTransactionRequest(r *Report, d TransactionRequestData) {
	dr := d.DetectionResult
	if dr == nil {
		return
	}
	if dr.RiskLevel != nil {
		r.OverallRisk = *dr.RiskLevel
	}
	if dr.FunctionName != nil {
		r.FunctionName = *dr.FunctionName
	}
	if dr.HasParams {
		r.FunctionParams = append([]Param(nil), dr.Params...)
	}
	if dr.TransactionDetail != nil {
		r.TransactionRiskDetail = *dr.TransactionDetail
	}
	if dr.URLRiskLevel != nil {
		r.URLRisk = *dr.URLRiskLevel
	}
}
