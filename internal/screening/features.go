package screening

import "github.com/mbd888/txinsight/internal/chains"

// Features selects engine behaviour that differs between deployments.
type Features struct {
	// SupportedChains get full screening; every other chain is URL-only.
	SupportedChains []string
	// AddressLabels screens destinations with the address-labels business
	// type instead of native-transfer screening.
	AddressLabels bool
	// SignatureScreening enables EvaluateSignature.
	SignatureScreening bool
}

// DefaultFeatures covers Ethereum and BNB Smart Chain mainnets.
func DefaultFeatures() Features {
	return Features{SupportedChains: []string{"0x1", "0x38"}}
}

func supportSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		if norm, err := chains.Normalize(id); err == nil {
			set[norm] = true
		}
	}
	return set
}
