package screening

import (
	"fmt"
	"strings"

	"github.com/mbd888/txinsight/internal/amount"
	"github.com/mbd888/txinsight/internal/chains"
	"github.com/mbd888/txinsight/internal/detect"
	"github.com/mbd888/txinsight/internal/presentation"
	"github.com/mbd888/txinsight/internal/risk"
)

const (
	headingInsights    = "HashDit Security Insights"
	headingTransaction = "HashDit Transaction Screening"
	headingDestination = "HashDit Destination Screening"
	headingSignature   = "HashDit Signature Screening"
	headingURL         = "URL Risk Information"
	headingTransfer    = "Transfer Details"
	headingExplorer    = "View Destination Address On Explorer"
	headingTraceID     = "HashDit Trace-ID"
)

func riskSection(kind presentation.Kind, heading string, r *risk.Report, detailed bool) presentation.Section {
	s := presentation.Section{Kind: kind, Heading: heading}
	s.Components = append(s.Components, presentation.Text(fmt.Sprintf("**Overall risk:** _%s_", r.OverallRiskTitle)))
	if detailed {
		s.Components = append(s.Components,
			presentation.Text(fmt.Sprintf("**Risk Overview:** _%s_", r.OverallRiskDetail)),
			presentation.Text(fmt.Sprintf("**Risk Details:** _%s_", r.TransactionRiskDetail)),
		)
	}
	s.Components = append(s.Components, presentation.Divider())
	return s
}

func urlSection(origin string, r *risk.Report) presentation.Section {
	s := presentation.Section{Kind: presentation.KindURLRisk, Heading: headingURL}
	if r.URLRiskTitle != "" {
		s.Components = append(s.Components, presentation.Text("**"+r.URLRiskTitle+"**"))
	}
	s.Components = append(s.Components,
		presentation.Text(fmt.Sprintf("The URL **%s** has a risk of **%s**", origin, r.URLRisk)),
		presentation.Divider(),
	)
	return s
}

func transferSection(reg *chains.Registry, chainID string, tx detect.Transaction) presentation.Section {
	value, err := amount.FormatHex(tx.Value, reg.Decimals(chainID))
	if err != nil {
		value = tx.Value
	}

	to := presentation.Address(tx.To)
	if tx.To == "" {
		to = presentation.Text("Contract creation")
	}

	return presentation.Section{
		Kind:    presentation.KindTransfer,
		Heading: headingTransfer,
		Components: []presentation.Component{
			presentation.Row("Your Address", presentation.Address(tx.From)),
			presentation.Row("Amount", presentation.Text(value+" "+reg.NativeToken(chainID))),
			presentation.Row("To", to),
			presentation.Divider(),
		},
	}
}

func explorerSection(reg *chains.Registry, chainID, address string) (presentation.Section, bool) {
	link, ok := reg.ExplorerAddressURL(chainID, address)
	if !ok {
		return presentation.Section{}, false
	}
	return presentation.Section{
		Kind:       presentation.KindExplorer,
		Heading:    headingExplorer,
		Components: []presentation.Component{presentation.Copyable(link), presentation.Divider()},
	}, true
}

func functionSection(r *risk.Report) presentation.Section {
	s := presentation.Section{Kind: presentation.KindFunctionCall, Heading: "Function Name: " + r.FunctionName}
	for _, p := range r.FunctionParams {
		s.Components = append(s.Components,
			presentation.Text(fmt.Sprintf("**Name:** _%s_", p.Name)),
			presentation.Text(fmt.Sprintf("**Type:** _%s_", p.Type)),
		)
		if p.IsAddress() {
			s.Components = append(s.Components, presentation.Row("Value", presentation.Address(p.Value)))
		} else {
			s.Components = append(s.Components, presentation.Text(fmt.Sprintf("**Value:** _%s_", p.Value)))
		}
	}
	s.Components = append(s.Components, presentation.Divider())
	return s
}

func traceSection(traceID string) presentation.Section {
	return presentation.Section{
		Kind:       presentation.KindTraceID,
		Heading:    headingTraceID,
		Components: []presentation.Component{presentation.Text(traceID)},
	}
}

func setupSection() presentation.Section {
	return presentation.Section{
		Kind:    presentation.KindSetup,
		Heading: headingInsights,
		Components: []presentation.Component{
			presentation.Text("⚠️ The full functionality of HashDit is not working. ⚠️"),
			presentation.Text("To resolve this issue, please follow these steps:"),
			presentation.Divider(),
			presentation.Text("**(1)** _Click on the 'Reconnect' or 'Install' button on the HashDit website to install the Snap._"),
			presentation.Text("**(2)** _Install the snap by approving the required permissions._"),
			presentation.Text("**(3)** _Confirm your identity by signing the provided message._"),
			presentation.Divider(),
		},
	}
}

func (e *Engine) unsupportedSection(urlScreened bool) presentation.Section {
	notice := "HashDit Security Insights is not fully supported on this chain."
	if urlScreened {
		notice += " Only URL screening has been performed."
	}
	return presentation.Section{
		Kind: presentation.KindUnsupportedChain,
		Components: []presentation.Component{
			presentation.Text(notice),
			presentation.Text("Currently we only support the " + e.supportedNames() + "."),
		},
	}
}

// supportedNames renders the supported chains as "**A** and **B**".
func (e *Engine) supportedNames() string {
	names := make([]string, 0, len(e.features.SupportedChains))
	for _, id := range e.features.SupportedChains {
		name := id
		if entry, ok := e.chains.Lookup(id); ok && entry.Name != "" {
			name = entry.Name
		}
		names = append(names, "**"+name+"**")
	}
	switch len(names) {
	case 0:
		return "listed chains"
	case 1:
		return names[0]
	default:
		return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
	}
}

func chainErrorSection(detail string) presentation.Section {
	return presentation.Section{
		Kind:       presentation.KindError,
		Heading:    headingInsights,
		Components: []presentation.Component{presentation.Text(fmt.Sprintf("Error: ChainId could not be retrieved (%s)", detail))},
	}
}

func signatureDisabledSection() presentation.Section {
	return presentation.Section{
		Kind:       presentation.KindSignature,
		Heading:    headingSignature,
		Components: []presentation.Component{presentation.Text("Signature screening is not enabled on this deployment.")},
	}
}
