// Package presentation is the renderer-neutral content model produced by a
// screening evaluation: an ordered list of sections, each an ordered list of
// components. Hosts render it however they like; Render and Terminal cover
// the HTTP markdown and CLI cases.
package presentation

// Kind identifies what a section reports on.
type Kind string

const (
	KindError            Kind = "error"
	KindSetup            Kind = "setup"
	KindTransactionRisk  Kind = "transaction_risk"
	KindDestinationRisk  Kind = "destination_risk"
	KindURLRisk          Kind = "url_risk"
	KindTransfer         Kind = "transfer"
	KindExplorer         Kind = "explorer"
	KindFunctionCall     Kind = "function_call"
	KindSignature        Kind = "signature"
	KindUnsupportedChain Kind = "unsupported_chain"
	KindTraceID          Kind = "trace_id"
)

// ComponentType is the primitive a component renders as.
type ComponentType string

const (
	TypeText     ComponentType = "text"
	TypeRow      ComponentType = "row"
	TypeAddress  ComponentType = "address"
	TypeCopyable ComponentType = "copyable"
	TypeDivider  ComponentType = "divider"
)

// Component is one renderable element. Rows carry a Label and a nested
// Value; every other type uses Value text only.
type Component struct {
	Type  ComponentType `json:"type"`
	Label string        `json:"label,omitempty"`
	Value string        `json:"value,omitempty"`
	Child *Component    `json:"child,omitempty"`
}

// Text is a markdown-capable text line.
func Text(s string) Component { return Component{Type: TypeText, Value: s} }

// Address is an account address rendered with address-aware display.
func Address(a string) Component { return Component{Type: TypeAddress, Value: a} }

// Copyable is a value the user can copy, such as an explorer link.
func Copyable(s string) Component { return Component{Type: TypeCopyable, Value: s} }

// Divider separates sections.
func Divider() Component { return Component{Type: TypeDivider} }

// Row is a labelled value.
func Row(label string, value Component) Component {
	return Component{Type: TypeRow, Label: label, Child: &value}
}

// Section is one heading plus its content.
type Section struct {
	Kind       Kind        `json:"kind"`
	Heading    string      `json:"heading"`
	Components []Component `json:"components"`
}

// Model is the complete result of one evaluation.
type Model struct {
	Sections []Section `json:"sections"`
}

// New returns a model holding sections in order.
func New(sections ...Section) *Model {
	return &Model{Sections: sections}
}

// Add appends sections.
func (m *Model) Add(sections ...Section) {
	m.Sections = append(m.Sections, sections...)
}

// Kinds lists section kinds in presentation order.
func (m *Model) Kinds() []Kind {
	kinds := make([]Kind, 0, len(m.Sections))
	for _, s := range m.Sections {
		kinds = append(kinds, s.Kind)
	}
	return kinds
}

// Section returns the first section of kind.
func (m *Model) Section(kind Kind) (Section, bool) {
	for _, s := range m.Sections {
		if s.Kind == kind {
			return s, true
		}
	}
	return Section{}, false
}

// Has reports whether a section of kind is present.
func (m *Model) Has(kind Kind) bool {
	_, ok := m.Section(kind)
	return ok
}

// Texts returns the text of every text component in the section, including
// row values. Useful for hosts that only show plain lines.
func (s Section) Texts() []string {
	var out []string
	for _, c := range s.Components {
		switch c.Type {
		case TypeText, TypeAddress, TypeCopyable:
			out = append(out, c.Value)
		case TypeRow:
			if c.Child != nil {
				out = append(out, c.Label+": "+c.Child.Value)
			}
		}
	}
	return out
}
