package presentation

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Render writes m as markdown.
func Render(w io.Writer, m *Model) error {
	var b strings.Builder
	for i, s := range m.Sections {
		if i > 0 {
			b.WriteByte('\n')
		}
		if s.Heading != "" {
			fmt.Fprintf(&b, "## %s\n\n", s.Heading)
		}
		for _, c := range s.Components {
			b.WriteString(markdown(c))
			b.WriteByte('\n')
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// String renders m as markdown.
func (m *Model) String() string {
	var b strings.Builder
	_ = Render(&b, m)
	return b.String()
}

func markdown(c Component) string {
	switch c.Type {
	case TypeDivider:
		return "\n---"
	case TypeAddress, TypeCopyable:
		return "`" + c.Value + "`"
	case TypeRow:
		if c.Child == nil {
			return "**" + c.Label + ":**"
		}
		return "**" + c.Label + ":** " + markdown(*c.Child)
	default:
		return c.Value
	}
}

// Terminal writes m for an interactive terminal. Headings of risk-bearing
// sections are coloured; color.NoColor disables colouring as usual.
func Terminal(w io.Writer, m *Model) error {
	for i, s := range m.Sections {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if s.Heading != "" {
			if _, err := headingColor(s.Kind).Fprintln(w, s.Heading); err != nil {
				return err
			}
		}
		for _, c := range s.Components {
			if _, err := fmt.Fprintln(w, plain(c)); err != nil {
				return err
			}
		}
	}
	return nil
}

func headingColor(k Kind) *color.Color {
	switch k {
	case KindError, KindSetup:
		return color.New(color.FgRed, color.Bold)
	case KindTransactionRisk, KindDestinationRisk, KindURLRisk, KindSignature:
		return color.New(color.FgYellow, color.Bold)
	case KindUnsupportedChain:
		return color.New(color.FgMagenta)
	default:
		return color.New(color.FgCyan, color.Bold)
	}
}

var markdownMarks = strings.NewReplacer("**", "")

func plain(c Component) string {
	switch c.Type {
	case TypeDivider:
		return strings.Repeat("-", 40)
	case TypeAddress, TypeCopyable:
		return "  " + c.Value
	case TypeRow:
		if c.Child == nil {
			return "  " + c.Label + ":"
		}
		return fmt.Sprintf("  %-14s %s", c.Label+":", strings.TrimSpace(plain(*c.Child)))
	default:
		return "  " + markdownMarks.Replace(c.Value)
	}
}
