package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)

	OKStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	WarnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Italic(true)

	FailStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	MutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// Swatch renders a small block in a row's hex color.
func Swatch(hex string) string {
	if hex == "" {
		return " "
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(hex)).Render("●")
}

// Status levels for Check.
const (
	StatusOK = iota
	StatusWarn
	StatusFail
	StatusSkip
)

// Check prints one diagnostic line.
func Check(w io.Writer, status int, label string, detail error) {
	switch status {
	case StatusOK:
		fmt.Fprintf(w, "%s %s: OK\n", OKStyle.Render("✓"), label)
	case StatusWarn:
		fmt.Fprintf(w, "%s %s: WARNING\n", WarnStyle.Render("⚠"), label)
	case StatusFail:
		fmt.Fprintf(w, "%s %s: FAIL\n", FailStyle.Render("❌"), label)
	default:
		fmt.Fprintf(w, "%s %s: SKIPPED\n", MutedStyle.Render("⊘"), label)
	}
	if detail != nil && status != StatusOK {
		fmt.Fprintf(w, "   %v\n", detail)
	}
}
