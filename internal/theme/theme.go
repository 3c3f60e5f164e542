// Package theme provides the Lip Gloss color palette and reusable styles
// for the live view terminal UI. It is a leaf package with no internal
// imports to avoid import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Badge severity colors.
var (
	ColorDanger  = lipgloss.Color("#dc2626")
	ColorWarning = lipgloss.Color("#d97706")
	ColorSuccess = lipgloss.Color("#16a34a")
	ColorDefault = lipgloss.Color("#9ca3af")
)

// ColorBlocked marks calls to invalid numbers.
var ColorBlocked = lipgloss.Color("#854d0e")

// Log kind colors.
var (
	ColorKindWS   = lipgloss.Color("#2563eb")
	ColorKindPage = lipgloss.Color("#7c3aed")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorBg      = lipgloss.Color("#111827")
	ColorOverlay = lipgloss.Color("#374151")
)

// SeverityColor returns the color for a badge severity class such as
// "bg-success" or a bare severity name.
func SeverityColor(class string) lipgloss.Color {
	switch class {
	case "bg-danger", "danger":
		return ColorDanger
	case "bg-warning", "warning":
		return ColorWarning
	case "bg-success", "success":
		return ColorSuccess
	default:
		return ColorDefault
	}
}

// SeverityGlyph returns the badge glyph for a severity class.
func SeverityGlyph(class string) string {
	switch class {
	case "bg-danger", "danger":
		return "○"
	case "bg-warning", "warning":
		return "◌"
	case "bg-success", "success":
		return "●"
	default:
		return "·"
	}
}

// Reusable styles.
var (
	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleWarning = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorWarning)
)

// Badge renders a status badge in the severity's color.
func Badge(text, class string) string {
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBg).
		Background(SeverityColor(class)).
		Padding(0, 1).
		Render(text)
}
