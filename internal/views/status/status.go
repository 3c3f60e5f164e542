package status

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/phonelog/liveview/internal/page"
	"github.com/phonelog/liveview/internal/theme"
)

// Model holds the status bar state as read back from the page.
type Model struct {
	Text    string
	Class   string
	Tooltip []string
	Warning string
	Calls   string
	// Expanded shows the tooltip lines under the badge.
	Expanded bool
	Width    int
}

// New creates a status bar model.
func New() Model {
	return Model{Text: "Not connected", Class: "bg-danger"}
}

// Sync copies the badge and warning banner from doc.
func (m *Model) Sync(doc *page.Document) {
	m.Text, m.Class, m.Tooltip = doc.Badge()
	m.Warning = doc.Warning()
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	badge := theme.Badge(theme.SeverityGlyph(m.Class)+" "+m.Text, m.Class)
	content := badge
	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	if m.Calls != "" {
		content += sep + m.Calls
	}
	if m.Warning != "" {
		content += sep + theme.StyleWarning.Render("⚠ "+m.Warning)
	}
	if !m.Expanded && len(m.Tooltip) > 0 {
		content += sep + theme.StyleDimmed.Render(m.Tooltip[0])
	}

	if m.Expanded && len(m.Tooltip) > 0 {
		lines := make([]string, len(m.Tooltip))
		for i, l := range m.Tooltip {
			lines[i] = theme.StyleDimmed.Render("  " + l)
		}
		content = lipgloss.JoinVertical(lipgloss.Left, content, strings.Join(lines, "\n"))
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.SeverityColor(m.Class)).
		Render(content)
}
