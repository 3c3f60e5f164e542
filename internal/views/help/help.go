// Package help renders the key binding reference as a markdown overlay.
package help

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/phonelog/liveview/internal/theme"
)

// Markdown builds the help document for the given bindings.
func Markdown(title string, bindings []key.Binding) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	b.WriteString("| Key | Action |\n|---|---|\n")
	for _, k := range bindings {
		h := k.Help()
		if h.Key == "" {
			continue
		}
		fmt.Fprintf(&b, "| `%s` | %s |\n", h.Key, h.Desc)
	}
	b.WriteString("\nThe badge turns green once the first update arrives. ")
	b.WriteString("While disconnected the call list is dimmed; a server disconnect reloads the page after ten seconds.\n")
	return b.String()
}

// Render renders md for a terminal of the given width. The raw markdown is
// returned if glamour fails.
func Render(md string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(max(width-6, 20)),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

// View renders the help overlay panel.
func View(title string, bindings []key.Binding, width int) string {
	body := Render(Markdown(title, bindings), width)
	footer := theme.StyleDimmed.Render("esc:close")
	return lipgloss.NewStyle().
		Width(max(width-4, 20)).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder).
		Render(lipgloss.JoinVertical(lipgloss.Left, strings.TrimRight(body, "\n"), footer))
}
