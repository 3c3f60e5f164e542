// Package content renders the live view content region: one line per call
// session and its detail panel when expanded.
//
// Panel expansion is animated with a harmonica spring unless the panel
// currently has its transition suppressed, in which case it snaps open.
package content

import (
	"math"
	"strings"

	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"

	"github.com/phonelog/liveview/internal/page"
	"github.com/phonelog/liveview/internal/theme"
)

// FrameRate is the animation tick rate.
const FrameRate = 60

const (
	angularFrequency = 6.0
	dampingRatio     = 1.0
	settleEpsilon    = 0.01
)

// panelAnim is the animated height of one panel, in detail lines.
type panelAnim struct {
	pos, vel, target float64
}

func (a *panelAnim) settled() bool {
	return math.Abs(a.pos-a.target) < settleEpsilon && math.Abs(a.vel) < settleEpsilon
}

// Model holds the rendered call rows and their panel animations.
type Model struct {
	Rows []page.CallRow
	// Selected is the id of the highlighted row.
	Selected string
	// Dimmed greys out the rows while the overlay is shown.
	Dimmed   bool
	Tooltips []string
	// Empty is shown when there are no rows.
	Empty string
	Width int

	animate bool
	spring  harmonica.Spring
	anims   map[string]*panelAnim
}

// New creates a content view. animate=false makes every panel snap.
func New(animate bool) Model {
	return Model{
		Empty:   "No calls",
		animate: animate,
		spring:  harmonica.NewSpring(harmonica.FPS(FrameRate), angularFrequency, dampingRatio),
		anims:   make(map[string]*panelAnim),
	}
}

// SetRows replaces the rows, keeping the selection when its row survives
// and retargeting panel animations. It reports whether an animation is
// running afterwards.
func (m *Model) SetRows(rows []page.CallRow) bool {
	m.Rows = rows

	seen := make(map[string]bool, len(rows))
	for _, r := range rows {
		if r.PanelID == "" {
			continue
		}
		seen[r.PanelID] = true
		target := 0.0
		if r.Expanded {
			target = float64(len(r.Details))
		}
		a, ok := m.anims[r.PanelID]
		if !ok {
			m.anims[r.PanelID] = &panelAnim{pos: target, target: target}
			continue
		}
		a.target = target
		if r.Instant || !m.animate {
			a.pos, a.vel = target, 0
		}
	}
	for id := range m.anims {
		if !seen[id] {
			delete(m.anims, id)
		}
	}

	if _, ok := m.SelectedRow(); !ok {
		m.Selected = ""
		if vis := m.visible(); len(vis) > 0 {
			m.Selected = vis[0].ID
		}
	}
	return m.Animating()
}

// Animating reports whether any panel is still moving.
func (m Model) Animating() bool {
	for _, a := range m.anims {
		if !a.settled() {
			return true
		}
	}
	return false
}

// Tick advances every panel one frame and reports whether any is still
// moving.
func (m *Model) Tick() bool {
	running := false
	for _, a := range m.anims {
		if a.settled() {
			continue
		}
		a.pos, a.vel = m.spring.Update(a.pos, a.vel, a.target)
		if a.settled() {
			a.pos, a.vel = a.target, 0
			continue
		}
		running = true
	}
	return running
}

// PanelHeight returns how many detail lines of the panel are visible.
func (m Model) PanelHeight(panelID string) int {
	a, ok := m.anims[panelID]
	if !ok {
		return 0
	}
	return max(int(math.Round(a.pos)), 0)
}

func (m Model) visible() []page.CallRow {
	var out []page.CallRow
	for _, r := range m.Rows {
		if !r.Hidden {
			out = append(out, r)
		}
	}
	return out
}

// SelectedRow returns the highlighted row if it is visible.
func (m Model) SelectedRow() (page.CallRow, bool) {
	for _, r := range m.visible() {
		if r.ID == m.Selected {
			return r, true
		}
	}
	return page.CallRow{}, false
}

// Move shifts the selection by delta visible rows, wrapping around.
func (m *Model) Move(delta int) {
	vis := m.visible()
	if len(vis) == 0 {
		return
	}
	idx := 0
	for i, r := range vis {
		if r.ID == m.Selected {
			idx = i
			break
		}
	}
	idx = ((idx+delta)%len(vis) + len(vis)) % len(vis)
	m.Selected = vis[idx].ID
}

// View renders at most height lines, keeping the selected row in view.
func (m Model) View(height int) string {
	vis := m.visible()
	if len(vis) == 0 {
		return m.style(theme.StyleDimmed).Render("  " + m.Empty)
	}

	var lines []string
	selLine := 0
	for _, r := range vis {
		prefix := "  "
		style := lipgloss.NewStyle()
		if r.Blocked {
			style = style.Foreground(theme.ColorBlocked)
		}
		if r.ID == m.Selected {
			prefix = "> "
			selLine = len(lines)
			style = style.Inherit(theme.StyleSelected)
		}
		glyph := "▸"
		if r.Expanded {
			glyph = "▾"
		}
		lines = append(lines, m.style(style).Render(truncate(prefix+glyph+" "+r.Summary, m.Width)))

		n := min(m.PanelHeight(r.PanelID), len(r.Details))
		for _, d := range r.Details[:n] {
			lines = append(lines, m.style(theme.StyleDimmed).Render(truncate("      "+d, m.Width)))
		}
	}
	for _, tip := range m.Tooltips {
		lines = append(lines, m.style(theme.StyleWarning).Render(truncate("  ⓘ "+tip, m.Width)))
	}

	if height > 0 && len(lines) > height {
		start := min(max(selLine-height/2, 0), len(lines)-height)
		lines = lines[start : start+height]
	}
	return strings.Join(lines, "\n")
}

func (m Model) style(s lipgloss.Style) lipgloss.Style {
	if m.Dimmed {
		return s.Foreground(theme.ColorOverlay).Faint(true)
	}
	return s
}

func truncate(s string, width int) string {
	if width <= 3 {
		return s
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}
