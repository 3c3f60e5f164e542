package page

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// CallRow is the terminal view of one .call-session element.
type CallRow struct {
	ID      string
	Summary string
	// TooltipID is the id of the element carrying the row's tooltip.
	TooltipID string
	Tooltip   string
	Blocked   bool
	Hidden    bool
	PanelID   string
	Expanded  bool
	// Instant is set while the panel's transitions are suppressed.
	Instant bool
	Details []string
}

// CallSessions lists the call sessions in the content region in document
// order.
func (d *Document) CallSessions() []CallRow {
	var rows []CallRow
	d.byID(IDContent).Find(".call-session").Each(func(_ int, s *goquery.Selection) {
		row := CallRow{
			ID:      s.AttrOr("id", ""),
			Blocked: s.HasClass("blocked-invalid-number"),
			Hidden:  s.HasClass("d-none"),
		}

		summary := s.Find(".call-summary").First()
		if summary.Length() == 0 {
			summary = s
		}
		row.Summary = collapseSpace(summary.Text())
		row.TooltipID = summary.AttrOr("id", "")
		row.Tooltip = summary.AttrOr("title", "")

		panel := s.Find(`[id^="` + PanelPrefix + `"]`).First()
		if panel.Length() > 0 {
			row.PanelID = panel.AttrOr("id", "")
			row.Expanded = panel.HasClass("show")
			row.Instant = styleGet(panel.AttrOr("style", ""), "transition") == "none"
			lines := panel.Find(".detail-line")
			if lines.Length() == 0 {
				lines = panel
			}
			lines.Each(func(_ int, l *goquery.Selection) {
				if text := collapseSpace(l.Text()); text != "" {
					row.Details = append(row.Details, text)
				}
			})
		}
		rows = append(rows, row)
	})
	return rows
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
