package page

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExpandedPanels returns the ids of expanded panels in the content region
// whose id starts with prefix.
func (d *Document) ExpandedPanels(prefix string) []string {
	region := d.byID(IDContent)
	if region.Length() == 0 {
		return nil
	}
	var ids []string
	region.Find(`.collapse.show[id^="` + prefix + `"]`).Each(func(_ int, s *goquery.Selection) {
		if id, ok := s.Attr("id"); ok {
			ids = append(ids, id)
		}
	})
	return ids
}

// ReplaceContent swaps the content region's children for html. It reports
// false when the page has no content region.
func (d *Document) ReplaceContent(html string) bool {
	region := d.byID(IDContent)
	if region.Length() == 0 {
		return false
	}
	region.SetHtml(html)
	return true
}

// ExpandPanel shows the panel with the given id with transitions disabled.
// It returns the panel's previous inline transition value.
func (d *Document) ExpandPanel(id string) (prevTransition string, ok bool) {
	el := d.byID(id)
	if el.Length() == 0 {
		return "", false
	}
	style := el.AttrOr("style", "")
	prevTransition = styleGet(style, "transition")
	el.SetAttr("style", styleSet(style, "transition", "none"))
	el.AddClass("collapse", "show")
	return prevTransition, true
}

// RestoreTransition puts back a panel's inline transition value.
func (d *Document) RestoreTransition(id, transition string) {
	el := d.byID(id)
	if el.Length() == 0 {
		return
	}
	style := styleSet(el.AttrOr("style", ""), "transition", transition)
	if style == "" {
		el.RemoveAttr("style")
		return
	}
	el.SetAttr("style", style)
}

// TogglePanel flips a panel between collapsed and expanded and returns the
// new state.
func (d *Document) TogglePanel(id string) bool {
	el := d.byID(id)
	if el.Length() == 0 {
		return false
	}
	if el.HasClass("show") {
		el.RemoveClass("show")
		return false
	}
	el.AddClass("show")
	return true
}

// RemoveDynamicTooltips drops tooltips created for elements that are about to
// be replaced.
func (d *Document) RemoveDynamicTooltips() {
	d.doc.Find(".tooltip.dynamic").Remove()
}

// ShowTooltip opens a dynamic tooltip for the element with the given id,
// using its title. It reports false when there is nothing to show.
func (d *Document) ShowTooltip(id string) bool {
	el := d.byID(id)
	title := el.AttrOr("title", "")
	if el.Length() == 0 || title == "" {
		return false
	}
	d.doc.Find(`.tooltip[data-for="` + id + `"]`).Remove()
	tip := d.doc.Find("body").AppendHtml(`<div class="tooltip dynamic"></div>`).Children().Last()
	tip.SetAttr("data-for", id)
	tip.SetText(title)
	return true
}

// Tooltips returns the texts of the tooltips currently open.
func (d *Document) Tooltips() []string {
	return d.doc.Find(".tooltip").Map(func(_ int, s *goquery.Selection) string {
		return strings.TrimSpace(s.Text())
	})
}
