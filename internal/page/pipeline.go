package page

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"

	"github.com/phonelog/liveview/internal/datefmt"
)

// FixAll runs the post-processing pipeline over the whole page.
func (d *Document) FixAll() {
	d.fix(d.doc.Selection)
}

// FixContent runs the post-processing pipeline with translation and date
// formatting limited to the content region.
func (d *Document) FixContent() {
	region := d.byID(IDContent)
	if region.Length() == 0 {
		return
	}
	d.fix(region)
}

func (d *Document) fix(start *goquery.Selection) {
	d.fixI18n(start)
	d.fixDates(start)
	d.hideBlockedUnlessChecked()
	d.fixTooltips()
}

func (d *Document) fixI18n(start *goquery.Selection) {
	start.Find("[data-title-i18n]").Each(func(_ int, s *goquery.Selection) {
		s.SetAttr("title", d.tr.Translate(s.AttrOr("data-title-i18n", "")))
	})
	start.Find("[data-i18n]").Each(func(_ int, s *goquery.Selection) {
		s.SetText(d.tr.Translate(s.Text()))
	})
}

func (d *Document) fixDates(start *goquery.Selection) {
	for _, mode := range datefmt.Modes {
		start.Find(".fix_" + string(mode)).Each(func(_ int, s *goquery.Selection) {
			epoch, ok := datefmt.ParseEpoch(s.AttrOr("data-epoch", ""))
			if !ok {
				return
			}
			s.SetText(d.fmt.Format(epoch, mode))
			s.SetAttr("style", styleSet(s.AttrOr("style", ""), "visibility", "visible"))
		})
	}
}

// fixTooltips drops every open tooltip once tooltips have been set up.
func (d *Document) fixTooltips() {
	if d.tooltipsReady {
		d.doc.Find(".tooltip").Remove()
		return
	}
	d.tooltipsReady = true
}

// ShowBlocked reports whether the "show blocked numbers" checkbox is checked.
func (d *Document) ShowBlocked() bool {
	_, checked := d.byID(IDShowBlocked).Attr("checked")
	return checked
}

// SetShowBlocked checks or unchecks the checkbox and reapplies the filter.
func (d *Document) SetShowBlocked(show bool) {
	box := d.byID(IDShowBlocked)
	if box.Length() == 0 {
		return
	}
	if show {
		box.SetAttr("checked", "")
	} else {
		box.RemoveAttr("checked")
	}
	d.hideBlockedUnlessChecked()
}

func (d *Document) hideBlockedUnlessChecked() {
	if !d.ShowBlocked() {
		d.doc.Find(".call-session.blocked-invalid-number").AddClass("d-none")
		return
	}
	d.doc.Find(".call-session").RemoveClass("d-none")
}

// styleDecls parses an inline style attribute. Unparseable styles read as
// empty.
func styleDecls(style string) []*css.Declaration {
	style = strings.TrimRight(strings.TrimSpace(style), "; ")
	if style == "" {
		return nil
	}
	decls, err := parser.ParseDeclarations(style + ";")
	if err != nil {
		return nil
	}
	return decls
}

// styleGet returns the value of prop in an inline style attribute.
func styleGet(style, prop string) string {
	for _, d := range styleDecls(style) {
		if strings.EqualFold(d.Property, prop) {
			return d.Value
		}
	}
	return ""
}

// styleSet sets prop in an inline style attribute. An empty value removes it.
func styleSet(style, prop, value string) string {
	var out []string
	found := false
	for _, d := range styleDecls(style) {
		if strings.EqualFold(d.Property, prop) {
			found = true
			if value != "" {
				out = append(out, prop+": "+value)
			}
			continue
		}
		decl := d.Property + ": " + d.Value
		if d.Important {
			decl += " !important"
		}
		out = append(out, decl)
	}
	if !found && value != "" {
		out = append(out, prop+": "+value)
	}
	return strings.Join(out, "; ")
}
