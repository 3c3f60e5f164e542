// Package page holds the live view page as an HTML document and implements
// the mutations the browser page performs on it: the status badge, the
// overlay, content replacement and the post-processing pipeline.
package page

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/phonelog/liveview/internal/datefmt"
	"github.com/phonelog/liveview/internal/i18n"
)

// Element ids the page contract relies on.
const (
	IDStatus      = "connection_info"
	IDWarning     = "connection_warning"
	IDContent     = "active_content"
	IDOverlay     = "viewport-overlay"
	IDShowBlocked = "show_blocked_checkbox"

	// PanelPrefix prefixes the ids of collapsible call detail panels.
	PanelPrefix = "details-"
)

// Severity classes the status badge can carry.
var severityClasses = []string{"bg-danger", "bg-warning", "bg-success"}

// OverlayAction says what a status update does to the overlay.
type OverlayAction int

const (
	OverlayKeep OverlayAction = iota
	OverlayShow
	OverlayHide
)

// Document is a parsed live view page. It is not safe for concurrent use.
type Document struct {
	doc *goquery.Document
	tr  *i18n.Translator
	fmt datefmt.Formatter

	tooltipsReady bool
}

// Parse reads a page from r.
func Parse(r io.Reader, tr *i18n.Translator, f datefmt.Formatter) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return &Document{doc: doc, tr: tr, fmt: f}, nil
}

// ParseString parses a page held in a string.
func ParseString(html string, tr *i18n.Translator, f datefmt.Formatter) (*Document, error) {
	return Parse(strings.NewReader(html), tr, f)
}

func (d *Document) byID(id string) *goquery.Selection {
	return d.doc.Find(`[id="` + id + `"]`).First()
}

// CSRFToken returns the anti-forgery token embedded by the server.
func (d *Document) CSRFToken() string {
	return d.doc.Find(`meta[name="csrf-token"]`).AttrOr("content", "")
}

// SetBadge updates the status badge text, severity class and tooltip.
func (d *Document) SetBadge(text, class string, tooltip []string) {
	badge := d.byID(IDStatus)
	if badge.Length() == 0 {
		return
	}
	for _, c := range severityClasses {
		badge.RemoveClass(c)
	}
	badge.AddClass(class)
	badge.SetText(text)
	badge.SetAttr("data-bs-original-title", strings.Join(tooltip, "\n"))
}

// Badge returns the badge text, its severity class and tooltip lines.
func (d *Document) Badge() (text, class string, tooltip []string) {
	badge := d.byID(IDStatus)
	for _, c := range severityClasses {
		if badge.HasClass(c) {
			class = c
		}
	}
	if t := badge.AttrOr("data-bs-original-title", ""); t != "" {
		tooltip = strings.Split(t, "\n")
	}
	return strings.TrimSpace(badge.Text()), class, tooltip
}

// SetOverlay shows or hides the overlay.
func (d *Document) SetOverlay(a OverlayAction) {
	overlay := d.byID(IDOverlay)
	switch a {
	case OverlayShow:
		overlay.AddClass("visible")
	case OverlayHide:
		overlay.RemoveClass("visible")
	}
}

// OverlayVisible reports whether the overlay is shown.
func (d *Document) OverlayVisible() bool {
	return d.byID(IDOverlay).HasClass("visible")
}

// SetWarning sets the warning banner text.
func (d *Document) SetWarning(text string) {
	d.byID(IDWarning).SetText(text)
}

// Warning returns the warning banner text.
func (d *Document) Warning() string {
	return strings.TrimSpace(d.byID(IDWarning).Text())
}

// ContentHTML returns the inner HTML of the content region.
func (d *Document) ContentHTML() string {
	h, err := d.byID(IDContent).Html()
	if err != nil {
		return ""
	}
	return h
}
