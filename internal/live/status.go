package live

import (
	"time"

	"github.com/phonelog/liveview/internal/datefmt"
	"github.com/phonelog/liveview/internal/i18n"
	"github.com/phonelog/liveview/internal/page"
)

// Label is the user-visible connection state.
type Label int

const (
	Disconnected Label = iota
	Subscribing
	WaitingForData
	Live
)

func (l Label) String() string {
	switch l {
	case Disconnected:
		return "Disconnected"
	case Subscribing:
		return "Subscribing"
	case WaitingForData:
		return "WaitingForData"
	case Live:
		return "Live"
	}
	return "unknown"
}

// Severity is the badge colour class.
type Severity string

const (
	SeverityDanger  Severity = "danger"
	SeverityWarning Severity = "warning"
	SeveritySuccess Severity = "success"
)

// Class returns the badge CSS class for the severity.
func (s Severity) Class() string {
	return "bg-" + string(s)
}

// Status is derived from a Session on every event and never stored.
type Status struct {
	Label    Label
	Severity Severity
	// Text is the translated badge caption.
	Text    string
	Tooltip []string
	Overlay page.OverlayAction
}

// Derive computes the display status for s.
func Derive(s Session, tr *i18n.Translator, f datefmt.Formatter) Status {
	ts := func(t time.Time) string { return f.Time(t, datefmt.ISOTime) }

	var st Status
	if s.Connected() {
		st.Text = tr.Translate("Connected")
		st.Tooltip = []string{tr.Translate("Connected since: ") + ts(s.ConnectedSince)}
		switch {
		case s.Subscribed && !s.LastUpdate.IsZero():
			st.Label, st.Severity = Live, SeveritySuccess
			st.Overlay = page.OverlayHide
		case s.Subscribed:
			st.Label, st.Severity = WaitingForData, SeverityWarning
			st.Tooltip = append(st.Tooltip, tr.Translate("Waiting for data"))
		default:
			st.Label, st.Severity = Subscribing, SeverityWarning
			st.Text = tr.Translate("Subscribing")
			st.Tooltip = []string{tr.Translate("Subscribing to live view data")}
		}
		if s.DisconnectMessage != "" {
			st.Tooltip = append(st.Tooltip, tr.Translate("Message: ")+s.DisconnectMessage)
		}
	} else {
		st.Label, st.Severity = Disconnected, SeverityDanger
		st.Text = tr.Translate("Disconnected")
		st.Overlay = page.OverlayShow
		st.Tooltip = []string{tr.Translate("Disconnected since: ") + ts(s.DisconnectedSince)}
		if s.DisconnectReason != "" {
			st.Tooltip = append(st.Tooltip, tr.Translate("Reason: ")+s.DisconnectReason)
		}
		if s.DisconnectMessage != "" {
			st.Tooltip = append(st.Tooltip, tr.Translate("Message: ")+s.DisconnectMessage)
		}
		if !s.LastReconnectAttempt.IsZero() {
			st.Tooltip = append(st.Tooltip, tr.Translate("Last reconnect attempt: ")+ts(s.LastReconnectAttempt))
		}
	}
	if !s.LastUpdate.IsZero() {
		st.Tooltip = append(st.Tooltip, tr.Translate("Last update: ")+ts(s.LastUpdate))
	}
	return st
}

// Render writes the status to the page badge and overlay.
func (st Status) Render(doc *page.Document) {
	doc.SetBadge(st.Text, st.Severity.Class(), st.Tooltip)
	doc.SetOverlay(st.Overlay)
}
