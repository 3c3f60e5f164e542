package live

import (
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/phonelog/liveview/internal/datefmt"
	"github.com/phonelog/liveview/internal/i18n"
	"github.com/phonelog/liveview/internal/page"
)

const pageShell = `<html><head><meta name="csrf-token" content="csrf-abc"></head><body>
<span id="connection_info" class="badge bg-danger">Not connected</span>
<div id="viewport-overlay" class="visible"></div>
<input type="checkbox" id="show_blocked_checkbox">
<div id="active_content">CONTENT</div>
</body></html>`

func newTestPage(t *testing.T, content string) *page.Document {
	t.Helper()
	html := strings.Replace(pageShell, "CONTENT", content, 1)
	doc, err := page.ParseString(html, i18n.New(language.English), datefmt.New(language.English, time.UTC))
	require.NoError(t, err)
	return doc
}

func newTestSync(t *testing.T, content string) (*Synchronizer, *Machine, *page.Document, *loop) {
	t.Helper()
	doc := newTestPage(t, content)
	m, _, l, _ := newTestMachine(t, WithPage(doc))
	return NewSynchronizer(m, doc, zerolog.Nop()), m, doc, l
}

func TestScenarioConnectSubscribeReplace(t *testing.T) {
	s, m, doc, _ := newTestSync(t, "")
	m.Apply(Event{Kind: EventConnect})
	m.Apply(Event{Kind: EventSubscribed})
	s.Replace("<div>A</div>", nil)

	st := m.Status()
	assert.Equal(t, Live, st.Label)
	assert.Equal(t, SeveritySuccess, st.Severity)
	assert.Equal(t, "<div>A</div>", doc.ContentHTML())

	text, class, _ := doc.Badge()
	assert.Equal(t, "Connected", text)
	assert.Equal(t, "bg-success", class)
	assert.False(t, doc.OverlayVisible())
}

func TestScenarioServerDisconnectRendersDanger(t *testing.T) {
	_, m, doc, _ := newTestSync(t, "")
	m.Apply(Event{Kind: EventConnect})
	m.Apply(Event{Kind: EventDisconnect, Reason: ReasonServerDisconnect})

	text, class, tooltip := doc.Badge()
	assert.Equal(t, "Disconnected", text)
	assert.Equal(t, "bg-danger", class)
	assert.Equal(t, "Reason: disconnected by server", tooltip[1])
	assert.True(t, doc.OverlayVisible())
	assert.True(t, m.ReloadPending())
}

func TestWaitingKeepsOverlay(t *testing.T) {
	_, m, doc, _ := newTestSync(t, "")
	m.Apply(Event{Kind: EventConnect})
	m.Apply(Event{Kind: EventSubscribed})
	assert.True(t, doc.OverlayVisible())
}

func TestReplacePreservesExpandedPanels(t *testing.T) {
	s, m, doc, l := newTestSync(t, `
		<div class="collapse show" id="details-7" style="transition: height .3s"></div>
		<div class="collapse" id="details-8"></div>`)
	m.Apply(Event{Kind: EventConnect})

	s.Replace(`
		<div class="collapse" id="details-7" style="transition: height .3s">seven</div>
		<div class="collapse" id="details-8">eight</div>
		<div class="collapse" id="details-9">nine</div>`, nil)

	assert.Equal(t, []string{"details-7"}, doc.ExpandedPanels(page.PanelPrefix))
	q := query(t, doc)
	assert.Equal(t, "transition: none", q.Find("#details-7").AttrOr("style", ""))
	assert.False(t, q.Find("#details-8").HasClass("show"))
	assert.False(t, q.Find("#details-9").HasClass("show"))

	mock := m.clock.(interface{ Add(time.Duration) })
	mock.Add(TransitionSuppression)
	l.runNext(t)

	q = query(t, doc)
	assert.Equal(t, "transition: height .3s", q.Find("#details-7").AttrOr("style", ""))
	assert.True(t, q.Find("#details-7").HasClass("show"))
}

func TestRestoreSkipsSupersededReplace(t *testing.T) {
	s, m, doc, l := newTestSync(t, `<div class="collapse show" id="details-7" style="transition: height .3s"></div>`)
	mock := m.clock.(interface{ Add(time.Duration) })

	s.Replace(`<div class="collapse" id="details-7" style="transition: height .3s">one</div>`, nil)
	mock.Add(300 * time.Millisecond)
	s.Replace(`<div class="collapse" id="details-7" style="transition: opacity 1s">two</div>`, nil)

	mock.Add(200 * time.Millisecond)
	l.runNext(t)
	assert.Equal(t, "transition: none", query(t, doc).Find("#details-7").AttrOr("style", ""),
		"the first replacement's restore leaves the newer panel suppressed")

	mock.Add(300 * time.Millisecond)
	l.runNext(t)
	assert.Equal(t, "transition: opacity 1s", query(t, doc).Find("#details-7").AttrOr("style", ""))
}

func TestReplaceSkipsPanelsMissingFromFragment(t *testing.T) {
	s, _, doc, l := newTestSync(t, `<div class="collapse show" id="details-1"></div>`)
	s.Replace(`<div class="collapse" id="details-2"></div>`, nil)

	assert.Empty(t, doc.ExpandedPanels(page.PanelPrefix))
	l.expectIdle(t)
}

func TestReplaceRecordsUpdateBeforeRendering(t *testing.T) {
	doc, err := page.ParseString(`<html><body></body></html>`, i18n.New(language.English), datefmt.New(language.English, time.UTC))
	require.NoError(t, err)
	m, _, _, _ := newTestMachine(t, WithPage(doc))
	s := NewSynchronizer(m, doc, zerolog.Nop())

	acked := false
	s.Replace("<p>x</p>", func() { acked = true })

	assert.True(t, acked, "ack runs even without a content region")
	assert.False(t, m.Session().LastUpdate.IsZero())
}

func TestReplaceRunsPipelineAndDropsDynamicTooltips(t *testing.T) {
	s, _, doc, _ := newTestSync(t, `<div id="summary-1" title="tip">x</div>`)
	doc.FixAll()
	require.True(t, doc.ShowTooltip("summary-1"))

	var order []string
	s.Replace(`
		<div class="call-session blocked-invalid-number" id="call-1"><div class="call-summary">b</div></div>
		<span class="fix_iso_date" data-epoch="86400"></span>
		<span data-i18n>Live</span>`, func() {
		order = append(order, "ack")
	})

	assert.Equal(t, []string{"ack"}, order)
	assert.Empty(t, doc.Tooltips())
	q := query(t, doc)
	assert.True(t, q.Find("#call-1").HasClass("d-none"))
	assert.Equal(t, "1970-01-02", q.Find(".fix_iso_date").Text())
}

func query(t *testing.T, doc *page.Document) *goquery.Document {
	t.Helper()
	q, err := goquery.NewDocumentFromReader(strings.NewReader(doc.ContentHTML()))
	require.NoError(t, err)
	return q
}
