// Package app is the root Bubble Tea model of the terminal live view. It
// owns the page document, feeds transport events to the connection state
// machine and renders the page through the views.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/phonelog/liveview/internal/client"
	"github.com/phonelog/liveview/internal/datefmt"
	"github.com/phonelog/liveview/internal/i18n"
	"github.com/phonelog/liveview/internal/live"
	"github.com/phonelog/liveview/internal/page"
	"github.com/phonelog/liveview/internal/theme"
	"github.com/phonelog/liveview/internal/views/content"
	"github.com/phonelog/liveview/internal/views/debug"
	"github.com/phonelog/liveview/internal/views/help"
	"github.com/phonelog/liveview/internal/views/status"
)

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayDebug
	OverlayHelp
)

// runMsg carries a closure that must run on the update loop.
type runMsg func()

type (
	pageLoadedMsg struct{ html string }
	pageErrorMsg  struct{ err error }
	reloadMsg     struct{}
	frameMsg      struct{}
	serverInfoMsg struct {
		status *client.ServerStatus
		err    error
	}
	// wsMsg tags a transport message with the connection generation that
	// produced it.
	wsMsg struct {
		gen int
		msg tea.Msg
	}
)

// Dispatcher hands closures from timer goroutines to the update loop. It
// queues them until Attach is called.
type Dispatcher struct {
	mu      sync.Mutex
	send    func(tea.Msg)
	pending []func()
}

// NewDispatcher returns a detached dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Attach starts delivery through send, typically tea.Program.Send, and
// flushes anything queued before.
func (d *Dispatcher) Attach(send func(tea.Msg)) {
	d.mu.Lock()
	d.send = send
	pending := d.pending
	d.pending = nil
	d.mu.Unlock()
	for _, f := range pending {
		send(runMsg(f))
	}
}

// Dispatch queues f to run on the update loop.
func (d *Dispatcher) Dispatch(f func()) {
	d.mu.Lock()
	send := d.send
	if send == nil {
		d.pending = append(d.pending, f)
	}
	d.mu.Unlock()
	if send != nil {
		send(runMsg(f))
	}
}

// Options configures the model.
type Options struct {
	Translator            *i18n.Translator
	Formatter             datefmt.Formatter
	Clock                 clock.Clock
	Dispatcher            *Dispatcher
	CancelReloadOnConnect bool
	Animate               bool
	Log                   zerolog.Logger
}

// deferred collects commands queued by machine hooks while a dispatched
// closure runs.
type deferred struct {
	cmds []tea.Cmd
}

func (d *deferred) drain() []tea.Cmd {
	cmds := d.cmds
	d.cmds = nil
	return cmds
}

// Model is the root Bubble Tea model.
type Model struct {
	ws     *client.WSClient
	http   *client.HTTPClient
	opts   Options
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	keys    KeyMap
	width   int
	height  int
	overlay Overlay

	// Page state.
	doc     *page.Document
	machine *live.Machine
	syncer  *live.Synchronizer
	gen     int
	hooks   *deferred
	loadErr error

	// Sub-views.
	statusBar status.Model
	content   content.Model
	debug     debug.Model
	animating bool
}

// New creates the root model.
func New(ws *client.WSClient, http *client.HTTPClient, opts Options) Model {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = NewDispatcher()
	}
	if opts.Translator == nil {
		opts.Translator = i18n.New(opts.Formatter.Lang)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		ws:        ws,
		http:      http,
		opts:      opts,
		log:       opts.Log.With().Str("component", "app").Logger(),
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		hooks:     &deferred{},
		statusBar: status.New(),
		content:   content.New(opts.Animate),
		debug:     debug.New(opts.Clock.Now),
	}
}

// Init loads the page.
func (m Model) Init() tea.Cmd {
	return m.loadPage()
}

func (m Model) loadPage() tea.Cmd {
	ctx, h := m.ctx, m.http
	return func() tea.Msg {
		html, err := h.FetchPage(ctx)
		if err != nil {
			return pageErrorMsg{err: err}
		}
		return pageLoadedMsg{html: html}
	}
}

func (m Model) fetchServerInfo() tea.Cmd {
	ctx, h := m.ctx, m.http
	return func() tea.Msg {
		s, err := h.GetStatus(ctx)
		return serverInfoMsg{status: s, err: err}
	}
}

// after delivers msg once d has passed on the model's clock.
func (m Model) after(d time.Duration, msg tea.Msg) tea.Cmd {
	clk, ctx := m.opts.Clock, m.ctx
	return func() tea.Msg {
		t := clk.Timer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			return msg
		}
	}
}

// wrap tags the result of a transport command with the current generation.
func (m Model) wrap(cmd tea.Cmd) tea.Cmd {
	gen := m.gen
	return func() tea.Msg {
		msg := cmd()
		if msg == nil {
			return nil
		}
		return wsMsg{gen: gen, msg: msg}
	}
}

func frame() tea.Cmd {
	return tea.Tick(time.Second/content.FrameRate, func(time.Time) tea.Msg { return frameMsg{} })
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.content.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case pageLoadedMsg:
		return m.onPage(msg.html)

	case pageErrorMsg:
		return m.onPageError(msg.err)

	case reloadMsg:
		m.debug.Add(debug.KindPage, "reloading page")
		return m, m.loadPage()

	case runMsg:
		msg()
		cmds := m.hooks.drain()
		cmds = append(cmds, m.refresh())
		return m, tea.Batch(cmds...)

	case frameMsg:
		if m.content.Tick() {
			return m, frame()
		}
		m.animating = false
		return m, nil

	case serverInfoMsg:
		if msg.err != nil {
			m.debug.Add(debug.KindErr, msg.err.Error())
		} else {
			p := m.opts.Translator.Printer()
			m.debug.Add(debug.KindWS, p.Sprintf("server: %d clients, %d joined, %d calls, up %s, rss %d bytes",
				msg.status.Clients, msg.status.Joined, msg.status.Calls,
				msg.status.Uptime.Round(time.Second), msg.status.RSSBytes))
		}
		m.overlay = OverlayDebug
		return m, nil

	case wsMsg:
		if msg.gen != m.gen || m.machine == nil {
			return m, nil
		}
		return m.handleTransport(msg.msg)
	}

	return m, nil
}

func (m Model) onPage(html string) (tea.Model, tea.Cmd) {
	tr, f := m.opts.Translator, m.opts.Formatter
	doc, err := page.ParseString(html, tr, f)
	if err != nil {
		return m.onPageError(err)
	}
	doc.FixAll()

	// A reload replaces the connection along with the page.
	if m.machine != nil {
		m.machine.Stop()
	}
	m.gen++
	m.ws.Close()

	hooks := m.hooks
	opts := []live.Option{
		live.WithClock(m.opts.Clock),
		live.WithDispatcher(m.opts.Dispatcher.Dispatch),
		live.WithReload(func() {
			hooks.cmds = append(hooks.cmds, func() tea.Msg { return reloadMsg{} })
		}),
		live.WithToken(doc.CSRFToken),
		live.WithTranslator(tr),
		live.WithFormatter(f),
		live.WithPage(doc),
	}
	if m.opts.CancelReloadOnConnect {
		opts = append(opts, live.WithCancelReloadOnConnect())
	}
	m.machine = live.NewMachine(opts...)
	m.syncer = live.NewSynchronizer(m.machine, doc, m.log)
	m.doc = doc
	m.loadErr = nil
	m.content.Empty = tr.Translate("No calls")
	m.debug.Add(debug.KindPage, "page loaded")
	m.log.Info().Int("bytes", len(html)).Msg("page loaded")

	return m, tea.Batch(m.refresh(), m.wrap(m.ws.Connect(m.ctx)))
}

func (m Model) onPageError(err error) (tea.Model, tea.Cmd) {
	m.loadErr = err
	m.log.Warn().Err(err).Msg("page load failed")
	m.debug.Add(debug.KindErr, err.Error())
	return m, m.after(live.ReloadDelay, reloadMsg{})
}

func (m Model) handleTransport(msg tea.Msg) (tea.Model, tea.Cmd) {
	var ev *live.Event
	var next tea.Cmd

	switch msg := msg.(type) {
	case client.ConnectedMsg:
		m.debug.Addf(debug.KindWS, "connected degraded=%t", msg.Degraded)
		warning := ""
		if msg.Degraded {
			warning = m.opts.Translator.Translate("Websockets not supported")
		}
		m.doc.SetWarning(warning)
		for _, out := range m.machine.Apply(live.Event{Kind: live.EventConnect}) {
			if err := m.ws.Emit(out.Event, out.Payload); err != nil {
				m.log.Warn().Err(err).Str("event", out.Event).Msg("emit failed")
				m.debug.Add(debug.KindErr, err.Error())
			}
		}
		next = m.wrap(m.ws.ReadLoop(m.ctx))

	case client.ConnectErrorMsg:
		m.debug.Add(debug.KindErr, msg.Err.Error())
		ev = &live.Event{Kind: live.EventConnectError}
		next = m.wrap(m.ws.Reconnect(m.ctx))

	case client.DisconnectedMsg:
		m.debug.Addf(debug.KindWS, "disconnected reason=%q", msg.Reason)
		ev = &live.Event{Kind: live.EventDisconnect, Reason: msg.Reason}
		switch msg.Reason {
		case live.ReasonServerDisconnect, live.ReasonClientDisconnect:
			// No automatic reconnect; a server disconnect waits for the
			// forced reload.
		default:
			next = m.wrap(m.ws.Reconnect(m.ctx))
		}

	case client.JoinedMsg:
		m.debug.Add(debug.KindWS, "joined live view")
		m.machine.Apply(live.Event{Kind: live.EventSubscribed})
		msg.Ack()
		next = m.wrap(m.ws.ReadLoop(m.ctx))

	case client.DisconnectMessageMsg:
		m.debug.Addf(debug.KindWS, "message: %s", msg.Message)
		m.machine.Apply(live.Event{Kind: live.EventDisconnectMessage, Message: msg.Message})
		if msg.Ack != nil {
			msg.Ack()
		}
		next = m.wrap(m.ws.ReadLoop(m.ctx))

	case client.ReplaceContentMsg:
		m.debug.Addf(debug.KindLive, "replace content (%d bytes)", len(msg.HTML))
		m.syncer.Replace(msg.HTML, msg.Ack)
		next = m.wrap(m.ws.ReadLoop(m.ctx))
	}

	if ev != nil {
		m.machine.Apply(*ev)
	}
	return m, tea.Batch(m.refresh(), next)
}

// refresh reads the page back into the views and starts the panel
// animation when one is pending.
func (m *Model) refresh() tea.Cmd {
	if m.doc == nil {
		return nil
	}
	m.statusBar.Sync(m.doc)
	m.content.Dimmed = m.doc.OverlayVisible()
	m.content.Tooltips = m.doc.Tooltips()
	running := m.content.SetRows(m.doc.CallSessions())

	shown := 0
	for _, r := range m.content.Rows {
		if !r.Hidden {
			shown++
		}
	}
	m.statusBar.Calls = m.opts.Translator.Printer().Sprintf("☎ %d", shown)

	if running && !m.animating {
		m.animating = true
		return frame()
	}
	return nil
}

func (m *Model) shutdown() {
	m.cancel()
	m.ws.Close()
	if m.machine != nil {
		m.machine.Stop()
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.shutdown()
		return m, tea.Quit
	}

	if m.overlay != OverlayNone {
		switch {
		case key.Matches(msg, m.keys.Escape):
			m.overlay = OverlayNone
		case m.overlay == OverlayDebug && key.Matches(msg, m.keys.Up):
			m.debug.ScrollUp(1)
		case m.overlay == OverlayDebug && key.Matches(msg, m.keys.Down):
			m.debug.ScrollDown(1)
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Debug):
		m.overlay = OverlayDebug
		return m, nil
	case key.Matches(msg, m.keys.Help):
		m.overlay = OverlayHelp
		return m, nil
	case key.Matches(msg, m.keys.Info):
		return m, m.fetchServerInfo()
	}

	if m.doc == nil {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Down):
		m.content.Move(1)

	case key.Matches(msg, m.keys.Up):
		m.content.Move(-1)

	case key.Matches(msg, m.keys.Toggle):
		if row, ok := m.content.SelectedRow(); ok && row.PanelID != "" {
			open := m.doc.TogglePanel(row.PanelID)
			m.debug.Addf(debug.KindPage, "%s expanded=%t", row.PanelID, open)
		}

	case key.Matches(msg, m.keys.ShowBlocked):
		m.doc.SetShowBlocked(!m.doc.ShowBlocked())

	case key.Matches(msg, m.keys.Tooltip):
		if len(m.doc.Tooltips()) > 0 {
			m.doc.RemoveDynamicTooltips()
		} else if row, ok := m.content.SelectedRow(); ok {
			m.doc.ShowTooltip(row.TooltipID)
		}

	case key.Matches(msg, m.keys.Status):
		m.statusBar.Expanded = !m.statusBar.Expanded

	case key.Matches(msg, m.keys.Reconnect):
		m.gen++
		if m.ws.Connected() {
			m.ws.Close()
			m.machine.Apply(live.Event{Kind: live.EventDisconnect, Reason: live.ReasonClientDisconnect})
		}
		m.debug.Add(debug.KindWS, "manual reconnect")
		return m, tea.Batch(m.refresh(), m.wrap(m.ws.Connect(m.ctx)))

	default:
		return m, nil
	}

	return m, m.refresh()
}

// View renders the full UI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	switch m.overlay {
	case OverlayDebug:
		return m.debug.View(m.width, m.height)
	case OverlayHelp:
		return help.View(m.opts.Translator.Translate("Phone log"), m.keys.Bindings(), m.width)
	}

	if m.doc == nil {
		if m.loadErr != nil {
			return lipgloss.JoinVertical(lipgloss.Left,
				theme.StyleWarning.Render(m.loadErr.Error()),
				theme.StyleDimmed.Render(m.opts.Translator.Translate("Reloading page")+"..."),
			)
		}
		return "Loading..."
	}

	bar := m.statusBar.View()
	footer := theme.StyleDimmed.Render("  j/k:navigate  enter:details  b:blocked  t:tooltip  s:status  r:reconnect  ?:help  q:quit")
	body := m.content.View(m.height - lipgloss.Height(bar) - lipgloss.Height(footer))

	return lipgloss.JoinVertical(lipgloss.Left, bar, body, footer)
}
