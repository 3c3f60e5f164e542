// Package live tracks the live view connection and keeps the page's content
// region in sync with what the server pushes.
//
// Everything here runs on a single event loop. Timers never touch state
// directly; they hand a closure to the Dispatcher, which must run it on that
// loop.
package live

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/phonelog/liveview/internal/datefmt"
	"github.com/phonelog/liveview/internal/i18n"
	"github.com/phonelog/liveview/internal/page"
)

// Disconnect reasons reported by the transport.
const (
	ReasonServerDisconnect = "io server disconnect"
	ReasonClientDisconnect = "io client disconnect"
	ReasonTransportClose   = "transport close"
	ReasonPingTimeout      = "ping timeout"
)

const (
	// ReloadDelay is how long after a server-initiated disconnect the page
	// is reloaded.
	ReloadDelay = 10 * time.Second

	serverDisconnectText = "disconnected by server"
)

// JoinEvent is the outbound event that subscribes the client to live data.
const JoinEvent = "join_live_view_clients"

// Dispatcher runs f on the event loop that owns the machine.
type Dispatcher func(f func())

func inline(f func()) { f() }

// EventKind identifies a transport or application event.
type EventKind int

const (
	EventConnect EventKind = iota
	EventSubscribed
	EventContentReplaced
	EventDisconnect
	EventConnectError
	EventDisconnectMessage
)

var eventNames = [...]string{
	EventConnect:           "connect",
	EventSubscribed:        "joined_live_view_clients",
	EventContentReplaced:   "replace_content",
	EventDisconnect:        "disconnect",
	EventConnectError:      "connect_error",
	EventDisconnectMessage: "disconnect_message",
}

func (k EventKind) String() string {
	if int(k) < len(eventNames) {
		return eventNames[k]
	}
	return "unknown"
}

// Event is one input to the machine.
type Event struct {
	Kind EventKind
	// Reason is set for EventDisconnect.
	Reason string
	// Message is set for EventDisconnectMessage.
	Message string
}

// Outbound is an event the transport must emit on the machine's behalf.
type Outbound struct {
	Event   string
	Payload string
}

// Session is the connection state. Zero times and empty strings mean absent.
type Session struct {
	ConnectedSince       time.Time
	DisconnectedSince    time.Time
	Subscribed           bool
	LastUpdate           time.Time
	LastReconnectAttempt time.Time
	DisconnectReason     string
	DisconnectMessage    string
}

// Connected reports whether the session is in a connected episode.
func (s Session) Connected() bool {
	return !s.ConnectedSince.IsZero()
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock sets the clock used for timestamps and the reload timer.
func WithClock(c clock.Clock) Option {
	return func(m *Machine) { m.clock = c }
}

// WithDispatcher sets the dispatcher timer callbacks go through.
func WithDispatcher(d Dispatcher) Option {
	return func(m *Machine) { m.dispatch = d }
}

// WithReload sets the hook invoked by the forced reload.
func WithReload(f func()) Option {
	return func(m *Machine) { m.reload = f }
}

// WithCancelReloadOnConnect stops a pending forced reload when the
// transport reconnects before it fires.
func WithCancelReloadOnConnect() Option {
	return func(m *Machine) { m.cancelOnConnect = true }
}

// WithToken sets the source of the anti-forgery token sent with JoinEvent.
func WithToken(token func() string) Option {
	return func(m *Machine) { m.token = token }
}

// WithTranslator sets the translator used for status captions.
func WithTranslator(tr *i18n.Translator) Option {
	return func(m *Machine) { m.tr = tr }
}

// WithFormatter sets the formatter used for status times.
func WithFormatter(f datefmt.Formatter) Option {
	return func(m *Machine) { m.fmt = f }
}

// WithPage makes the machine render its status into doc after every event.
func WithPage(doc *page.Document) Option {
	return func(m *Machine) { m.page = doc }
}

// Machine owns the Session and applies events to it. It is not safe for
// concurrent use.
type Machine struct {
	clock           clock.Clock
	dispatch        Dispatcher
	reload          func()
	cancelOnConnect bool
	token           func() string
	tr              *i18n.Translator
	fmt             datefmt.Formatter
	page            *page.Document

	session     Session
	reloadTimer *clock.Timer
}

// NewMachine returns a machine in the disconnected state.
func NewMachine(opts ...Option) *Machine {
	m := &Machine{
		clock:    clock.New(),
		dispatch: inline,
		token:    func() string { return "" },
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.tr == nil {
		m.tr = i18n.New(m.fmt.Lang)
	}
	m.session.DisconnectedSince = m.clock.Now()
	return m
}

// Session returns a copy of the current session.
func (m *Machine) Session() Session {
	return m.session
}

// Status derives the display status from the current session.
func (m *Machine) Status() Status {
	return Derive(m.session, m.tr, m.fmt)
}

// ReloadPending reports whether a forced reload is armed.
func (m *Machine) ReloadPending() bool {
	return m.reloadTimer != nil
}

// Apply runs one event through the machine and returns what the transport
// must send in response.
func (m *Machine) Apply(ev Event) []Outbound {
	var out []Outbound
	now := m.clock.Now()

	switch ev.Kind {
	case EventConnect:
		m.session = Session{ConnectedSince: now}
		if m.cancelOnConnect {
			m.stopReload()
		}
		out = append(out, Outbound{Event: JoinEvent, Payload: m.token()})

	case EventSubscribed:
		if m.session.Connected() {
			m.session.Subscribed = true
		}

	case EventContentReplaced:
		m.session.LastUpdate = now

	case EventDisconnect:
		m.session.ConnectedSince = time.Time{}
		m.session.DisconnectedSince = now
		m.session.Subscribed = false
		switch {
		case ev.Reason == ReasonServerDisconnect:
			m.session.DisconnectReason = serverDisconnectText
			m.armReload()
		case ev.Reason != "":
			m.session.DisconnectReason = ev.Reason
		}

	case EventConnectError:
		m.session.LastReconnectAttempt = now

	case EventDisconnectMessage:
		m.session.DisconnectMessage = ev.Message
	}

	if m.page != nil {
		m.Status().Render(m.page)
	}
	return out
}

func (m *Machine) armReload() {
	if m.reloadTimer != nil {
		return
	}
	m.reloadTimer = m.clock.AfterFunc(ReloadDelay, func() {
		m.dispatch(m.fireReload)
	})
}

func (m *Machine) fireReload() {
	if m.reloadTimer == nil {
		return
	}
	m.reloadTimer = nil
	if m.reload != nil {
		m.reload()
	}
}

func (m *Machine) stopReload() {
	if m.reloadTimer != nil {
		m.reloadTimer.Stop()
		m.reloadTimer = nil
	}
}

// Stop disarms the forced reload. Use it when discarding the machine.
func (m *Machine) Stop() {
	m.stopReload()
}
