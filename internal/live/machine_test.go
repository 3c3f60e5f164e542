package live

import (
	"math/rand"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/phonelog/liveview/internal/datefmt"
	"github.com/phonelog/liveview/internal/i18n"
)

// loop stands in for the event loop: timer callbacks arrive on ch and the
// test runs them.
type loop struct {
	ch chan func()
}

func newLoop() *loop {
	return &loop{ch: make(chan func(), 16)}
}

func (l *loop) dispatch(f func()) { l.ch <- f }

// runNext runs the next dispatched closure, failing if none arrives.
func (l *loop) runNext(t *testing.T) {
	t.Helper()
	select {
	case f := <-l.ch:
		f()
	case <-time.After(time.Second):
		t.Fatal("no callback dispatched")
	}
}

// expectIdle fails if a closure is dispatched within a short window.
func (l *loop) expectIdle(t *testing.T) {
	t.Helper()
	select {
	case <-l.ch:
		t.Fatal("unexpected callback dispatched")
	case <-time.After(50 * time.Millisecond):
	}
}

var start = time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)

func newTestMachine(t *testing.T, opts ...Option) (*Machine, *clock.Mock, *loop, *int) {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(start)
	l := newLoop()
	reloads := 0
	base := []Option{
		WithClock(mock),
		WithDispatcher(l.dispatch),
		WithReload(func() { reloads++ }),
		WithToken(func() string { return "csrf-abc" }),
		WithFormatter(datefmt.New(language.English, time.UTC)),
	}
	return NewMachine(append(base, opts...)...), mock, l, &reloads
}

func TestInitialStateIsDisconnected(t *testing.T) {
	m, _, _, _ := newTestMachine(t)
	s := m.Session()
	assert.False(t, s.Connected())
	assert.Equal(t, start, s.DisconnectedSince)
	assert.Equal(t, Disconnected, m.Status().Label)
}

func TestConnectClearsEpisodeAndJoins(t *testing.T) {
	m, mock, _, _ := newTestMachine(t)
	m.Apply(Event{Kind: EventConnectError})
	m.Apply(Event{Kind: EventDisconnectMessage, Message: "maintenance"})
	mock.Add(time.Second)

	out := m.Apply(Event{Kind: EventConnect})
	require.Equal(t, []Outbound{{Event: JoinEvent, Payload: "csrf-abc"}}, out)

	s := m.Session()
	assert.Equal(t, Session{ConnectedSince: start.Add(time.Second)}, s)
	assert.Equal(t, Subscribing, m.Status().Label)
	assert.Equal(t, SeverityWarning, m.Status().Severity)
}

func TestSubscribedWaitsForData(t *testing.T) {
	m, _, _, _ := newTestMachine(t)
	m.Apply(Event{Kind: EventConnect})
	m.Apply(Event{Kind: EventSubscribed})

	st := m.Status()
	assert.Equal(t, WaitingForData, st.Label)
	assert.Equal(t, SeverityWarning, st.Severity)
	assert.Equal(t, []string{"Connected since: 10:00:00", "Waiting for data"}, st.Tooltip)
}

func TestSubscribedIgnoredWhileDisconnected(t *testing.T) {
	m, _, _, _ := newTestMachine(t)
	m.Apply(Event{Kind: EventSubscribed})
	assert.False(t, m.Session().Subscribed)
}

func TestLiveAfterFirstContent(t *testing.T) {
	m, mock, _, _ := newTestMachine(t)
	m.Apply(Event{Kind: EventConnect})
	m.Apply(Event{Kind: EventSubscribed})
	mock.Add(5 * time.Second)
	m.Apply(Event{Kind: EventContentReplaced})

	st := m.Status()
	assert.Equal(t, Live, st.Label)
	assert.Equal(t, SeveritySuccess, st.Severity)
	assert.Equal(t, "bg-success", st.Severity.Class())
	assert.Equal(t, []string{"Connected since: 10:00:00", "Last update: 10:00:05"}, st.Tooltip)

	mock.Add(5 * time.Second)
	m.Apply(Event{Kind: EventContentReplaced})
	assert.Equal(t, Live, m.Status().Label)
	assert.Equal(t, start.Add(10*time.Second), m.Session().LastUpdate)
}

func TestTransportCloseDoesNotReload(t *testing.T) {
	m, mock, l, reloads := newTestMachine(t)
	m.Apply(Event{Kind: EventConnect})
	m.Apply(Event{Kind: EventSubscribed})
	m.Apply(Event{Kind: EventDisconnect, Reason: ReasonTransportClose})

	s := m.Session()
	assert.False(t, s.Connected())
	assert.False(t, s.Subscribed)
	assert.Equal(t, "transport close", s.DisconnectReason)
	assert.Equal(t, Disconnected, m.Status().Label)
	assert.Equal(t, SeverityDanger, m.Status().Severity)
	assert.False(t, m.ReloadPending())

	mock.Add(ReloadDelay * 2)
	l.expectIdle(t)
	assert.Zero(t, *reloads)
}

func TestServerDisconnectReloadsAfterDelay(t *testing.T) {
	m, mock, l, reloads := newTestMachine(t)
	m.Apply(Event{Kind: EventConnect})
	m.Apply(Event{Kind: EventDisconnect, Reason: ReasonServerDisconnect})

	assert.Equal(t, Disconnected, m.Status().Label)
	assert.Equal(t, "disconnected by server", m.Session().DisconnectReason)
	require.True(t, m.ReloadPending())

	mock.Add(ReloadDelay - time.Millisecond)
	l.expectIdle(t)

	mock.Add(time.Millisecond)
	l.runNext(t)
	assert.Equal(t, 1, *reloads)
	assert.False(t, m.ReloadPending())
}

func TestReloadSurvivesReconnectByDefault(t *testing.T) {
	m, mock, l, reloads := newTestMachine(t)
	m.Apply(Event{Kind: EventConnect})
	m.Apply(Event{Kind: EventDisconnect, Reason: ReasonServerDisconnect})
	mock.Add(time.Second)
	m.Apply(Event{Kind: EventConnect})

	mock.Add(ReloadDelay)
	l.runNext(t)
	assert.Equal(t, 1, *reloads)
}

func TestCancelReloadOnConnect(t *testing.T) {
	m, mock, l, reloads := newTestMachine(t, WithCancelReloadOnConnect())
	m.Apply(Event{Kind: EventConnect})
	m.Apply(Event{Kind: EventDisconnect, Reason: ReasonServerDisconnect})
	m.Apply(Event{Kind: EventConnect})
	assert.False(t, m.ReloadPending())

	mock.Add(2 * ReloadDelay)
	l.expectIdle(t)
	assert.Zero(t, *reloads)
}

func TestRepeatedServerDisconnectArmsOnce(t *testing.T) {
	m, mock, l, reloads := newTestMachine(t)
	m.Apply(Event{Kind: EventDisconnect, Reason: ReasonServerDisconnect})
	m.Apply(Event{Kind: EventDisconnect, Reason: ReasonServerDisconnect})

	mock.Add(ReloadDelay)
	l.runNext(t)
	l.expectIdle(t)
	assert.Equal(t, 1, *reloads)
}

func TestReconnectAttemptKeepsState(t *testing.T) {
	m, mock, _, _ := newTestMachine(t)
	m.Apply(Event{Kind: EventConnect})
	m.Apply(Event{Kind: EventDisconnect, Reason: ReasonPingTimeout})
	before := m.Session()
	mock.Add(3 * time.Second)
	m.Apply(Event{Kind: EventConnectError})

	after := m.Session()
	assert.Equal(t, before.DisconnectedSince, after.DisconnectedSince)
	assert.False(t, after.Connected())
	assert.Equal(t, start.Add(3*time.Second), after.LastReconnectAttempt)
}

func TestDisconnectMessageKeepsConnection(t *testing.T) {
	m, _, _, _ := newTestMachine(t)
	m.Apply(Event{Kind: EventConnect})
	m.Apply(Event{Kind: EventSubscribed})
	m.Apply(Event{Kind: EventDisconnectMessage, Message: "server restarting"})

	s := m.Session()
	assert.True(t, s.Connected())
	assert.True(t, s.Subscribed)
	assert.Equal(t, "server restarting", s.DisconnectMessage)
	assert.Contains(t, m.Status().Tooltip, "Message: server restarting")
}

func TestDisconnectedTooltipOrder(t *testing.T) {
	m, mock, _, _ := newTestMachine(t)
	m.Apply(Event{Kind: EventConnect})
	m.Apply(Event{Kind: EventSubscribed})
	mock.Add(time.Second)
	m.Apply(Event{Kind: EventContentReplaced})
	mock.Add(time.Second)
	m.Apply(Event{Kind: EventDisconnectMessage, Message: "bye"})
	m.Apply(Event{Kind: EventDisconnect, Reason: ReasonServerDisconnect})
	mock.Add(time.Second)
	m.Apply(Event{Kind: EventConnectError})

	assert.Equal(t, []string{
		"Disconnected since: 10:00:02",
		"Reason: disconnected by server",
		"Message: bye",
		"Last reconnect attempt: 10:00:03",
		"Last update: 10:00:01",
	}, m.Status().Tooltip)
}

func TestDisconnectedTooltipSkipsAbsentFields(t *testing.T) {
	m, _, _, _ := newTestMachine(t)
	m.Apply(Event{Kind: EventConnect})
	m.Apply(Event{Kind: EventDisconnect})

	assert.Equal(t, []string{"Disconnected since: 10:00:00"}, m.Status().Tooltip)
	assert.Empty(t, m.Session().DisconnectReason)
}

func TestStatusIsTranslated(t *testing.T) {
	m, _, _, _ := newTestMachine(t, WithTranslator(i18n.New(language.Norwegian)))
	m.Apply(Event{Kind: EventConnect})
	m.Apply(Event{Kind: EventDisconnect, Reason: ReasonTransportClose})

	st := m.Status()
	assert.Equal(t, "Frakoblet", st.Text)
	assert.Equal(t, []string{"Frakoblet siden: 10:00:00", "Årsak: transport close"}, st.Tooltip)
}

// TestRandomSequencesKeepInvariants drives the machine with random events
// and checks the session invariants after each one.
func TestRandomSequencesKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	reasons := []string{"", ReasonTransportClose, ReasonPingTimeout, ReasonServerDisconnect}

	for run := 0; run < 50; run++ {
		m, mock, _, _ := newTestMachine(t, WithDispatcher(func(func()) {}))
		for i := 0; i < 40; i++ {
			ev := Event{Kind: EventKind(rng.Intn(6))}
			switch ev.Kind {
			case EventDisconnect:
				ev.Reason = reasons[rng.Intn(len(reasons))]
			case EventDisconnectMessage:
				ev.Message = "m"
			}
			prev := m.Session()
			m.Apply(ev)
			mock.Add(time.Second)

			s := m.Session()
			require.NotEqual(t, s.ConnectedSince.IsZero(), s.DisconnectedSince.IsZero(),
				"exactly one of connected/disconnected since must be set")
			if !s.Connected() {
				require.False(t, s.Subscribed)
			}
			if ev.Kind == EventConnect {
				require.False(t, s.Subscribed)
			} else if prev.Connected() && !prev.Subscribed && ev.Kind != EventSubscribed {
				require.False(t, s.Subscribed, "subscribed only after the ack")
			}

			st := m.Status()
			require.Equal(t, !s.Connected(), st.Label == Disconnected)
			require.Equal(t, s.Connected() && s.Subscribed && !s.LastUpdate.IsZero(), st.Label == Live)
		}
		m.Stop()
	}
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "joined_live_view_clients", EventSubscribed.String())
	assert.Equal(t, "unknown", EventKind(42).String())
	assert.Equal(t, "WaitingForData", WaitingForData.String())
}
