package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phonelog/liveview/internal/live"
)

// testServer upgrades one connection and hands the server side to the test.
func testServer(t *testing.T, subprotocols []string) (string, <-chan *websocket.Conn, <-chan http.Header) {
	t.Helper()
	conns := make(chan *websocket.Conn, 1)
	headers := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		up := websocket.Upgrader{Subprotocols: subprotocols}
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		conns <- c
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), conns, headers
}

func serverSide(t *testing.T, conns <-chan *websocket.Conn) *websocket.Conn {
	t.Helper()
	select {
	case c := <-conns:
		t.Cleanup(func() { c.Close() })
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server-side connection")
		return nil
	}
}

func send(t *testing.T, c *websocket.Conn, typ MessageType, payload any, ack uint64) {
	t.Helper()
	msg := map[string]any{"type": typ, "ack": ack}
	if payload != nil {
		msg["payload"] = payload
	}
	require.NoError(t, c.WriteJSON(msg))
}

func readAck(t *testing.T, c *websocket.Conn) WSMessage {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	require.NoError(t, c.ReadJSON(&msg))
	return msg
}

func TestClientReceivesEventsAndAcks(t *testing.T) {
	url, conns, headers := testServer(t, []string{Subprotocol})
	ctx := context.Background()
	c := NewWSClient(url, "secret", zerolog.Nop())

	msg := c.Connect(ctx)()
	require.Equal(t, ConnectedMsg{Degraded: false}, msg)
	assert.Equal(t, "Bearer secret", (<-headers).Get("Authorization"))
	srv := serverSide(t, conns)

	require.NoError(t, c.Emit(string(MsgJoin), "csrf-abc"))
	var join WSMessage
	require.NoError(t, srv.ReadJSON(&join))
	assert.Equal(t, MsgJoin, join.Type)
	assert.JSONEq(t, `"csrf-abc"`, string(join.Payload))

	send(t, srv, MsgJoined, nil, 1)
	joined, ok := c.ReadLoop(ctx)().(JoinedMsg)
	require.True(t, ok)
	joined.Ack()
	joined.Ack()
	assert.Equal(t, WSMessage{Type: MsgAck, Ack: 1}, readAck(t, srv))

	send(t, srv, MsgReplaceContent, "<div>A</div>", 2)
	replaced, ok := c.ReadLoop(ctx)().(ReplaceContentMsg)
	require.True(t, ok)
	assert.Equal(t, "<div>A</div>", replaced.HTML)
	replaced.Ack()
	assert.Equal(t, WSMessage{Type: MsgAck, Ack: 2}, readAck(t, srv))

	send(t, srv, MsgDisconnectMessage, "maintenance at 22:00", 3)
	info, ok := c.ReadLoop(ctx)().(DisconnectMessageMsg)
	require.True(t, ok)
	assert.Equal(t, "maintenance at 22:00", info.Message)
	info.Ack()
	assert.Equal(t, WSMessage{Type: MsgAck, Ack: 3}, readAck(t, srv))
}

func TestClientSkipsUnknownAndMalformedMessages(t *testing.T) {
	url, conns, _ := testServer(t, []string{Subprotocol})
	ctx := context.Background()
	c := NewWSClient(url, "", zerolog.Nop())
	require.IsType(t, ConnectedMsg{}, c.Connect(ctx)())
	srv := serverSide(t, conns)

	require.NoError(t, srv.WriteMessage(websocket.TextMessage, []byte("not json")))
	send(t, srv, "snapshot", nil, 0)
	send(t, srv, MsgDisconnectMessage, "hi", 0)

	msg, ok := c.ReadLoop(ctx)().(DisconnectMessageMsg)
	require.True(t, ok)
	assert.Equal(t, "hi", msg.Message)
}

func TestClientServerCloseIsServerDisconnect(t *testing.T) {
	url, conns, _ := testServer(t, []string{Subprotocol})
	ctx := context.Background()
	c := NewWSClient(url, "", zerolog.Nop())
	require.IsType(t, ConnectedMsg{}, c.Connect(ctx)())
	srv := serverSide(t, conns)

	require.NoError(t, srv.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid token"),
		time.Now().Add(time.Second)))

	msg, ok := c.ReadLoop(ctx)().(DisconnectedMsg)
	require.True(t, ok)
	assert.Equal(t, live.ReasonServerDisconnect, msg.Reason)
	assert.False(t, c.Connected())
	assert.ErrorIs(t, c.Emit(string(MsgJoin), "x"), ErrNotConnected)
}

func TestClientDroppedConnectionIsTransportClose(t *testing.T) {
	url, conns, _ := testServer(t, []string{Subprotocol})
	ctx := context.Background()
	c := NewWSClient(url, "", zerolog.Nop())
	require.IsType(t, ConnectedMsg{}, c.Connect(ctx)())
	serverSide(t, conns).UnderlyingConn().Close()

	msg := c.ReadLoop(ctx)().(DisconnectedMsg)
	assert.Equal(t, live.ReasonTransportClose, msg.Reason)
}

func TestClientCloseIsClientDisconnect(t *testing.T) {
	url, conns, _ := testServer(t, []string{Subprotocol})
	ctx := context.Background()
	c := NewWSClient(url, "", zerolog.Nop())
	require.IsType(t, ConnectedMsg{}, c.Connect(ctx)())
	serverSide(t, conns)

	c.Close()
	msg := c.ReadLoop(ctx)().(DisconnectedMsg)
	assert.Equal(t, live.ReasonClientDisconnect, msg.Reason)
}

func TestClientDegradedWithoutSubprotocol(t *testing.T) {
	url, conns, _ := testServer(t, nil)
	c := NewWSClient(url, "", zerolog.Nop())
	assert.Equal(t, ConnectedMsg{Degraded: true}, c.Connect(context.Background())())
	serverSide(t, conns)
}

func TestClientDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	c := NewWSClient(url, "", zerolog.Nop())
	msg, ok := c.Connect(context.Background())().(ConnectErrorMsg)
	require.True(t, ok)
	assert.Error(t, msg.Err)
}

func TestReconnectBackoff(t *testing.T) {
	c := NewWSClient("ws://127.0.0.1:1/ws", "", zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, want := range []time.Duration{2, 4, 8, 16, 30, 30} {
		cmd := c.Reconnect(ctx)
		assert.Equal(t, want*time.Second, c.delay)
		msg := cmd().(DisconnectedMsg)
		assert.Equal(t, live.ReasonClientDisconnect, msg.Reason)
	}
}

func TestConnectAbandonsPendingReconnect(t *testing.T) {
	url, conns, _ := testServer(t, []string{Subprotocol})
	ctx := context.Background()
	c := NewWSClient(url, "", zerolog.Nop())
	c.delay = 50 * time.Millisecond

	stale := make(chan tea.Msg, 1)
	reconnect := c.Reconnect(ctx)
	go func() { stale <- reconnect() }()

	require.IsType(t, ConnectedMsg{}, c.Connect(ctx)())
	srv := serverSide(t, conns)

	select {
	case msg := <-stale:
		assert.Nil(t, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("pending reconnect did not return")
	}
	select {
	case <-conns:
		t.Fatal("abandoned reconnect opened a second connection")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, c.Emit(string(MsgJoin), "x"))
	srv.SetReadDeadline(time.Now().Add(2 * time.Second))
	var join WSMessage
	require.NoError(t, srv.ReadJSON(&join))
	assert.Equal(t, MsgJoin, join.Type)
}

func TestSupersededDialDiscardsConnection(t *testing.T) {
	url, _, _ := testServer(t, []string{Subprotocol})
	ctx := context.Background()
	c := NewWSClient(url, "", zerolog.Nop())

	first := c.Connect(ctx)
	second := c.Connect(ctx)
	assert.Nil(t, first())
	assert.False(t, c.Connected())

	require.IsType(t, ConnectedMsg{}, second())
	assert.True(t, c.Connected())
}

func TestCloseAbandonsPendingReconnect(t *testing.T) {
	c := NewWSClient("ws://127.0.0.1:1/ws", "", zerolog.Nop())
	c.delay = time.Hour
	cmd := c.Reconnect(context.Background())
	c.Close()

	done := make(chan tea.Msg, 1)
	go func() { done <- cmd() }()
	select {
	case msg := <-done:
		assert.Nil(t, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("reconnect kept waiting after Close")
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestDisconnectReason(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	bg := context.Background()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		byUs bool
		want string
	}{
		{"normal close", bg, &websocket.CloseError{Code: websocket.CloseNormalClosure}, false, live.ReasonServerDisconnect},
		{"policy close", bg, &websocket.CloseError{Code: websocket.ClosePolicyViolation}, false, live.ReasonServerDisconnect},
		{"abnormal close", bg, &websocket.CloseError{Code: websocket.CloseAbnormalClosure}, false, live.ReasonTransportClose},
		{"read deadline", bg, timeoutErr{}, false, live.ReasonPingTimeout},
		{"other", bg, errors.New("boom"), false, live.ReasonTransportClose},
		{"closed by us", bg, errors.New("use of closed network connection"), true, live.ReasonClientDisconnect},
		{"cancelled", cancelled, timeoutErr{}, false, live.ReasonClientDisconnect},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, disconnectReason(tt.ctx, tt.err, tt.byUs))
		})
	}
}

func TestAckerWithoutAckIsNoop(t *testing.T) {
	c := NewWSClient("ws://unused", "", zerolog.Nop())
	assert.NotPanics(t, c.acker(nil, 0))
}

func TestWSMessageOmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(WSMessage{Type: MsgAck, Ack: 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ack","ack":3}`, string(data))
}
