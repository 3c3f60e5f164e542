package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/phonelog/liveview/internal/live"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	pongTimeout        = 60 * time.Second
	pingInterval       = 30 * time.Second
	dialTimeout        = 10 * time.Second
)

// ErrNotConnected is returned by Emit when there is no open connection.
var ErrNotConnected = errors.New("not connected")

// WSClient manages the WebSocket connection to the push server.
type WSClient struct {
	url   string
	token string
	log   zerolog.Logger

	mu      sync.Mutex
	writeMu sync.Mutex // serialises all conn writes (ping, emit, ack)
	conn    *websocket.Conn
	closed  *websocket.Conn    // connection shut by Close
	pingCtx context.CancelFunc // cancels the active ping goroutine
	delay   time.Duration

	// attempt numbers connection attempts; only the latest may install its
	// connection.
	attempt       uint64
	cancelAttempt context.CancelFunc
}

// dialAttempt is one connection attempt. ctx is cancelled once a newer
// attempt starts or the client is closed.
type dialAttempt struct {
	ctx context.Context
	n   uint64
}

// NewWSClient creates a client that connects to the given WebSocket URL.
func NewWSClient(url, token string, log zerolog.Logger) *WSClient {
	return &WSClient{
		url:   url,
		token: token,
		log:   log.With().Str("component", "ws").Logger(),
		delay: reconnectBaseDelay,
	}
}

// --- Bubble Tea messages ---

// ConnectedMsg is sent when the WebSocket connects. Degraded is set when the
// server did not accept the live view subprotocol.
type ConnectedMsg struct{ Degraded bool }

// ConnectErrorMsg is sent when a connection attempt fails.
type ConnectErrorMsg struct{ Err error }

// DisconnectedMsg is sent when the connection drops.
type DisconnectedMsg struct {
	Reason string
	Err    error
}

// JoinedMsg acknowledges the live view subscription.
type JoinedMsg struct{ Ack func() }

// DisconnectMessageMsg carries an informational message from the server.
// Ack must be called once the message has been shown.
type DisconnectMessageMsg struct {
	Message string
	Ack     func()
}

// ReplaceContentMsg carries a new content fragment. Ack must be called once
// the fragment has been applied.
type ReplaceContentMsg struct {
	HTML string
	Ack  func()
}

// Connect returns a Bubble Tea command making one connection attempt. Any
// attempt still in flight is abandoned.
func (c *WSClient) Connect(ctx context.Context) tea.Cmd {
	a := c.begin(ctx)
	return func() tea.Msg {
		return c.dial(ctx, a)
	}
}

// begin supersedes the attempt in flight and starts a new one.
func (c *WSClient) begin(ctx context.Context) dialAttempt {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.supersede()
	actx, cancel := context.WithCancel(ctx)
	c.cancelAttempt = cancel
	return dialAttempt{ctx: actx, n: c.attempt}
}

// supersede invalidates the attempt in flight. c.mu must be held.
func (c *WSClient) supersede() {
	if c.cancelAttempt != nil {
		c.cancelAttempt()
		c.cancelAttempt = nil
	}
	c.attempt++
}

// abandoned returns the message for an attempt that stopped early: a client
// disconnect when ctx itself is done, nothing when a newer attempt took over.
func abandoned(ctx context.Context) tea.Msg {
	if err := ctx.Err(); err != nil {
		return DisconnectedMsg{Reason: live.ReasonClientDisconnect, Err: err}
	}
	return nil
}

// Reconnect returns a command that waits for the current backoff delay and
// then makes one connection attempt. The delay doubles up to a ceiling and
// resets after a successful connection.
func (c *WSClient) Reconnect(ctx context.Context) tea.Cmd {
	c.mu.Lock()
	delay := c.delay
	c.delay = min(c.delay*2, reconnectMaxDelay)
	c.mu.Unlock()
	a := c.begin(ctx)

	return func() tea.Msg {
		c.log.Debug().Dur("delay", delay).Msg("reconnecting")
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-a.ctx.Done():
			return abandoned(ctx)
		case <-t.C:
		}
		return c.dial(ctx, a)
	}
}

func (c *WSClient) dial(ctx context.Context, a dialAttempt) tea.Msg {
	if a.ctx.Err() != nil {
		return abandoned(ctx)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: dialTimeout,
		Subprotocols:     []string{Subprotocol},
		Proxy:            http.ProxyFromEnvironment,
	}
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, _, err := dialer.DialContext(a.ctx, c.url, header)
	if err != nil {
		if a.ctx.Err() != nil {
			return abandoned(ctx)
		}
		c.log.Warn().Err(err).Msg("ws dial error")
		return ConnectErrorMsg{Err: err}
	}

	c.mu.Lock()
	if c.attempt != a.n {
		c.mu.Unlock()
		c.log.Debug().Uint64("attempt", a.n).Msg("discarding superseded connection")
		conn.Close()
		return abandoned(ctx)
	}
	if c.cancelAttempt != nil {
		c.cancelAttempt()
		c.cancelAttempt = nil
	}
	// Cancel any previous ping goroutine.
	if c.pingCtx != nil {
		c.pingCtx()
	}
	pingCtx, pingCancel := context.WithCancel(ctx)
	c.conn = conn
	c.pingCtx = pingCancel
	c.delay = reconnectBaseDelay
	c.mu.Unlock()

	go c.pingLoop(pingCtx, conn)

	degraded := conn.Subprotocol() != Subprotocol
	c.log.Info().Str("url", c.url).Bool("degraded", degraded).Msg("connected")
	return ConnectedMsg{Degraded: degraded}
}

// ReadLoop returns a Bubble Tea command that reads messages from the
// connection until one maps to a message. It should be started after
// ConnectedMsg and again after every message it returns.
func (c *WSClient) ReadLoop(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return DisconnectedMsg{Reason: live.ReasonTransportClose, Err: ErrNotConnected}
		}

		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongTimeout))
		})
		conn.SetReadDeadline(time.Now().Add(pongTimeout))

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				c.mu.Lock()
				byUs := c.closed == conn
				c.mu.Unlock()
				c.drop(conn)
				reason := disconnectReason(ctx, err, byUs)
				c.log.Info().Err(err).Str("reason", reason).Msg("disconnected")
				return DisconnectedMsg{Reason: reason, Err: err}
			}
			conn.SetReadDeadline(time.Now().Add(pongTimeout))

			var msg WSMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				c.log.Debug().Err(err).Msg("ignoring malformed message")
				continue
			}

			if teaMsg := c.dispatch(conn, msg); teaMsg != nil {
				return teaMsg
			}
		}
	}
}

// disconnectReason maps a read error to the reason reported to the state
// machine.
func disconnectReason(ctx context.Context, err error, byUs bool) string {
	if byUs || ctx.Err() != nil {
		return live.ReasonClientDisconnect
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.ClosePolicyViolation:
			return live.ReasonServerDisconnect
		}
		return live.ReasonTransportClose
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return live.ReasonPingTimeout
	}
	return live.ReasonTransportClose
}

func (c *WSClient) dispatch(conn *websocket.Conn, msg WSMessage) tea.Msg {
	switch msg.Type {
	case MsgJoined:
		return JoinedMsg{Ack: c.acker(conn, msg.Ack)}
	case MsgReplaceContent:
		var html string
		if json.Unmarshal(msg.Payload, &html) == nil {
			return ReplaceContentMsg{HTML: html, Ack: c.acker(conn, msg.Ack)}
		}
	case MsgDisconnectMessage:
		var text string
		if json.Unmarshal(msg.Payload, &text) == nil {
			return DisconnectMessageMsg{Message: text, Ack: c.acker(conn, msg.Ack)}
		}
	}
	return nil
}

// acker returns the callback that acknowledges message n on conn, or a no-op
// when the server did not ask for one.
func (c *WSClient) acker(conn *websocket.Conn, n uint64) func() {
	if n == 0 {
		return func() {}
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			if err := c.write(conn, WSMessage{Type: MsgAck, Ack: n}); err != nil {
				c.log.Debug().Err(err).Uint64("ack", n).Msg("ack not sent")
			}
		})
	}
}

// Emit sends an event with a string payload on the current connection.
func (c *WSClient) Emit(event, payload string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.write(conn, WSMessage{Type: MessageType(event), Payload: raw})
}

func (c *WSClient) write(conn *websocket.Conn, msg WSMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write %s: %w", msg.Type, err)
	}
	return nil
}

// pingLoop sends periodic pings on the given connection. It exits when the
// context is cancelled or the connection changes.
func (c *WSClient) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			cc := c.conn
			c.mu.Unlock()
			if cc != conn {
				return
			}
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *WSClient) drop(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		if c.pingCtx != nil {
			c.pingCtx()
			c.pingCtx = nil
		}
	}
	c.mu.Unlock()
	conn.Close()
}

// Close abandons any attempt in flight, sends a close frame and shuts the
// current connection. The pending ReadLoop then reports the disconnect.
func (c *WSClient) Close() {
	c.mu.Lock()
	c.supersede()
	conn := c.conn
	c.closed = conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	c.writeMu.Lock()
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
	c.writeMu.Unlock()
	conn.Close()
}

// Connected reports whether a connection is open.
func (c *WSClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}
