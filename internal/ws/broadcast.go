package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeTimeout = 10 * time.Second
	sendBuffer   = 64
)

// ErrTooManyConnections is returned by AddClient when the limit is reached.
var ErrTooManyConnections = errors.New("too many connections")

// ContentFunc renders the current content fragment.
type ContentFunc func() (string, error)

// outbound is one queued write. A non-zero closeCode writes a close frame and
// ends the connection.
type outbound struct {
	data      []byte
	closeCode int
	reason    string
}

type client struct {
	id   string
	conn *websocket.Conn
	b    *Broadcaster
	send chan outbound
	acks chan uint64
	done chan struct{}
	once sync.Once

	nextAck atomic.Uint64

	mu      sync.Mutex
	joined  bool
	pending *string
	wake    chan struct{}
}

func newClient(conn *websocket.Conn, b *Broadcaster) *client {
	return &client{
		id:   uuid.NewString(),
		conn: conn,
		b:    b,
		send: make(chan outbound, sendBuffer),
		acks: make(chan uint64, sendBuffer),
		done: make(chan struct{}),
		wake: make(chan struct{}, 1),
	}
}

func (c *client) writePump() {
	defer c.b.RemoveClient(c)
	for {
		select {
		case <-c.done:
			return
		case m := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if m.closeCode != 0 {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(m.closeCode, m.reason))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, m.data); err != nil {
				c.b.log.Debug().Err(err).Str("client", c.id).Msg("write failed")
				return
			}
		}
	}
}

// contentPump writes the latest offered fragment, then waits for the client
// to ack it or for the ack timeout before writing the next one. Fragments
// offered while waiting replace each other.
func (c *client) contentPump() {
	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
		}
		html, ok := c.takePending()
		if !ok {
			continue
		}
		n := c.nextAck.Add(1)
		if !c.enqueue(message(MsgReplaceContent, html, n)) {
			return
		}
		c.awaitAck(n)
	}
}

func (c *client) awaitAck(n uint64) {
	t := c.b.clock.Timer(c.b.ackTimeout)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			c.b.log.Debug().Str("client", c.id).Uint64("ack", n).Msg("ack timeout")
			return
		case got := <-c.acks:
			if got >= n {
				return
			}
		}
	}
}

func (c *client) offer(html string) {
	c.mu.Lock()
	c.pending = &html
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *client) takePending() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return "", false
	}
	html := *c.pending
	c.pending = nil
	return html, true
}

func (c *client) isJoined() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joined
}

// enqueue queues m without blocking. A full queue means the client cannot
// keep up and it is dropped.
func (c *client) enqueue(m outbound) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- m:
		return true
	default:
		c.b.log.Warn().Str("client", c.id).Msg("ws client too slow, disconnecting")
		c.b.RemoveClient(c)
		return false
	}
}

func (c *client) shutdown() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func message(t MessageType, payload interface{}, ack uint64) outbound {
	data, err := json.Marshal(WSMessage{Type: t, Payload: payload, Ack: ack})
	if err != nil {
		// Payloads are strings or nil.
		panic(err)
	}
	return outbound{data: data}
}

// Broadcaster tracks live view clients and pushes content to those that
// joined with a valid token.
type Broadcaster struct {
	mu         sync.RWMutex
	clients    map[*client]bool
	maxConns   int
	tokens     *Tokens
	content    ContentFunc
	ackTimeout time.Duration
	clock      clock.Clock
	log        zerolog.Logger
}

// NewBroadcaster returns a broadcaster. content renders the fragment sent to
// a client when it joins; maxConns <= 0 means unlimited.
func NewBroadcaster(tokens *Tokens, content ContentFunc, ackTimeout time.Duration, maxConns int, log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		clients:    make(map[*client]bool),
		maxConns:   maxConns,
		tokens:     tokens,
		content:    content,
		ackTimeout: ackTimeout,
		clock:      clock.New(),
		log:        log.With().Str("component", "broadcaster").Logger(),
	}
}

// AddClient registers conn and starts its pumps.
func (b *Broadcaster) AddClient(conn *websocket.Conn) (*client, error) {
	c := newClient(conn, b)

	b.mu.Lock()
	if b.maxConns > 0 && len(b.clients) >= b.maxConns {
		b.mu.Unlock()
		return nil, ErrTooManyConnections
	}
	b.clients[c] = true
	b.mu.Unlock()

	go c.writePump()
	go c.contentPump()
	return c, nil
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	delete(b.clients, c)
	b.mu.Unlock()
	c.shutdown()
}

// Serve reads from c until the connection fails, handling joins and acks.
// The client is removed when it returns.
func (b *Broadcaster) Serve(c *client) {
	defer b.RemoveClient(c)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case MsgJoin:
			var token string
			json.Unmarshal(msg.Payload, &token)
			b.join(c, token)
		case MsgAck:
			select {
			case c.acks <- msg.Ack:
			default:
			}
		}
	}
}

func (b *Broadcaster) join(c *client, token string) {
	if err := b.tokens.Validate(token); err != nil {
		b.log.Info().Err(err).Str("client", c.id).Msg("join rejected")
		c.enqueue(outbound{closeCode: websocket.ClosePolicyViolation, reason: "invalid token"})
		return
	}

	c.mu.Lock()
	c.joined = true
	c.mu.Unlock()

	if !c.enqueue(message(MsgJoined, nil, c.nextAck.Add(1))) {
		return
	}
	b.log.Debug().Str("client", c.id).Msg("joined")

	if b.content == nil {
		return
	}
	html, err := b.content()
	if err != nil {
		b.log.Error().Err(err).Msg("render content for join")
		return
	}
	c.offer(html)
}

// PushContent sends html to every joined client.
func (b *Broadcaster) PushContent(html string) {
	for _, c := range b.snapshot() {
		if c.isJoined() {
			c.offer(html)
		}
	}
}

// Refresh renders the current content and pushes it.
func (b *Broadcaster) Refresh() error {
	if b.content == nil {
		return nil
	}
	html, err := b.content()
	if err != nil {
		return err
	}
	b.PushContent(html)
	return nil
}

// DisconnectAll sends message (if any) to every client, then closes them
// from the server side. It waits until every close frame has been written
// or ctx is done.
func (b *Broadcaster) DisconnectAll(ctx context.Context, text string) error {
	clients := b.snapshot()
	for _, c := range clients {
		if text != "" && !c.enqueue(message(MsgDisconnectMessage, text, 0)) {
			continue
		}
		c.enqueue(outbound{closeCode: websocket.CloseNormalClosure, reason: "server disconnect"})
	}
	for _, c := range clients {
		select {
		case <-c.done:
		case <-ctx.Done():
			b.log.Warn().Int("clients", b.ClientCount()).Msg("clients not closed before deadline")
			return ctx.Err()
		}
	}
	return nil
}

func (b *Broadcaster) snapshot() []*client {
	b.mu.RLock()
	defer b.mu.RUnlock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	return clients
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// JoinedCount returns how many clients receive content pushes.
func (b *Broadcaster) JoinedCount() int {
	n := 0
	for _, c := range b.snapshot() {
		if c.isJoined() {
			n++
		}
	}
	return n
}
