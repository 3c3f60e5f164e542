// Package client provides the WebSocket transport and HTTP client the
// terminal live view uses to talk to the push server. Types mirror the
// server's wire protocol without importing server packages.
package client

import (
	"encoding/json"
	"time"
)

// Subprotocol is the WebSocket subprotocol both ends negotiate.
const Subprotocol = "phonelog.live.v1"

// MessageType identifies the kind of WebSocket message.
type MessageType string

const (
	MsgJoin              MessageType = "join_live_view_clients"
	MsgJoined            MessageType = "joined_live_view_clients"
	MsgReplaceContent    MessageType = "replace_content"
	MsgDisconnectMessage MessageType = "disconnect_message"
	MsgAck               MessageType = "ack"
)

// WSMessage is the envelope for all WebSocket messages. A non-zero Ack asks
// the receiver to answer with an ack message carrying the same number.
type WSMessage struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Ack     uint64          `json:"ack,omitempty"`
}

// ServerStatus mirrors the server's /api/status response.
type ServerStatus struct {
	Clients   int           `json:"clients"`
	Joined    int           `json:"joined"`
	Calls     int           `json:"calls"`
	Uptime    time.Duration `json:"uptime"`
	RSSBytes  uint64        `json:"rssBytes"`
	CPUPct    float64       `json:"cpuPercent"`
	StartedAt time.Time     `json:"startedAt"`
}
