package ws

import "encoding/json"

// Subprotocol is the WebSocket subprotocol live view clients request.
const Subprotocol = "phonelog.live.v1"

type MessageType string

const (
	MsgJoin              MessageType = "join_live_view_clients"
	MsgJoined            MessageType = "joined_live_view_clients"
	MsgReplaceContent    MessageType = "replace_content"
	MsgDisconnectMessage MessageType = "disconnect_message"
	MsgAck               MessageType = "ack"
)

// WSMessage is an outbound envelope. A non-zero Ack asks the client to answer
// with an ack message carrying the same number.
type WSMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
	Ack     uint64      `json:"ack,omitempty"`
}

// inbound is what clients send: joins with a token payload, and acks.
type inbound struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Ack     uint64          `json:"ack,omitempty"`
}

// StatusPayload is the /api/status response.
type StatusPayload struct {
	Clients   int     `json:"clients"`
	Joined    int     `json:"joined"`
	Calls     int     `json:"calls"`
	Uptime    int64   `json:"uptime"`
	RSSBytes  uint64  `json:"rssBytes"`
	CPUPct    float64 `json:"cpuPercent"`
	StartedAt string  `json:"startedAt"`
}
