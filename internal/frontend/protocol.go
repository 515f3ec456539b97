package frontend

import (
	"github.com/sugawarayuuta/sonnet"
)

// pushRequest is the body of POST /v1/items.
type pushRequest struct {
	Payload []byte `json:"payload"`
}

// pushResponse is the body of a successful POST /v1/items.
type pushResponse struct {
	ID uint64 `json:"id"`
}

// itemResponse is the body of a successful GET /v1/items/next.
type itemResponse struct {
	ID      uint64 `json:"id"`
	Payload []byte `json:"payload"`
}

// statsResponse mirrors queue.Queue.WriteStats's fields as JSON for callers
// that would rather parse structured fields than the STAT line protocol.
type statsResponse struct {
	Name        string `json:"name"`
	Items       uint64 `json:"items"`
	OpenCount   uint64 `json:"openTransactions"`
	Returned    uint64 `json:"returned"`
	ChunksLive  uint64 `json:"chunksLive"`
	JournalPath string `json:"journal"`
}

// errorResponse is the body of any non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}

// wsServerFrame is a server-to-client WebSocket frame. Type is one of
// "item" (an available item, awaiting confirm/return), "timeout" (the
// registered wait deadline elapsed with nothing delivered), or "error" (the
// client sent a frame of unknown type).
type wsServerFrame struct {
	Type    string `json:"type"`
	ID      uint64 `json:"id,omitempty"`
	Payload []byte `json:"payload,omitempty"`
}

// wsClientFrame is a client-to-server WebSocket frame. Type is one of
// "wait" (register interest, WaitMS optional), "confirm", or "return".
type wsClientFrame struct {
	Type   string `json:"type"`
	ID     uint64 `json:"id,omitempty"`
	WaitMS int64  `json:"wait_ms,omitempty"`
}

// marshal and unmarshal funnel every wire frame through sonnet, a
// drop-in encoding/json replacement, instead of the standard library.
func marshal(v any) ([]byte, error)      { return sonnet.Marshal(v) }
func unmarshal(data []byte, v any) error { return sonnet.Unmarshal(data, v) }
