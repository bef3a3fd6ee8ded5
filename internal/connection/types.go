package connection

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rickgao/stockpulse/internal/model"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no pong)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrCommandFailed   = errors.New("command failed")
)

// Event is a server-pushed message with its local receive time.
type Event struct {
	Event      string          `json:"event"`
	Data       json.RawMessage `json:"data,omitempty"`
	ReceivedAt time.Time       `json:"-"`
}

// Instrument decodes an updateStockPrice payload.
func (e Event) Instrument() (model.InstrumentView, error) {
	var v model.InstrumentView
	err := json.Unmarshal(e.Data, &v)
	return v, err
}

// Snapshot decodes a snapshot payload.
func (e Event) Snapshot() ([]model.InstrumentView, error) {
	var vs []model.InstrumentView
	err := json.Unmarshal(e.Data, &vs)
	return vs, err
}

// Command is a request sent to the server.
type Command struct {
	ID  int64  `json:"id"`
	Cmd string `json:"cmd"`
}

// Response is a command response from the server.
type Response struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"` // "ok" or "error"
	Msg  json.RawMessage `json:"msg,omitempty"`
}

// ErrorMsg is the message content for an "error" response.
type ErrorMsg struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// frame is decoded first to tell events from responses.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	ID    int64           `json:"id"`
	Type  string          `json:"type"`
	Msg   json.RawMessage `json:"msg"`
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL          string        // WebSocket URL (e.g., ws://localhost:8080/ws)
	PingInterval time.Duration // How often to ping the server
	PingTimeout  time.Duration // Max time without a pong before considering connection stale
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Event channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingInterval: 30 * time.Second,
		PingTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   1024,
	}
}
