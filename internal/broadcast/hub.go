package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rickgao/stockpulse/internal/metrics"
	"github.com/rickgao/stockpulse/internal/model"
)

// SnapshotSource provides the state a new subscriber starts from.
type SnapshotSource interface {
	Instruments() []model.Instrument
	State() model.LifecycleState
}

// CommandHandler executes a subscriber command.
type CommandHandler interface {
	Dispatch(ctx context.Context, cmd string) (any, error)
}

// ErrorCoder lets a CommandHandler pick the error code sent to subscribers.
type ErrorCoder interface {
	ErrorCode(err error) string
}

// HubConfig configures the WebSocket hub.
type HubConfig struct {
	QueueSize    int           // Initial per-subscriber queue capacity
	MaxQueueSize int           // Queue cap; a subscriber past it is dropped
	WriteTimeout time.Duration // Write deadline per frame
	PingInterval time.Duration // Keepalive ping period
	PongTimeout  time.Duration // Max time without a pong before disconnecting
	ReadLimit    int64         // Max inbound frame size
	CheckOrigin  func(r *http.Request) bool
}

// DefaultHubConfig returns sensible defaults.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		QueueSize:    64,
		MaxQueueSize: 1024,
		WriteTimeout: 5 * time.Second,
		PingInterval: 30 * time.Second,
		PongTimeout:  60 * time.Second,
		ReadLimit:    4096,
	}
}

// HubStats contains runtime statistics.
type HubStats struct {
	Subscribers int   `json:"subscribers"`
	Delivered   int64 `json:"delivered"`
	Dropped     int64 `json:"dropped"`
}

// Hub fans engine events out to WebSocket subscribers.
type Hub struct {
	cfg      HubConfig
	logger   *slog.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	source   SnapshotSource
	commands CommandHandler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	subs   map[uuid.UUID]*subscriber
	closed bool

	delivered atomic.Int64
	dropped   atomic.Int64
}

// NewHub creates a hub. Call Attach before serving connections.
func NewHub(cfg HubConfig, logger *slog.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		upgrader: websocket.Upgrader{
			CheckOrigin: cfg.CheckOrigin,
		},
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[uuid.UUID]*subscriber),
	}
}

// Attach sets the snapshot source and command handler. The engine usually
// takes the hub as its broadcaster, so these are bound after construction.
// commands may be nil to reject all commands.
func (h *Hub) Attach(source SnapshotSource, commands CommandHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.source = source
	h.commands = commands
}

// NotifyLifecycleChanged broadcasts startPulsing or stopPulsing.
func (h *Hub) NotifyLifecycleChanged(state model.LifecycleState) {
	h.broadcast(lifecycleEvent(state))
}

// NotifyReset broadcasts pulseReset.
func (h *Hub) NotifyReset() {
	h.broadcast(resetEvent())
}

// NotifyInstrumentChanged broadcasts updateStockPrice.
func (h *Hub) NotifyInstrumentChanged(inst model.Instrument) {
	h.broadcast(instrumentEvent(inst))
}

// Stats returns current statistics.
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	n := len(h.subs)
	h.mu.RUnlock()

	return HubStats{
		Subscribers: n,
		Delivered:   h.delivered.Load(),
		Dropped:     h.dropped.Load(),
	}
}

// ServeHTTP upgrades the request and registers a subscriber.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "hub closed", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	sub := newSubscriber(conn, NewQueue[[]byte](h.cfg.QueueSize, h.cfg.MaxQueueSize), r.RemoteAddr)
	if !h.register(sub) {
		sub.close()
		return
	}

	go func() {
		defer h.wg.Done()
		h.writeLoop(sub)
	}()
	go func() {
		defer h.wg.Done()
		h.pingLoop(sub)
	}()
	go func() {
		defer h.wg.Done()
		h.readLoop(sub)
	}()
}

// Close disconnects every subscriber and waits for their goroutines.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	subs := make([]*subscriber, 0, len(h.subs))
	for id, sub := range h.subs {
		subs = append(subs, sub)
		delete(h.subs, id)
	}
	h.mu.Unlock()

	h.cancel()
	for _, sub := range subs {
		sub.goAway(h.cfg.WriteTimeout)
		sub.close()
		h.metrics.SubscriberRemoved(false)
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("broadcast hub stopped", "subscribers", len(subs))
		return nil
	case <-ctx.Done():
		h.logger.Warn("broadcast hub stop timed out")
		return ctx.Err()
	}
}

// register adds sub and queues its snapshot. Holding the write lock keeps
// broadcasts out until the snapshot is queued, so the subscriber never
// sees an update older than its snapshot. On success it also reserves the
// subscriber's three goroutines in wg, which the caller must start.
func (h *Hub) register(sub *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}

	if h.source != nil {
		for _, e := range []Event{snapshotEvent(h.source.Instruments()), stateEvent(h.source.State())} {
			data, err := Encode(e)
			if err != nil {
				h.logger.Error("failed to encode snapshot", "error", err)
				return false
			}
			if err := sub.queue.Send(data); err != nil {
				h.logger.Warn("subscriber queue rejected snapshot", "subscriber", sub.id, "error", err)
				return false
			}
		}
	}

	h.subs[sub.id] = sub
	h.wg.Add(3)
	h.metrics.SubscriberAdded()
	h.logger.Info("subscriber connected", "subscriber", sub.id, "remote", sub.remoteAddr, "subscribers", len(h.subs))
	return true
}

// broadcast encodes once and enqueues to every subscriber without blocking.
func (h *Hub) broadcast(e Event) {
	data, err := Encode(e)
	if err != nil {
		h.logger.Error("failed to encode event", "event", e.Event, "error", err)
		return
	}

	var slow []*subscriber

	h.mu.RLock()
	for _, sub := range h.subs {
		if err := sub.queue.Send(data); err != nil {
			slow = append(slow, sub)
			continue
		}
		h.delivered.Add(1)
	}
	h.mu.RUnlock()

	for _, sub := range slow {
		h.logger.Warn("subscriber too slow, disconnecting", "subscriber", sub.id, "event", e.Event)
		h.remove(sub, true)
	}
}

// remove unregisters sub and closes its connection.
func (h *Hub) remove(sub *subscriber, dropped bool) {
	h.mu.Lock()
	_, ok := h.subs[sub.id]
	if ok {
		delete(h.subs, sub.id)
	}
	remaining := len(h.subs)
	h.mu.Unlock()

	sub.close()
	if !ok {
		return
	}

	if dropped {
		h.dropped.Add(1)
	}
	h.metrics.SubscriberRemoved(dropped)
	h.logger.Info("subscriber disconnected", "subscriber", sub.id, "dropped", dropped, "subscribers", remaining)
}

// writeLoop drains the subscriber queue onto the connection.
func (h *Hub) writeLoop(sub *subscriber) {
	defer h.remove(sub, false)

	for {
		data, ok := sub.queue.Receive()
		if !ok {
			return
		}

		sub.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
		if err := sub.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debug("subscriber write failed", "subscriber", sub.id, "error", err)
			return
		}
	}
}

// pingLoop keeps the connection alive.
func (h *Hub) pingLoop(sub *subscriber) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sub.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(h.cfg.WriteTimeout)
			if err := sub.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				h.logger.Debug("failed to send ping", "subscriber", sub.id, "error", err)
				h.remove(sub, false)
				return
			}
		}
	}
}

// readLoop handles inbound commands until the connection fails.
func (h *Hub) readLoop(sub *subscriber) {
	defer h.remove(sub, false)

	sub.conn.SetReadLimit(h.cfg.ReadLimit)
	sub.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	})

	for {
		_, data, err := sub.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("subscriber read failed", "subscriber", sub.id, "error", err)
			}
			return
		}
		sub.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))

		resp := h.handleCommand(data)
		out, err := json.Marshal(resp)
		if err != nil {
			h.logger.Error("failed to encode response", "subscriber", sub.id, "error", err)
			continue
		}
		if err := sub.queue.Send(out); err != nil {
			h.remove(sub, !errors.Is(err, ErrQueueClosed))
			return
		}
	}
}

// handleCommand parses and executes one command frame.
func (h *Hub) handleCommand(data []byte) Response {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Response{Type: "error", Msg: ErrorMsg{Code: "bad_request", Message: err.Error()}}
	}
	h.mu.RLock()
	commands := h.commands
	h.mu.RUnlock()

	if commands == nil {
		return Response{ID: cmd.ID, Type: "error", Msg: ErrorMsg{Code: "unsupported", Message: "commands disabled"}}
	}

	result, err := commands.Dispatch(h.ctx, cmd.Cmd)
	if err != nil {
		code := "internal"
		if coder, ok := commands.(ErrorCoder); ok {
			code = coder.ErrorCode(err)
		}
		return Response{ID: cmd.ID, Type: "error", Msg: ErrorMsg{Code: code, Message: err.Error()}}
	}
	return Response{ID: cmd.ID, Type: "ok", Msg: result}
}
