package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/rickgao/stockpulse/internal/model"
)

var errFakeInvalidState = errors.New("invalid state")

type fakeSource struct {
	instruments []model.Instrument
	state       model.LifecycleState
}

func (f *fakeSource) Instruments() []model.Instrument { return f.instruments }
func (f *fakeSource) State() model.LifecycleState     { return f.state }

type fakeCommands struct{}

func (fakeCommands) Dispatch(_ context.Context, cmd string) (any, error) {
	switch cmd {
	case "state":
		return "Closed", nil
	case "reset":
		return nil, errFakeInvalidState
	}
	return nil, errors.New("unknown command")
}

func (fakeCommands) ErrorCode(err error) string {
	if errors.Is(err, errFakeInvalidState) {
		return "invalid_state"
	}
	return "unknown_command"
}

func testInstruments() []model.Instrument {
	return []model.Instrument{
		model.NewInstrument("AAPL", decimal.RequireFromString("92.08")),
		model.NewInstrument("MSFT", decimal.RequireFromString("31.02")),
	}
}

func testHubConfig() HubConfig {
	cfg := DefaultHubConfig()
	cfg.WriteTimeout = time.Second
	return cfg
}

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()

	hub := NewHub(testHubConfig(), nil, nil)
	hub.Attach(&fakeSource{instruments: testInstruments(), state: model.Closed}, fakeCommands{})
	server := httptest.NewServer(hub)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		hub.Close(ctx)
		server.Close()
	})
	return hub, server
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type rawEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func readEvent(t *testing.T, conn *websocket.Conn) rawEvent {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var e rawEvent
	if err := json.Unmarshal(data, &e); err != nil {
		t.Fatalf("Unmarshal(%s) error = %v", data, err)
	}
	return e
}

// drainSnapshot reads the snapshot and state that follow every connect.
func drainSnapshot(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	readEvent(t, conn)
	readEvent(t, conn)
}

func TestHub_SnapshotOnConnect(t *testing.T) {
	_, server := newTestHub(t)
	conn := dial(t, server)

	snap := readEvent(t, conn)
	if snap.Event != EventSnapshot {
		t.Fatalf("first event = %q, want %q", snap.Event, EventSnapshot)
	}
	var views []model.InstrumentView
	if err := json.Unmarshal(snap.Data, &views); err != nil {
		t.Fatalf("Unmarshal snapshot error = %v", err)
	}
	if len(views) != 2 || views[0].Symbol != "AAPL" || views[1].Symbol != "MSFT" {
		t.Errorf("snapshot = %+v, want AAPL then MSFT", views)
	}

	state := readEvent(t, conn)
	if state.Event != EventMarketState || string(state.Data) != `"Closed"` {
		t.Errorf("state event = %s %s, want marketState \"Closed\"", state.Event, state.Data)
	}
}

func TestHub_BroadcastsEvents(t *testing.T) {
	hub, server := newTestHub(t)
	a := dial(t, server)
	b := dial(t, server)
	drainSnapshot(t, a)
	drainSnapshot(t, b)

	if got := hub.Stats().Subscribers; got != 2 {
		t.Fatalf("Subscribers = %d, want 2", got)
	}

	inst := model.NewInstrument("AAPL", decimal.RequireFromString("92.08"))
	inst.SetPrice(decimal.RequireFromString("92.17"))

	hub.NotifyLifecycleChanged(model.Open)
	hub.NotifyInstrumentChanged(inst)
	hub.NotifyLifecycleChanged(model.Closed)
	hub.NotifyReset()

	want := []string{EventStartPulsing, EventUpdateStockPrice, EventStopPulsing, EventPulseReset}
	for _, conn := range []*websocket.Conn{a, b} {
		for i, name := range want {
			e := readEvent(t, conn)
			if e.Event != name {
				t.Fatalf("event %d = %q, want %q", i, e.Event, name)
			}
			if name == EventUpdateStockPrice {
				var v model.InstrumentView
				if err := json.Unmarshal(e.Data, &v); err != nil {
					t.Fatalf("Unmarshal update error = %v", err)
				}
				if v.Symbol != "AAPL" || v.Price.String() != "92.17" || v.LastChange.String() != "0.09" {
					t.Errorf("update = %+v", v)
				}
			}
		}
	}
}

func TestHub_Commands(t *testing.T) {
	_, server := newTestHub(t)
	conn := dial(t, server)
	drainSnapshot(t, conn)

	tests := []struct {
		frame    string
		wantID   int64
		wantType string
		wantCode string
	}{
		{`{"id":1,"cmd":"state"}`, 1, "ok", ""},
		{`{"id":2,"cmd":"reset"}`, 2, "error", "invalid_state"},
		{`{"id":3,"cmd":"launch"}`, 3, "error", "unknown_command"},
		{`not json`, 0, "error", "bad_request"},
	}

	for _, tt := range tests {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(tt.frame)); err != nil {
			t.Fatalf("WriteMessage() error = %v", err)
		}

		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage() error = %v", err)
		}

		var resp struct {
			ID   int64           `json:"id"`
			Type string          `json:"type"`
			Msg  json.RawMessage `json:"msg"`
		}
		if err := json.Unmarshal(data, &resp); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", data, err)
		}
		if resp.ID != tt.wantID || resp.Type != tt.wantType {
			t.Errorf("%s: response = %s", tt.frame, data)
		}
		if tt.wantCode != "" {
			var msg ErrorMsg
			json.Unmarshal(resp.Msg, &msg)
			if msg.Code != tt.wantCode {
				t.Errorf("%s: code = %q, want %q", tt.frame, msg.Code, tt.wantCode)
			}
		}
	}
}

func TestHub_DropsSlowSubscriber(t *testing.T) {
	hub := NewHub(testHubConfig(), nil, nil)

	conns := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	defer server.Close()
	dial(t, server)
	serverConn := <-conns

	// No write loop drains this queue, so the second event overflows it.
	sub := newSubscriber(serverConn, NewQueue[[]byte](1, 1), "test")
	if !hub.register(sub) {
		t.Fatal("register() = false")
	}

	hub.NotifyReset()
	if got := hub.Stats().Subscribers; got != 1 {
		t.Fatalf("Subscribers after first event = %d, want 1", got)
	}

	hub.NotifyReset()
	stats := hub.Stats()
	if stats.Subscribers != 0 || stats.Dropped != 1 {
		t.Errorf("Stats() = %+v, want 0 subscribers and 1 dropped", stats)
	}
	select {
	case <-sub.done:
	default:
		t.Error("dropped subscriber was not closed")
	}
}

func TestHub_Close(t *testing.T) {
	hub, server := newTestHub(t)
	conn := dial(t, server)
	drainSnapshot(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := hub.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("ReadMessage() after Close succeeded, want error")
	}
	if got := hub.Stats().Subscribers; got != 0 {
		t.Errorf("Subscribers = %d, want 0", got)
	}

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if !errors.Is(err, websocket.ErrBadHandshake) {
		t.Fatalf("Dial() after Close error = %v, want ErrBadHandshake", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestHub_CloseConcurrentWithConnects(t *testing.T) {
	hub, server := newTestHub(t)
	url := "ws" + strings.TrimPrefix(server.URL, "http")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				conn, _, err := websocket.DefaultDialer.Dial(url, nil)
				if err != nil {
					continue // rejected once the hub is closed
				}
				conn.Close()
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := hub.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	wg.Wait()

	if got := hub.Stats().Subscribers; got != 0 {
		t.Errorf("Subscribers after Close = %d, want 0", got)
	}
}
