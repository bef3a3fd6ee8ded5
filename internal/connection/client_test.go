package connection

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testConfig(server *httptest.Server) ClientConfig {
	cfg := DefaultClientConfig()
	cfg.URL = wsURL(server)
	cfg.BufferSize = 100
	return cfg
}

// echoCommands answers every command frame: "fail" gets an error response.
func echoCommands(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			return
		}

		resp := Response{ID: cmd.ID, Type: "ok", Msg: json.RawMessage(`"Open"`)}
		if cmd.Cmd == "fail" {
			resp = Response{ID: cmd.ID, Type: "error", Msg: json.RawMessage(`{"code":"invalid_state","message":"market is open"}`)}
		}
		out, _ := json.Marshal(resp)
		if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
			return
		}
	}
}

func TestClient_Connect(t *testing.T) {
	server := mockWSServer(t, echoCommands)
	defer server.Close()

	client := NewClient(testConfig(server), nil)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !client.IsConnected() {
		t.Error("expected IsConnected to return true")
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if client.IsConnected() {
		t.Error("expected IsConnected to return false after Close")
	}

	if err := client.Connect(context.Background()); !errors.Is(err, ErrAlreadyClosed) {
		t.Errorf("Connect after Close error = %v, want ErrAlreadyClosed", err)
	}
}

func TestClient_Do(t *testing.T) {
	server := mockWSServer(t, echoCommands)
	defer server.Close()

	client := NewClient(testConfig(server), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := client.Do(ctx, "getMarketState")
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if resp.Type != "ok" || string(resp.Msg) != `"Open"` {
		t.Errorf("response = %+v", resp)
	}

	second, err := client.Do(ctx, "getMarketState")
	if err != nil {
		t.Fatalf("second Do() error = %v", err)
	}
	if second.ID == resp.ID {
		t.Errorf("command ids repeated: %d", second.ID)
	}

	resp, err = client.Do(ctx, "fail")
	if !errors.Is(err, ErrCommandFailed) {
		t.Fatalf("Do(fail) error = %v, want ErrCommandFailed", err)
	}
	if !strings.Contains(err.Error(), "invalid_state") || resp.Type != "error" {
		t.Errorf("Do(fail) = %+v, %v", resp, err)
	}
}

func TestClient_DuplicateResponse(t *testing.T) {
	// Every command is answered twice, then an event follows.
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var cmd Command
			if err := json.Unmarshal(data, &cmd); err != nil {
				return
			}
			out, _ := json.Marshal(Response{ID: cmd.ID, Type: "ok"})
			for i := 0; i < 3; i++ {
				if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
					return
				}
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"pulseReset"}`)); err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := NewClient(testConfig(server), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := client.Do(ctx, "reset"); err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	// The read loop must keep running past the extra responses.
	select {
	case e := <-client.Events():
		if e.Event != "pulseReset" {
			t.Errorf("event = %q, want pulseReset", e.Event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("read loop stalled after duplicate responses")
	}
	if _, err := client.Do(ctx, "reset"); err != nil {
		t.Errorf("second Do() error = %v", err)
	}
}

func TestClient_DoTimeout(t *testing.T) {
	// Server reads but never answers.
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := NewClient(testConfig(server), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := client.Do(ctx, "start"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Do() error = %v, want DeadlineExceeded", err)
	}
}

func TestClient_Events(t *testing.T) {
	frames := []string{
		`{"event":"snapshot","data":[{"symbol":"AAPL","price":92.08,"day_open":92.08,"day_high":92.08,"day_low":92.08,"change":0.00,"last_change":0.00,"percent_change":0.0000}]}`,
		`{"event":"marketState","data":"Closed"}`,
		`{"id":0,"type":"error","msg":{"code":"bad_request","message":"x"}}`,
		`{"event":"updateStockPrice","data":{"symbol":"AAPL","price":92.17,"day_open":92.08,"day_high":92.17,"day_low":92.08,"change":0.09,"last_change":0.09,"percent_change":0.0010}}`,
	}

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// Keep connection open
		conn.ReadMessage()
	})
	defer server.Close()

	client := NewClient(testConfig(server), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	// The unmatched response is not an event.
	want := []string{"snapshot", "marketState", "updateStockPrice"}
	var got []Event
	timeout := time.After(2 * time.Second)
	for len(got) < len(want) {
		select {
		case e := <-client.Events():
			got = append(got, e)
			if e.ReceivedAt.IsZero() {
				t.Error("ReceivedAt should not be zero")
			}
		case <-timeout:
			t.Fatalf("timeout waiting for events, received %d of %d", len(got), len(want))
		}
	}

	for i, name := range want {
		if got[i].Event != name {
			t.Errorf("event %d = %q, want %q", i, got[i].Event, name)
		}
	}

	snap, err := got[0].Snapshot()
	if err != nil || len(snap) != 1 || snap[0].Symbol != "AAPL" {
		t.Errorf("Snapshot() = %+v, %v", snap, err)
	}
	update, err := got[2].Instrument()
	if err != nil || update.Price.String() != "92.17" || update.LastChange.String() != "0.09" {
		t.Errorf("Instrument() = %+v, %v", update, err)
	}
}

func TestClient_DoNotConnected(t *testing.T) {
	client := NewClient(ClientConfig{URL: "ws://localhost:12345", BufferSize: 1}, nil)

	if _, err := client.Do(context.Background(), "start"); err != ErrNotConnected {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestClient_DoubleClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.ReadMessage()
	})
	defer server.Close()

	client := NewClient(testConfig(server), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// First close should succeed
	if err := client.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}

	// Second close should be no-op
	if err := client.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestClient_StaleConnection(t *testing.T) {
	// Never reading means the server never answers pings.
	release := make(chan struct{})
	server := mockWSServer(t, func(conn *websocket.Conn) {
		<-release
	})
	defer server.Close()
	defer close(release)

	cfg := testConfig(server)
	cfg.PingInterval = 20 * time.Millisecond
	cfg.PingTimeout = 50 * time.Millisecond

	client := NewClient(cfg, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	select {
	case err := <-client.Errors():
		if !errors.Is(err, ErrStaleConnection) {
			t.Errorf("error = %v, want ErrStaleConnection", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for stale connection error")
	}
}

func TestDefaultClientConfig(t *testing.T) {
	cfg := DefaultClientConfig()
	if cfg.PingTimeout <= cfg.PingInterval {
		t.Errorf("PingTimeout %v should exceed PingInterval %v", cfg.PingTimeout, cfg.PingInterval)
	}
	if cfg.WriteTimeout != 5*time.Second {
		t.Errorf("WriteTimeout = %v, want 5s", cfg.WriteTimeout)
	}
	if cfg.BufferSize < 1 {
		t.Errorf("BufferSize = %d, want > 0", cfg.BufferSize)
	}
}
