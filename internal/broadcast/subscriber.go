package broadcast

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// subscriber is one connected WebSocket observer.
type subscriber struct {
	id         uuid.UUID
	conn       *websocket.Conn
	queue      *Queue[[]byte]
	remoteAddr string

	done      chan struct{}
	closeOnce sync.Once
}

func newSubscriber(conn *websocket.Conn, queue *Queue[[]byte], remoteAddr string) *subscriber {
	return &subscriber{
		id:         uuid.New(),
		conn:       conn,
		queue:      queue,
		remoteAddr: remoteAddr,
		done:       make(chan struct{}),
	}
}

// goAway sends a normal close frame.
func (s *subscriber) goAway(timeout time.Duration) {
	s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
		time.Now().Add(timeout),
	)
}

// close stops the subscriber's goroutines. Safe to call more than once.
func (s *subscriber) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.queue.Close()
		s.conn.Close()
	})
}
