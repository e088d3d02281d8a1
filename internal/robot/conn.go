package robot

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// sendQueueLen bounds outbound frames per connection. A robot that stops
// reading fills the queue and is treated as dead.
const sendQueueLen = 64

// wsConn wraps a websocket with a single writer goroutine so replies and
// server pings never interleave mid-frame. The id identifies connections in
// logs before a begin frame names the team.
type wsConn struct {
	id   uuid.UUID
	ws   *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	onDead func()

	closeOnce sync.Once
	closed    chan struct{}
}

func newWSConn(ws *websocket.Conn) *wsConn {
	c := &wsConn{
		id:     uuid.New(),
		ws:     ws,
		send:   make(chan []byte, sendQueueLen),
		closed: make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

// setOnDead installs the callback fired when a write fails. Installed once
// the connection has adopted a team name.
func (c *wsConn) setOnDead(fn func()) {
	c.mu.Lock()
	c.onDead = fn
	c.mu.Unlock()
}

func (c *wsConn) writeLoop() {
	for {
		select {
		case msg := <-c.send:
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.mu.Lock()
				dead := c.onDead
				c.mu.Unlock()
				c.Close()
				if dead != nil {
					dead()
				}
				return
			}
		case <-c.closed:
			return
		}
	}
}

// Send marshals v and queues it. A closed connection or a full queue is an
// error; the caller decides whether that disconnects the robot.
func (c *wsConn) Send(v any) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	select {
	case <-c.closed:
		return fmt.Errorf("connection closed")
	case c.send <- msg:
		return nil
	default:
		return fmt.Errorf("send queue full")
	}
}

// Close shuts the socket down. Safe to call more than once.
func (c *wsConn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.ws.Close()
	})
}

var _ Sender = (*wsConn)(nil)
