// Package live pushes structured updates to connected users over WebSocket.
// Delivery is best-effort: a user without an open channel, or with a full
// send buffer, simply misses the update.
package live

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocket timeout constants following Gorilla best practices
// See: https://github.com/gorilla/websocket/blob/master/examples/chat/client.go
const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer; the channel is push-only so
	// inbound traffic should be tiny
	maxMessageSize = 4 * 1024

	// Per-channel send buffer; overflow drops the update
	sendBuffer = 32
)

// Update is one structured message pushed to a user.
type Update struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Channel is a single user's WebSocket connection.
type Channel struct {
	userID int64
	conn   *websocket.Conn
	send   chan Update
	hub    *Hub
	logger *zap.SugaredLogger

	// mu guards closed so no update is sent on send after it is closed.
	mu     sync.Mutex
	closed bool
}

// run starts both pumps and blocks until the connection closes.
func (c *Channel) run() {
	go c.writePump()
	c.readPump()
}

// readPump drains inbound frames to keep pong handling alive. The channel is
// push-only; client payloads are discarded.
func (c *Channel) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNoStatusReceived,
			) {
				c.logger.Warnw("WebSocket read error",
					"user_id", c.userID,
					"error", err.Error(),
				)
			}
			return
		}
	}
}

// writePump writes queued updates and heartbeat pings to the connection.
func (c *Channel) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case update, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(update); err != nil {
				c.logger.Debugw("Update write error",
					"user_id", c.userID,
					"event", update.Event,
					"error", err.Error(),
				)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue queues an update without blocking. It reports false when the
// update was dropped, because the channel is already closed or its buffer
// is full.
func (c *Channel) enqueue(update Update) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- update:
		return true
	default:
		return false
	}
}

// close shuts the send channel, unblocking the write pump. Idempotent.
func (c *Channel) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
