package bridge

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/warden-dev/warden/internal/protocol"
)

// client is one connected UI. The hub owns membership; send is never closed,
// done signals the write pump to stop.
type client struct {
	id     string
	server *Server
	conn   *websocket.Conn
	send   chan protocol.Message
	done   chan struct{}
	once   sync.Once
}

func newClient(s *Server, conn *websocket.Conn, id string) *client {
	return &client{
		id:     id,
		server: s,
		conn:   conn,
		send:   make(chan protocol.Message, s.cfg.SendBuffer),
		done:   make(chan struct{}),
	}
}

// offer queues msg without blocking. It reports false when the client is gone
// or its buffer is full.
func (c *client) offer(msg protocol.Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.server.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	timeout := c.server.cfg.WriteTimeout
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.server.logger.Debug("write failed", "client", c.id, "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.server.unregister <- c:
		case <-c.server.stopped:
		}
		c.close()
		_ = c.conn.Close()
	}()

	pongWait := c.server.cfg.PingInterval * 10 / 9
	c.conn.SetReadLimit(c.server.cfg.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.server.logger.Warn("websocket read failed", "client", c.id, "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		reply, ok := c.server.handleFrame(c.server.context(), c.id, frame)
		if !ok {
			continue
		}
		if !c.offer(reply) {
			c.server.logger.Warn("dropping client with full send buffer", "client", c.id)
			return
		}
	}
}
