package ws

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/trackdeck/internal/app/notification"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

var (
	errClientClosed = errors.New("client closed")
	errSlowClient   = errors.New("client send buffer full")
)

// client is one controller connection. It implements notification.Stream.
type client struct {
	server *Server
	conn   *websocket.Conn
	id     string // Notification subscription ID

	mu     sync.Mutex
	send   chan *Message
	closed bool
}

func newClient(server *Server, conn *websocket.Conn) *client {
	return &client{
		server: server,
		conn:   conn,
		send:   make(chan *Message, sendBuffer),
	}
}

// Send queues a status update. A full buffer drops the subscription.
func (c *client) Send(n *notification.Notification) error {
	return c.enqueue(statusMessage(n))
}

func (c *client) enqueue(msg *Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errClientClosed
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return errSlowClient
	}
}

// close stops the write pump. Safe to call more than once.
func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump reads commands until the connection fails.
func (c *client) readPump() {
	defer func() {
		c.server.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var cmd Command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zlog.Debug().Msgf("ws: read error from %s: %v", c.id, err)
			}
			return
		}

		reply := c.server.handleCommand(&cmd)
		if err := c.enqueue(reply); err != nil {
			zlog.Warn().Msgf("ws: failed to reply to %s: %v", c.id, err)
			return
		}
	}
}

// writePump writes queued messages and keeps the connection alive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				zlog.Debug().Msgf("ws: write error to %s: %v", c.id, err)
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
