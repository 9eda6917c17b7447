package gateway

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mossy-p/storefront-realtime/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 256
)

// Client is one authenticated WebSocket connection. It satisfies
// registry.Member; frames are queued on Send and written by writePump.
type Client struct {
	id       string
	identity models.Identity
	conn     *websocket.Conn
	send     chan []byte
	logger   zerolog.Logger
}

func (c *Client) ConnID() string {
	return c.id
}

func (c *Client) Identity() models.Identity {
	return c.identity
}

// Enqueue queues a marshalled frame without blocking. A full buffer drops
// the frame and reports false; delivery is at-most-once by contract.
func (c *Client) Enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// readPump consumes frames until the peer goes away, routing each one
// through the gateway's handler table. Cleanup runs synchronously before the
// pump returns so no later event can observe the departed connection.
func (c *Client) readPump(g *Gateway) {
	defer g.teardown(c)

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("websocket read error")
			}
			return
		}
		g.route(c, data)
	}
}

// writePump owns all writes to the connection: queued frames plus the ping
// keepalive. A closed send channel produces a clean close frame.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn().Err(err).Msg("websocket write error")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
