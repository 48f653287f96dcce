package hub

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the deadline for a single websocket write.
	writeWait = 10 * time.Second
	// pongWait is how long a connection may stay silent before it is
	// considered dead; pings go out at pingPeriod to keep it alive.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// maxFrameSize bounds inbound frames; client frames are tiny.
	maxFrameSize = 1024
	// sendBufferSize is the per-client outbound queue.  A client that
	// cannot drain it in time is dropped; it will resnapshot on
	// reconnect, so broadcasts stay best-effort at-most-once.
	sendBufferSize = 64
)

// Client is one live websocket connection known to the hub.  ID is
// the opaque connection identifier clients echo back to the REST
// finalization endpoint in X-Connection-Id.  The group pointer is
// guarded by the hub mutex.
type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	group *GroupKey
}

// readPump consumes client frames until the connection dies, then
// lets the hub clean up.  Runs as one goroutine per connection.
func (c *Client) readPump() {
	defer func() {
		c.hub.Disconnect(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("hub: connection %s read error: %v", c.ID, err)
			}
			return
		}
		var frame ClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.hub.sendError(c, "malformed frame")
			continue
		}
		c.hub.handleFrame(c, frame)
	}
}

// writePump drains the send queue onto the wire and keeps the
// connection alive with pings.  Runs as one goroutine per
// connection; it is the only writer, which websocket requires.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel: say goodbye properly.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
