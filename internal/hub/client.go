package hub

import (
	"time"

	"github.com/gorilla/websocket"
)

// Client is one websocket connection with its outbound buffer.
type Client struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte

	hub *Hub
}

// NewClient wraps an upgraded connection.
func (h *Hub) NewClient(id string, conn *websocket.Conn) *Client {
	return &Client{
		ID:   id,
		Conn: conn,
		Send: make(chan []byte, h.cfg.SendBuffer),
		hub:  h,
	}
}

// ReadPump reads inbound frames and hands them to onMessage. onDisconnect
// fires exactly once when the connection dies, before the client is
// unregistered.
func (c *Client) ReadPump(onMessage func(connID string, data []byte), onDisconnect func(connID string)) {
	defer func() {
		onDisconnect(c.ID)
		c.hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug().Err(err).Str("connection_id", c.ID).Msg("websocket read error")
			}
			break
		}
		onMessage(c.ID, message)
	}
}

// WritePump drains the send buffer and keeps the connection alive with
// pings. Pings go out before the read deadline on the peer expires.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.hub.cfg.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.log.Debug().Err(err).Str("connection_id", c.ID).Msg("websocket write error")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
