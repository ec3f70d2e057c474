package push

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/freshhhy/rfq-engine/pkg/model"
)

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxFrameSize     = 4096
	clientSendBuffer = 64
)

// Client is one WebSocket connection bound to a party channel.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	party   model.Party
	channel string
	send    chan []byte
	logger  *zap.Logger
}

// readPump consumes inbound frames until the connection dies. Vendor
// heartbeat frames refresh presence; a product frame replaces the
// vendor's available set. Disconnect marks the vendor offline.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
		if c.party.Kind == model.PartyVendor {
			if err := c.hub.tracker.MarkOffline(context.Background(), c.party.ID, "disconnect"); err != nil {
				c.logger.Warn("push.mark_offline_failed", zap.Error(err))
			}
		}
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("push.read_failed", zap.Error(err))
			}
			return
		}

		frame, ok := parseInbound(data)
		if !ok || c.party.Kind != model.PartyVendor {
			continue
		}

		switch frame.Type {
		case "heartbeat":
			if err := c.hub.tracker.Heartbeat(context.Background(), c.party.ID); err != nil {
				c.logger.Warn("push.heartbeat_failed", zap.Error(err))
			}
		case "products":
			if err := c.hub.tracker.MarkOnline(context.Background(), c.party.ID, "", frame.ProductIDs); err != nil {
				c.logger.Warn("push.products_update_failed", zap.Error(err))
			}
		}
	}
}

// writePump writes outbound envelopes and keepalive pings. A failed
// write ends the connection; readPump's deferred cleanup handles the
// rest.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
