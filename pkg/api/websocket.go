package api

import (
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/uhyunpark/energy-gateway/pkg/broadcast"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// checkOrigin accepts requests without an Origin header and those from an
// allowed origin.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.origins) == 0 {
		return true
	}
	return slices.Contains(s.origins, "*") || slices.Contains(s.origins, origin)
}

// wsClient pumps one subscription's events to its connection.
type wsClient struct {
	conn *websocket.Conn
	sub  *broadcast.Subscription
	srv  *Server
}

// handleWebSocket upgrades the connection and starts the client's
// broadcast task. The task ends when the peer goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("ws_upgrade_failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	sub, err := s.broadcast.Connect(uuid.NewString())
	if err != nil {
		s.logger.Warnw("ws_connect_rejected", "remote", r.RemoteAddr, "err", err)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	s.logger.Infow("ws_client_connected", "client", sub.ID(), "remote", r.RemoteAddr)
	c := &wsClient{conn: conn, sub: sub, srv: s}
	go c.writePump()
	go c.readPump()
}

// readPump discards client messages and detects disconnects.
func (c *wsClient) readPump() {
	defer func() {
		c.srv.broadcast.Disconnect(c.sub.ID())
		c.conn.Close()
		c.srv.logger.Infow("ws_client_disconnected", "client", c.sub.ID())
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.srv.logger.Warnw("ws_read_failed", "client", c.sub.ID(), "err", err)
			}
			return
		}
	}
}

// writePump sends each event as a JSON text frame and keeps the connection
// alive with pings. A closed event channel closes the connection.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.sub.Events():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				c.srv.logger.Warnw("ws_write_failed", "client", c.sub.ID(), "err", err)
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
