package devhost

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/morezero/widget-bridge/pkg/protocol"
)

const wsLogPrefix = "devhost:ws"

type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) write(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// WSHub serves widgets over websockets and broadcasts pushed events to every
// open connection. It implements http.Handler and events.EventPublisher.
type WSHub struct {
	host     *Host
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*wsConn]struct{}
}

// NewWSHub creates a hub. The dev host accepts any origin.
func NewWSHub() *WSHub {
	return &WSHub{
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		conns:    make(map[*wsConn]struct{}),
	}
}

// Bind sets the host whose dispatcher answers websocket requests. It must be
// called before the hub serves connections.
func (hub *WSHub) Bind(h *Host) {
	hub.host = h
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (hub *WSHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - upgrade failed: %v", wsLogPrefix, err))
		return
	}
	c := &wsConn{conn: conn}
	hub.add(c)
	defer hub.remove(c)

	slog.Info(fmt.Sprintf("%s - widget connected from %s", wsLogPrefix, r.RemoteAddr))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn(fmt.Sprintf("%s - read failed: %v", wsLogPrefix, err))
			}
			return
		}
		out, err := protocol.DecodeOutbound(data)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - dropping malformed frame: %v", wsLogPrefix, err))
			continue
		}
		reply := hub.host.Handle(r.Context(), out)
		if reply == nil {
			continue
		}
		if err := c.write(reply); err != nil {
			slog.Warn(fmt.Sprintf("%s - write failed: %v", wsLogPrefix, err))
			return
		}
	}
}

// PublishEvent sends an EVENT envelope to every connection. Widgets filter
// by scope on their side.
func (hub *WSHub) PublishEvent(_ context.Context, event, widgetID string, payload json.RawMessage) error {
	msg := protocol.Event(event, widgetID, payload)

	hub.mu.Lock()
	conns := make([]*wsConn, 0, len(hub.conns))
	for c := range hub.conns {
		conns = append(conns, c)
	}
	hub.mu.Unlock()

	var first error
	for _, c := range conns {
		if err := c.write(msg); err != nil && first == nil {
			first = fmt.Errorf("%s - broadcast %s: %w", wsLogPrefix, event, err)
		}
	}
	return first
}

// Connections returns the number of open connections.
func (hub *WSHub) Connections() int {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	return len(hub.conns)
}

// Close closes every open connection.
func (hub *WSHub) Close() {
	hub.mu.Lock()
	conns := hub.conns
	hub.conns = make(map[*wsConn]struct{})
	hub.mu.Unlock()

	for c := range conns {
		c.writeMu.Lock()
		c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "host shutting down"))
		c.writeMu.Unlock()
		c.conn.Close()
	}
}

func (hub *WSHub) add(c *wsConn) {
	hub.mu.Lock()
	hub.conns[c] = struct{}{}
	n := len(hub.conns)
	hub.mu.Unlock()
	hub.gauge(n)
}

func (hub *WSHub) remove(c *wsConn) {
	hub.mu.Lock()
	delete(hub.conns, c)
	n := len(hub.conns)
	hub.mu.Unlock()
	c.conn.Close()
	hub.gauge(n)
}

func (hub *WSHub) gauge(n int) {
	if hub.host != nil && hub.host.metrics != nil {
		hub.host.metrics.WSConnections.Set(float64(n))
	}
}
