package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/morezero/widget-bridge/pkg/protocol"
)

const wsLogPrefix = "transport:websocket"

// WSChannelOpts configures DialWS. Nil or zero values use defaults.
type WSChannelOpts struct {
	HandshakeTimeout time.Duration
	Header           http.Header
}

// WSChannel is a Channel over a websocket connection to the host. Envelopes
// are JSON text frames; one read loop delivers inbound frames in order.
type WSChannel struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu       sync.Mutex
	handlers handlerSet
	closed   bool

	loopDone chan struct{}
}

// DialWS connects to a host websocket endpoint.
func DialWS(ctx context.Context, url string, opts *WSChannelOpts) (*WSChannel, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	var header http.Header
	if opts != nil {
		if opts.HandshakeTimeout > 0 {
			dialer.HandshakeTimeout = opts.HandshakeTimeout
		}
		header = opts.Header
	}

	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to dial %s: %w", wsLogPrefix, url, err)
	}
	slog.Info(fmt.Sprintf("%s - Connected to %s", wsLogPrefix, url))
	return NewWSChannel(conn), nil
}

// NewWSChannel wraps an established connection and starts the read loop.
func NewWSChannel(conn *websocket.Conn) *WSChannel {
	c := &WSChannel{conn: conn, loopDone: make(chan struct{})}
	go c.readLoop()
	return c
}

// Send writes msg as a JSON text frame.
func (c *WSChannel) Send(ctx context.Context, msg *protocol.OutboundMessage) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%s - failed to set write deadline: %w", wsLogPrefix, err)
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("%s - failed to write %s: %w", wsLogPrefix, msg.Type, err)
	}
	return nil
}

// OnReceive adds a handler.
func (c *WSChannel) OnReceive(h Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.handlers.add(h)
	return nil
}

// Done is closed when the read loop exits (peer closed or Close called).
func (c *WSChannel) Done() <-chan struct{} {
	return c.loopDone
}

func (c *WSChannel) readLoop() {
	defer close(c.loopDone)
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn(fmt.Sprintf("%s - read error: %v", wsLogPrefix, err))
			}
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		msg, err := protocol.DecodeInbound(data)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - dropping malformed frame: %v", wsLogPrefix, err))
			continue
		}
		c.mu.Lock()
		handlers := c.handlers.snapshot()
		c.mu.Unlock()
		for _, h := range handlers {
			h(msg)
		}
	}
}

// Close sends a close frame and tears the connection down.
func (c *WSChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.writeMu.Lock()
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	werr := c.conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
	c.writeMu.Unlock()

	cerr := c.conn.Close()
	<-c.loopDone
	if werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
		slog.Debug(fmt.Sprintf("%s - close frame: %v", wsLogPrefix, werr))
	}
	return cerr
}
