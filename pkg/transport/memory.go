package transport

import (
	"context"
	"sync"

	"github.com/morezero/widget-bridge/pkg/protocol"
)

// Responder answers an outbound envelope on behalf of a host. Returning nil
// sends no reply.
type Responder func(msg *protocol.OutboundMessage) *protocol.InboundMessage

// MemoryChannel is an in-process Channel. Sent envelopes are recorded and,
// when a Responder is set, answered by delivering its reply. Deliver runs the
// handlers on the caller's goroutine; a delivery that arrives while another is
// in progress is queued and drained by the active deliverer, so handlers see
// one message at a time in arrival order.
type MemoryChannel struct {
	mu        sync.Mutex
	handlers  handlerSet
	sent      []*protocol.OutboundMessage
	responder Responder
	queue     []*protocol.InboundMessage
	draining  bool
	closed    bool
}

// NewMemoryChannel creates a MemoryChannel. responder may be nil.
func NewMemoryChannel(responder Responder) *MemoryChannel {
	return &MemoryChannel{responder: responder}
}

// Send records msg and, if a responder is configured, delivers its reply.
func (c *MemoryChannel) Send(_ context.Context, msg *protocol.OutboundMessage) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.sent = append(c.sent, msg)
	responder := c.responder
	c.mu.Unlock()

	if responder != nil {
		if reply := responder(msg); reply != nil {
			c.Deliver(reply)
		}
	}
	return nil
}

// OnReceive adds a handler.
func (c *MemoryChannel) OnReceive(h Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.handlers.add(h)
	return nil
}

// Deliver hands msg to every handler in registration order.
func (c *MemoryChannel) Deliver(msg *protocol.InboundMessage) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.queue = append(c.queue, msg)
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	for len(c.queue) > 0 && !c.closed {
		next := c.queue[0]
		c.queue = c.queue[1:]
		handlers := c.handlers.snapshot()
		c.mu.Unlock()

		for _, h := range handlers {
			h(next)
		}

		c.mu.Lock()
	}
	c.draining = false
	c.mu.Unlock()
}

// SetResponder replaces the responder.
func (c *MemoryChannel) SetResponder(r Responder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responder = r
}

// Sent returns a copy of the envelopes sent so far.
func (c *MemoryChannel) Sent() []*protocol.OutboundMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*protocol.OutboundMessage, len(c.sent))
	copy(out, c.sent)
	return out
}

// HandlerCount returns the number of registered handlers.
func (c *MemoryChannel) HandlerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers.handlers)
}

// Close stops delivery.
func (c *MemoryChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
