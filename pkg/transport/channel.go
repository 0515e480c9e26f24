// Package transport carries bridge envelopes across the widget/host boundary.
//
// A Channel only delivers: it sends outbound envelopes best-effort and hands
// every inbound envelope to the registered handlers in arrival order, one at a
// time. It does not deduplicate handler registrations; the bridge attaches
// itself exactly once.
package transport

import (
	"context"
	"errors"

	"github.com/morezero/widget-bridge/pkg/protocol"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport: channel closed")

// Handler receives one inbound envelope.
type Handler func(msg *protocol.InboundMessage)

// Channel is a bidirectional envelope transport to the host.
type Channel interface {
	// Send delivers msg to the host. It does not wait for a reply.
	Send(ctx context.Context, msg *protocol.OutboundMessage) error
	// OnReceive adds a handler for inbound envelopes.
	OnReceive(h Handler) error
	// Close stops delivery and releases the underlying connection.
	Close() error
}

// handlerSet is the ordered handler list shared by the implementations.
type handlerSet struct {
	handlers []Handler
}

func (s *handlerSet) add(h Handler) {
	s.handlers = append(s.handlers, h)
}

func (s *handlerSet) snapshot() []Handler {
	out := make([]Handler, len(s.handlers))
	copy(out, s.handlers)
	return out
}
