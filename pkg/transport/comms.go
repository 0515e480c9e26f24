package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/widget-bridge/pkg/commsutil"
	"github.com/morezero/widget-bridge/pkg/protocol"
)

const commsLogPrefix = "transport:comms"

const defaultCommsBuffer = 256

// CommsChannelOpts configures CommsChannel. Nil or zero values use defaults.
type CommsChannelOpts struct {
	// HostSubject receives outbound envelopes (default commsutil.SubjectHost).
	HostSubject string
	// EventSubject carries host events (default commsutil.SubjectEvents).
	// Scoped events arrive on EventSubject.<widget>.
	EventSubject string
	// Name identifies this client in its reply inbox subject.
	Name string
	// Buffer is the inbound queue length.
	Buffer int
}

// CommsChannel is a Channel over COMMS (NATS). Requests are published to the
// host subject with a private reply inbox; replies and events from all
// subscriptions feed a single queue drained by one goroutine, so handlers run
// strictly in the order the connection received the messages.
type CommsChannel struct {
	nc          *comms.Conn
	hostSubject string
	inbox       string

	inboundCh chan *comms.Msg
	subs      []*comms.Subscription
	done      chan struct{}
	wg        sync.WaitGroup

	mu       sync.Mutex
	handlers handlerSet
	closed   bool
}

// NewCommsChannel subscribes the reply inbox and event subjects and starts
// the delivery goroutine. The connection stays owned by the caller.
func NewCommsChannel(nc *comms.Conn, opts *CommsChannelOpts) (*CommsChannel, error) {
	o := CommsChannelOpts{}
	if opts != nil {
		o = *opts
	}
	if o.HostSubject == "" {
		o.HostSubject = commsutil.SubjectHost
	}
	if o.EventSubject == "" {
		o.EventSubject = commsutil.SubjectEvents
	}
	if o.Buffer <= 0 {
		o.Buffer = defaultCommsBuffer
	}

	c := &CommsChannel{
		nc:          nc,
		hostSubject: o.HostSubject,
		inbox:       commsutil.BuildInboxSubject(o.Name, uuid.NewString()),
		inboundCh:   make(chan *comms.Msg, o.Buffer),
		done:        make(chan struct{}),
	}

	for _, subject := range []string{c.inbox, o.EventSubject, o.EventSubject + ".*"} {
		sub, err := nc.ChanSubscribe(subject, c.inboundCh)
		if err != nil {
			c.unsubscribeAll()
			return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", commsLogPrefix, subject, err)
		}
		c.subs = append(c.subs, sub)
	}
	if err := nc.Flush(); err != nil {
		c.unsubscribeAll()
		return nil, fmt.Errorf("%s - failed to flush subscriptions: %w", commsLogPrefix, err)
	}

	c.wg.Add(1)
	go c.pump()

	slog.Info(fmt.Sprintf("%s - Channel ready: host=%s inbox=%s events=%s", commsLogPrefix, c.hostSubject, c.inbox, o.EventSubject))
	return c, nil
}

// Inbox returns the reply subject used for outbound requests.
func (c *CommsChannel) Inbox() string {
	return c.inbox
}

// Send publishes msg to the host subject with the channel's reply inbox.
func (c *CommsChannel) Send(ctx context.Context, msg *protocol.OutboundMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	data, err := commsutil.EncodePayload(msg)
	if err != nil {
		return fmt.Errorf("%s - failed to encode %s: %w", commsLogPrefix, msg.Type, err)
	}
	if err := c.nc.PublishMsg(&comms.Msg{Subject: c.hostSubject, Reply: c.inbox, Data: data}); err != nil {
		return fmt.Errorf("%s - failed to publish to %s: %w", commsLogPrefix, c.hostSubject, err)
	}
	return nil
}

// OnReceive adds a handler.
func (c *CommsChannel) OnReceive(h Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.handlers.add(h)
	return nil
}

func (c *CommsChannel) pump() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case m := <-c.inboundCh:
			c.deliver(m.Data)
		}
	}
}

func (c *CommsChannel) deliver(data []byte) {
	msg, err := protocol.DecodeInbound(data)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - dropping malformed frame: %v", commsLogPrefix, err))
		return
	}
	c.mu.Lock()
	handlers := c.handlers.snapshot()
	c.mu.Unlock()
	for _, h := range handlers {
		h(msg)
	}
}

// Close unsubscribes and stops delivery. The COMMS connection is left open.
func (c *CommsChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.unsubscribeAll()
	close(c.done)
	c.wg.Wait()
	return nil
}

func (c *CommsChannel) unsubscribeAll() {
	for _, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Debug(fmt.Sprintf("%s - unsubscribe %s: %v", commsLogPrefix, sub.Subject, err))
		}
	}
	c.subs = nil
}
