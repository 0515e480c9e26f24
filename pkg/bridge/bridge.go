// Package bridge ties a transport channel, the request correlator and the
// event registry together into the widget side of the host bridge.
//
// Inbound envelopes are routed by type: EVENT to the event registry, RESPONSE
// and ERROR to the pending request with the same id. Anything else is dropped.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/morezero/widget-bridge/pkg/commsutil"
	"github.com/morezero/widget-bridge/pkg/correlator"
	"github.com/morezero/widget-bridge/pkg/events"
	"github.com/morezero/widget-bridge/pkg/protocol"
	"github.com/morezero/widget-bridge/pkg/transport"
)

const logPrefix = "bridge:bridge"

// Drop reasons reported to Observer.MessageDropped.
const (
	DropMissingID   = "missing_id"
	DropUnknownType = "unknown_type"
	DropUnmatched   = "unmatched_id"
)

// Observer receives lifecycle notifications from every part of the bridge.
type Observer interface {
	correlator.Observer
	events.Observer
	MessageDropped(reason string)
}

type options struct {
	corr     []correlator.Option
	observer Observer
}

// Option configures a Bridge.
type Option func(*options)

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.corr = append(o.corr, correlator.WithTimeout(d)) }
}

// WithScheduler replaces the timer used for request timeouts.
func WithScheduler(s correlator.Scheduler) Option {
	return func(o *options) { o.corr = append(o.corr, correlator.WithScheduler(s)) }
}

// WithIDGenerator replaces the request id generator.
func WithIDGenerator(gen func() string) Option {
	return func(o *options) { o.corr = append(o.corr, correlator.WithIDGenerator(gen)) }
}

// WithObserver attaches a metrics observer.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
		if obs != nil {
			o.corr = append(o.corr, correlator.WithObserver(obs))
		}
	}
}

// Bridge is the widget end of the bridge.
type Bridge struct {
	channel    transport.Channel
	correlator *correlator.Correlator
	registry   *events.Registry
	observer   Observer

	attachOnce sync.Once
	attachErr  error
}

// New builds an unattached Bridge over channel.
func New(channel transport.Channel, opts ...Option) *Bridge {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var evObs events.Observer
	if o.observer != nil {
		evObs = o.observer
	}

	return &Bridge{
		channel:    channel,
		correlator: correlator.New(o.corr...),
		registry:   events.NewRegistry(evObs),
		observer:   o.observer,
	}
}

// Attach installs the inbound handler on the channel. Only the first call has
// any effect; later calls return the first call's result.
func (b *Bridge) Attach() error {
	b.attachOnce.Do(func() {
		if err := b.channel.OnReceive(b.handle); err != nil {
			b.attachErr = fmt.Errorf("%s - attach: %w", logPrefix, err)
		}
	})
	return b.attachErr
}

// Request sends an envelope of type typ and returns the future for its reply.
// A send failure settles the future with that error and is also returned.
func (b *Bridge) Request(ctx context.Context, typ protocol.MessageType, widgetID string, payload interface{}) (*correlator.Future, error) {
	raw, err := commsutil.RawPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("%s - encode %s payload: %w", logPrefix, typ, err)
	}

	id, future := b.correlator.Issue()
	msg := &protocol.OutboundMessage{
		ID:       id,
		WidgetID: widgetID,
		Type:     typ,
		Payload:  raw,
	}

	slog.Debug(fmt.Sprintf("%s - sending %s id=%s widget=%s", logPrefix, typ, id, widgetID))

	if err := b.channel.Send(ctx, msg); err != nil {
		err = fmt.Errorf("%s - send %s: %w", logPrefix, typ, err)
		b.correlator.Reject(id, err)
		return future, err
	}
	return future, nil
}

// Emit sends an outbound EVENT. No reply is expected.
func (b *Bridge) Emit(ctx context.Context, event, widgetID string, payload interface{}) error {
	raw, err := commsutil.RawPayload(payload)
	if err != nil {
		return fmt.Errorf("%s - encode event %s: %w", logPrefix, event, err)
	}
	msg := &protocol.OutboundMessage{
		ID:       event,
		WidgetID: widgetID,
		Type:     protocol.TypeEvent,
		Payload:  raw,
	}
	if err := b.channel.Send(ctx, msg); err != nil {
		return fmt.Errorf("%s - emit %s: %w", logPrefix, event, err)
	}
	return nil
}

// On subscribes cb to event. A non-empty scope restricts delivery to events
// for that widget or broadcasts.
func (b *Bridge) On(event string, cb events.Callback, scope string) (unsubscribe func()) {
	return b.registry.Subscribe(event, cb, scope)
}

// Pending returns the number of unanswered requests.
func (b *Bridge) Pending() int {
	return b.correlator.Pending()
}

// Timeout returns the request timeout.
func (b *Bridge) Timeout() time.Duration {
	return b.correlator.Timeout()
}

// Events exposes the event registry.
func (b *Bridge) Events() *events.Registry {
	return b.registry
}

// Close closes the underlying channel. Pending requests still settle by timeout.
func (b *Bridge) Close() error {
	return b.channel.Close()
}

// handle routes one inbound envelope.
func (b *Bridge) handle(msg *protocol.InboundMessage) {
	if msg == nil || msg.ID == "" {
		b.drop(DropMissingID, msg)
		return
	}

	switch msg.Type {
	case protocol.TypeEvent:
		b.registry.Dispatch(msg.ID, msg.Payload, msg.WidgetID)
	case protocol.TypeResponse:
		if !b.correlator.Complete(msg.ID, msg.Payload) {
			b.drop(DropUnmatched, msg)
		}
	case protocol.TypeError:
		if !b.correlator.Fail(msg.ID, msg.Error) {
			b.drop(DropUnmatched, msg)
		}
	default:
		b.drop(DropUnknownType, msg)
	}
}

func (b *Bridge) drop(reason string, msg *protocol.InboundMessage) {
	if msg != nil {
		slog.Debug(fmt.Sprintf("%s - dropped inbound message: reason=%s id=%q type=%q", logPrefix, reason, msg.ID, msg.Type))
	} else {
		slog.Debug(fmt.Sprintf("%s - dropped nil inbound message", logPrefix))
	}
	if b.observer != nil {
		b.observer.MessageDropped(reason)
	}
}
