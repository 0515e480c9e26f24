package devhost

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/widget-bridge/pkg/commsutil"
	"github.com/morezero/widget-bridge/pkg/events"
	"github.com/morezero/widget-bridge/pkg/metrics"
	"github.com/morezero/widget-bridge/pkg/protocol"
	"github.com/morezero/widget-bridge/pkg/widget"
)

const hostLogPrefix = "devhost:host"

// DefaultRequestTimeout bounds the handling of one widget message.
const DefaultRequestTimeout = 5 * time.Second

// HostParams configures NewHost.
type HostParams struct {
	Dispatcher     *Dispatcher
	Publisher      events.EventPublisher
	Metrics        *metrics.Host
	RequestTimeout time.Duration
}

// Host serves a Dispatcher over transports and pushes events to widgets.
type Host struct {
	dispatcher *Dispatcher
	publisher  events.EventPublisher
	metrics    *metrics.Host
	timeout    time.Duration
}

// NewHost creates a Host. A nil Publisher drops pushed events.
func NewHost(params HostParams) *Host {
	pub := params.Publisher
	if pub == nil {
		pub = &events.NoOpPublisher{}
	}
	timeout := params.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Host{
		dispatcher: params.Dispatcher,
		publisher:  pub,
		metrics:    params.Metrics,
		timeout:    timeout,
	}
}

// Dispatcher returns the host's dispatcher.
func (h *Host) Dispatcher() *Dispatcher { return h.dispatcher }

// Handle dispatches one envelope under the host's request timeout.
func (h *Host) Handle(ctx context.Context, msg *protocol.OutboundMessage) *protocol.InboundMessage {
	reqCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return h.dispatcher.Dispatch(reqCtx, msg)
}

// ServeComms answers widget envelopes published to subject, replying on
// each message's reply subject.
func (h *Host) ServeComms(ctx context.Context, nc *comms.Conn, subject string) (*comms.Subscription, error) {
	if subject == "" {
		subject = commsutil.SubjectHost
	}
	sub, err := nc.Subscribe(subject, func(msg *comms.Msg) {
		out, err := protocol.DecodeOutbound(msg.Data)
		if err != nil {
			slog.Error(fmt.Sprintf("%s - failed to decode request: %v", hostLogPrefix, err))
			return
		}

		reply := h.Handle(ctx, out)
		if reply == nil || msg.Reply == "" {
			return
		}
		data, err := commsutil.EncodePayload(reply)
		if err != nil {
			slog.Error(fmt.Sprintf("%s - failed to encode reply: %v", hostLogPrefix, err))
			return
		}
		if err := msg.Respond(data); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to respond to %s: %v", hostLogPrefix, out.ID, err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", hostLogPrefix, subject, err)
	}
	slog.Info(fmt.Sprintf("%s - Subscribed to %s", hostLogPrefix, subject))
	return sub, nil
}

// Emit pushes an event to one widget, or to every widget when widgetID is
// empty.
func (h *Host) Emit(ctx context.Context, event, widgetID string, payload interface{}) error {
	raw, err := commsutil.RawPayload(payload)
	if err != nil {
		return fmt.Errorf("%s - encode %s payload: %w", hostLogPrefix, event, err)
	}
	if err := h.publisher.PublishEvent(ctx, event, widgetID, raw); err != nil {
		return fmt.Errorf("%s - publish %s: %w", hostLogPrefix, event, err)
	}
	if h.metrics != nil {
		h.metrics.EventsPushed.WithLabelValues(event).Inc()
	}
	return nil
}

// PushContext stores c and sends it to the widget as a context-update.
func (h *Host) PushContext(ctx context.Context, c widget.Context) error {
	if c.WidgetID == "" {
		return fmt.Errorf("%s - context push requires a widget id", hostLogPrefix)
	}
	h.dispatcher.Contexts().Set(c)
	return h.Emit(ctx, events.ContextUpdate, c.WidgetID, c)
}

// PatchContext applies a JSON merge of top-level fields to the stored
// context of widgetID and pushes the result.
func (h *Host) PatchContext(ctx context.Context, widgetID string, patch json.RawMessage) (widget.Context, error) {
	current := h.dispatcher.Contexts().Get(widgetID)
	base, err := json.Marshal(current)
	if err != nil {
		return current, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(base, &fields); err != nil {
		return current, err
	}
	var overlay map[string]json.RawMessage
	if err := json.Unmarshal(patch, &overlay); err != nil {
		return current, fmt.Errorf("%s - invalid context patch: %w", hostLogPrefix, err)
	}
	for k, v := range overlay {
		fields[k] = v
	}
	merged, err := json.Marshal(fields)
	if err != nil {
		return current, fmt.Errorf("%s - encode patched context: %w", hostLogPrefix, err)
	}

	var next widget.Context
	if err := json.Unmarshal(merged, &next); err != nil {
		return current, fmt.Errorf("%s - invalid context patch: %w", hostLogPrefix, err)
	}
	next.WidgetID = widgetID
	return next, h.PushContext(ctx, next)
}

// HealthChecks lists individual health probes.
type HealthChecks struct {
	Store bool `json:"store"`
	Comms bool `json:"comms"`
}

// HealthOutput is the /health body.
type HealthOutput struct {
	Status    string       `json:"status"`
	Checks    HealthChecks `json:"checks"`
	Timestamp string       `json:"timestamp"`
}

// Health checks the store and, when nc is non-nil, the NATS connection.
func (h *Host) Health(ctx context.Context, nc *comms.Conn) *HealthOutput {
	storeOk := h.dispatcher.Store().Ping(ctx) == nil
	commsOk := nc == nil || nc.IsConnected()

	status := "healthy"
	if !storeOk || !commsOk {
		status = "unhealthy"
	}
	return &HealthOutput{
		Status:    status,
		Checks:    HealthChecks{Store: storeOk, Comms: commsOk},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
