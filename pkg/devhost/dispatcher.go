package devhost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/morezero/widget-bridge/pkg/commsutil"
	"github.com/morezero/widget-bridge/pkg/manifest"
	"github.com/morezero/widget-bridge/pkg/metrics"
	"github.com/morezero/widget-bridge/pkg/protocol"
)

const logPrefix = "devhost:dispatch"

// methodHandler serves one module.method. The result is encoded as the
// RESPONSE payload; nil means no payload.
type methodHandler func(ctx context.Context, widgetID string, args []json.RawMessage) (interface{}, error)

// WidgetEvent is an EVENT a widget sent to the host.
type WidgetEvent struct {
	Name     string          `json:"name"`
	WidgetID string          `json:"widgetId,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	At       time.Time       `json:"at"`
}

// DispatcherParams configures NewDispatcher. Nil fields use defaults.
type DispatcherParams struct {
	Manifest *manifest.Resolved
	Store    Store
	Contexts *ContextStore
	Notifier Notifier
	Confirm  ConfirmPolicy
	Metrics  *metrics.Host
	// EventLimit caps the number of widget events kept for inspection.
	EventLimit int
}

// Dispatcher turns widget envelopes into host replies.
type Dispatcher struct {
	manifest *manifest.Resolved
	store    Store
	contexts *ContextStore
	notifier Notifier
	confirm  ConfirmPolicy
	metrics  *metrics.Host
	handlers map[string]methodHandler

	mu         sync.Mutex
	events     []WidgetEvent
	eventLimit int
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	d := &Dispatcher{
		manifest:   params.Manifest,
		store:      params.Store,
		contexts:   params.Contexts,
		notifier:   params.Notifier,
		confirm:    params.Confirm,
		metrics:    params.Metrics,
		eventLimit: params.EventLimit,
	}
	if d.manifest == nil {
		resolved, err := manifest.Resolve(manifest.Default())
		if err != nil {
			return nil, fmt.Errorf("%s - default manifest: %w", logPrefix, err)
		}
		d.manifest = resolved
	}
	if d.store == nil {
		d.store = NewMemoryStore()
	}
	if d.contexts == nil {
		d.contexts = NewContextStore(nil, DefaultContext())
	}
	if d.notifier == nil {
		d.notifier = LogNotifier{}
	}
	if d.confirm == nil {
		d.confirm = FixedConfirm(true)
	}
	if d.eventLimit <= 0 {
		d.eventLimit = 100
	}
	d.handlers = d.routes()
	return d, nil
}

// Manifest returns the manifest the dispatcher checks calls against.
func (d *Dispatcher) Manifest() *manifest.Resolved { return d.manifest }

// Store returns the backing store.
func (d *Dispatcher) Store() Store { return d.store }

// Contexts returns the context store.
func (d *Dispatcher) Contexts() *ContextStore { return d.contexts }

// Events returns the widget events received so far, oldest first.
func (d *Dispatcher) Events() []WidgetEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]WidgetEvent, len(d.events))
	copy(out, d.events)
	return out
}

// Dispatch handles one widget envelope. It returns nil when no reply is due:
// for widget events and for envelopes without an id.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *protocol.OutboundMessage) *protocol.InboundMessage {
	start := time.Now()
	slog.Debug(fmt.Sprintf("%s - type=%s id=%s widget=%s", logPrefix, msg.Type, msg.ID, msg.WidgetID))

	if msg.ID == "" {
		slog.Warn(fmt.Sprintf("%s - dropping %s without id", logPrefix, msg.Type))
		d.observe(msg.Type, "dropped", start)
		return nil
	}

	var (
		result interface{}
		err    error
	)
	switch msg.Type {
	case protocol.TypeGetContext:
		result, err = d.handleGetContext(msg)
	case protocol.TypeInvokeMethod:
		result, err = d.handleInvoke(ctx, msg)
	case protocol.TypeEvent:
		d.handleEvent(msg)
		d.observe(msg.Type, "ok", start)
		return nil
	default:
		err = NewHostError(CodeUnsupportedType, "Unsupported message type: %s", msg.Type)
	}

	if err != nil {
		d.observe(msg.Type, "error", start)
		return errorReply(msg, err)
	}

	payload, err := commsutil.RawPayload(result)
	if err != nil {
		d.observe(msg.Type, "error", start)
		return errorReply(msg, NewHostError(CodeInternal, "Failed to encode result: %v", err))
	}
	d.observe(msg.Type, "ok", start)
	return protocol.Response(msg.ID, msg.WidgetID, payload)
}

func (d *Dispatcher) observe(typ protocol.MessageType, status string, start time.Time) {
	if d.metrics != nil {
		d.metrics.ObserveDispatch(string(typ), status, time.Since(start))
	}
}

// getContextRequest is the optional GET_CONTEXT payload.
type getContextRequest struct {
	SDKVersion string `json:"sdkVersion,omitempty"`
}

func (d *Dispatcher) handleGetContext(msg *protocol.OutboundMessage) (interface{}, error) {
	if !commsutil.IsAbsent(msg.Payload) {
		var req getContextRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return nil, NewHostError(CodeInvalidArgument, "Failed to parse GET_CONTEXT payload")
		}
		if req.SDKVersion != "" {
			if err := d.manifest.CheckSDK(req.SDKVersion); err != nil {
				return nil, NewHostError(CodeUnsupportedSDK, "Unsupported SDK version %s (host accepts %s)", req.SDKVersion, d.manifest.SDKRange())
			}
		}
	}
	return d.contexts.Get(msg.WidgetID), nil
}

func (d *Dispatcher) handleInvoke(ctx context.Context, msg *protocol.OutboundMessage) (interface{}, error) {
	var p protocol.InvokeMethodPayload
	if commsutil.IsAbsent(msg.Payload) {
		return nil, NewHostError(CodeInvalidArgument, "INVOKE_METHOD requires a payload")
	}
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return nil, NewHostError(CodeInvalidArgument, "Failed to parse INVOKE_METHOD payload")
	}

	name := p.Module + "." + p.Method
	if !d.manifest.Has(p.Module, p.Method) {
		return nil, NewHostError(CodeMethodNotFound, "Unknown method: %s", name)
	}
	h, ok := d.handlers[d.manifest.ResolveAlias(p.Module)+"."+p.Method]
	if !ok {
		return nil, NewHostError(CodeMethodNotFound, "Method not implemented by this host: %s", name)
	}
	return h(ctx, msg.WidgetID, p.Args)
}

func (d *Dispatcher) handleEvent(msg *protocol.OutboundMessage) {
	ev := WidgetEvent{Name: msg.ID, WidgetID: msg.WidgetID, Payload: msg.Payload, At: time.Now().UTC()}
	slog.Info(fmt.Sprintf("%s - widget event %q from %q", logPrefix, ev.Name, ev.WidgetID))

	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
	if len(d.events) > d.eventLimit {
		d.events = d.events[len(d.events)-d.eventLimit:]
	}
}

// --- helpers ---

func errorReply(msg *protocol.OutboundMessage, err error) *protocol.InboundMessage {
	var hostErr *HostError
	if errors.As(err, &hostErr) {
		slog.Warn(fmt.Sprintf("%s - %s id=%s: %s", logPrefix, hostErr.Code, msg.ID, hostErr.Message))
		return protocol.Error(msg.ID, msg.WidgetID, hostErr.Message)
	}
	slog.Error(fmt.Sprintf("%s - id=%s: %v", logPrefix, msg.ID, err))
	return protocol.Error(msg.ID, msg.WidgetID, err.Error())
}

func argString(args []json.RawMessage, i int, name string) (string, error) {
	if i >= len(args) {
		return "", NewHostError(CodeInvalidArgument, "Missing argument %q", name)
	}
	var s string
	if err := json.Unmarshal(args[i], &s); err != nil {
		return "", NewHostError(CodeInvalidArgument, "Argument %q must be a string", name)
	}
	return s, nil
}

func argRaw(args []json.RawMessage, i int) json.RawMessage {
	if i >= len(args) || commsutil.IsAbsent(args[i]) {
		return json.RawMessage("null")
	}
	return args[i]
}
