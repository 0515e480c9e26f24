package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/widget-bridge/pkg/commsutil"
	"github.com/morezero/widget-bridge/pkg/protocol"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// CommsPublisherOpts configures CommsPublisher. Nil or zero values use defaults.
type CommsPublisherOpts struct {
	// EventSubject overrides the events subject (e.g. from BRIDGE_EVENT_SUBJECT).
	EventSubject string
}

// CommsPublisher publishes EVENT envelopes to COMMS subjects.
type CommsPublisher struct {
	nc           *comms.Conn
	eventSubject string
}

// NewCommsPublisher creates a new CommsPublisher. Pass nil for opts to use defaults.
func NewCommsPublisher(nc *comms.Conn, opts *CommsPublisherOpts) *CommsPublisher {
	subject := commsutil.SubjectEvents
	if opts != nil && opts.EventSubject != "" {
		subject = opts.EventSubject
	}
	return &CommsPublisher{nc: nc, eventSubject: subject}
}

// PublishEvent publishes an EVENT envelope. Broadcasts go to the events
// subject; scoped events go to the widget's granular subject.
func (p *CommsPublisher) PublishEvent(_ context.Context, event, widgetID string, payload json.RawMessage) error {
	data, err := commsutil.EncodePayload(protocol.Event(event, widgetID, payload))
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}

	subject := p.eventSubject
	if widgetID != "" {
		subject = commsutil.BuildWidgetEventSubject(p.eventSubject, widgetID)
	}
	if err := p.nc.Publish(subject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, subject, err))
		return err
	}

	slog.Debug(fmt.Sprintf("%s - Published %s to %s", commsPublisherLogPrefix, event, subject))
	return nil
}
