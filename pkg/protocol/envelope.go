// Package protocol defines the JSON envelopes exchanged between widgets and the host.
package protocol

import (
	"encoding/json"
	"fmt"
)

// MessageType is the "type" discriminator of an envelope.
type MessageType string

// Widget → host message types.
const (
	TypeGetContext   MessageType = "GET_CONTEXT"
	TypeInvokeMethod MessageType = "INVOKE_METHOD"
	TypeEvent        MessageType = "EVENT"
)

// Host → widget message types. EVENT is shared with the outbound set.
const (
	TypeResponse MessageType = "RESPONSE"
	TypeError    MessageType = "ERROR"
)

// OutboundMessage is the JSON envelope a widget sends to the host.
type OutboundMessage struct {
	ID       string          `json:"id"`
	WidgetID string          `json:"widgetId,omitempty"`
	Type     MessageType     `json:"type"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// InboundMessage is the JSON envelope the host sends to a widget. For EVENT
// messages ID carries the event name instead of a correlation id.
type InboundMessage struct {
	ID       string          `json:"id"`
	Type     MessageType     `json:"type"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Error    string          `json:"error,omitempty"`
	WidgetID string          `json:"widgetId,omitempty"`
}

// InvokeMethodPayload is the payload of an INVOKE_METHOD message.
type InvokeMethodPayload struct {
	Module string            `json:"module"`
	Method string            `json:"method"`
	Args   []json.RawMessage `json:"args"`
}

// IsOutbound reports whether t is a valid widget → host type.
func (t MessageType) IsOutbound() bool {
	switch t {
	case TypeGetContext, TypeInvokeMethod, TypeEvent:
		return true
	}
	return false
}

// IsInbound reports whether t is a valid host → widget type.
func (t MessageType) IsInbound() bool {
	switch t {
	case TypeResponse, TypeError, TypeEvent:
		return true
	}
	return false
}

// Response builds a RESPONSE envelope for request id.
func Response(id, widgetID string, payload json.RawMessage) *InboundMessage {
	return &InboundMessage{ID: id, Type: TypeResponse, Payload: payload, WidgetID: widgetID}
}

// Error builds an ERROR envelope for request id.
func Error(id, widgetID, message string) *InboundMessage {
	return &InboundMessage{ID: id, Type: TypeError, Error: message, WidgetID: widgetID}
}

// Event builds an EVENT envelope. An empty widgetID broadcasts to every widget.
func Event(name, widgetID string, payload json.RawMessage) *InboundMessage {
	return &InboundMessage{ID: name, Type: TypeEvent, Payload: payload, WidgetID: widgetID}
}

// DecodeInbound parses a host → widget frame.
func DecodeInbound(data []byte) (*InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("protocol:envelope - invalid inbound frame: %w", err)
	}
	return &msg, nil
}

// DecodeOutbound parses a widget → host frame.
func DecodeOutbound(data []byte) (*OutboundMessage, error) {
	var msg OutboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("protocol:envelope - invalid outbound frame: %w", err)
	}
	return &msg, nil
}
