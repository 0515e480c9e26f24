package events

import (
	"context"
	"encoding/json"
)

// EventPublisher pushes events from the host to widgets. An empty widgetID
// broadcasts.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event, widgetID string, payload json.RawMessage) error
}

// NoOpPublisher is an EventPublisher that does nothing (for hosts without push).
type NoOpPublisher struct{}

// PublishEvent is a no-op.
func (p *NoOpPublisher) PublishEvent(_ context.Context, _, _ string, _ json.RawMessage) error {
	return nil
}

// CallbackPublisher is an EventPublisher that calls a callback function.
type CallbackPublisher struct {
	callback func(ctx context.Context, event, widgetID string, payload json.RawMessage) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event, widgetID string, payload json.RawMessage) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// PublishEvent calls the callback.
func (p *CallbackPublisher) PublishEvent(ctx context.Context, event, widgetID string, payload json.RawMessage) error {
	return p.callback(ctx, event, widgetID, payload)
}

// MultiPublisher fans an event out to several publishers and returns the
// first error after trying all of them.
type MultiPublisher []EventPublisher

// PublishEvent publishes to every member.
func (m MultiPublisher) PublishEvent(ctx context.Context, event, widgetID string, payload json.RawMessage) error {
	var first error
	for _, p := range m {
		if err := p.PublishEvent(ctx, event, widgetID, payload); err != nil && first == nil {
			first = err
		}
	}
	return first
}
