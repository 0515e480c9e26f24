// Package events routes named, optionally widget-scoped events to subscribers
// and publishes them from the host side.
package events

import "encoding/json"

// Well-known event names.
const (
	// ContextUpdate carries a fresh widget context snapshot from the host.
	ContextUpdate = "context-update"
)

// Callback receives the payload of a dispatched event.
type Callback func(payload json.RawMessage)

// Observer is notified about dispatch outcomes.
type Observer interface {
	EventDispatched(event string, delivered int)
	SubscriberFailed(event string)
}
