package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

const logPrefix = "events:registry"

type subscription struct {
	callback Callback
	scope    string
	active   atomic.Bool
}

// matches reports whether an event tagged with scope reaches this
// subscription. Filtering only applies when both sides declare a scope.
func (s *subscription) matches(scope string) bool {
	return s.scope == "" || scope == "" || s.scope == scope
}

// Registry maps event names to ordered subscriptions.
type Registry struct {
	mu       sync.Mutex
	subs     map[string][]*subscription
	observer Observer
}

// NewRegistry creates an empty Registry. observer may be nil.
func NewRegistry(observer Observer) *Registry {
	return &Registry{
		subs:     make(map[string][]*subscription),
		observer: observer,
	}
}

// Subscribe registers cb for event. A non-empty scope restricts delivery to
// events carrying the same scope tag or none. The returned func removes
// exactly this subscription; calling it again does nothing.
func (r *Registry) Subscribe(event string, cb Callback, scope string) (unsubscribe func()) {
	sub := &subscription{callback: cb, scope: scope}
	sub.active.Store(true)

	r.mu.Lock()
	r.subs[event] = append(r.subs[event], sub)
	r.mu.Unlock()

	slog.Debug(fmt.Sprintf("%s - subscribed event=%s scope=%q", logPrefix, event, scope))

	return func() {
		if !sub.active.CompareAndSwap(true, false) {
			return
		}
		r.remove(event, sub)
	}
}

func (r *Registry) remove(event string, sub *subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.subs[event]
	for i, s := range list {
		if s == sub {
			next := make([]*subscription, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			if len(next) == 0 {
				delete(r.subs, event)
			} else {
				r.subs[event] = next
			}
			return
		}
	}
}

// Dispatch delivers payload to every matching subscriber of event in
// registration order and returns how many callbacks completed. A panicking callback
// is logged and skipped. A subscription removed during dispatch is not called
// afterwards.
func (r *Registry) Dispatch(event string, payload json.RawMessage, scope string) int {
	r.mu.Lock()
	snapshot := r.subs[event]
	r.mu.Unlock()

	delivered := 0
	for _, sub := range snapshot {
		if !sub.active.Load() || !sub.matches(scope) {
			continue
		}
		if r.invoke(event, sub, payload) {
			delivered++
		}
	}

	if r.observer != nil {
		r.observer.EventDispatched(event, delivered)
	}
	return delivered
}

func (r *Registry) invoke(event string, sub *subscription, payload json.RawMessage) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
			slog.Error(fmt.Sprintf("%s - subscriber for %s panicked: %v", logPrefix, event, rec))
			if r.observer != nil {
				r.observer.SubscriberFailed(event)
			}
		}
	}()
	sub.callback(payload)
	return true
}

// Has reports whether event has at least one subscriber.
func (r *Registry) Has(event string) bool {
	return r.Count(event) > 0
}

// Count returns the number of subscribers for event.
func (r *Registry) Count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[event])
}
