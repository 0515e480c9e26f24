package widget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"sync"

	"github.com/morezero/widget-bridge/pkg/capabilities"
	"github.com/morezero/widget-bridge/pkg/events"
	"github.com/morezero/widget-bridge/pkg/invoke"
	"github.com/morezero/widget-bridge/pkg/protocol"
)

const logPrefix = "widget:scope"

// Host is the bridge surface a Scope needs. *bridge.Bridge implements it.
type Host interface {
	invoke.Invoker
	On(event string, cb events.Callback, scope string) (unsubscribe func())
}

// Option configures Mount.
type Option func(*Scope)

// WithStrategy sets how context-update events are applied.
func WithStrategy(s Strategy) Option {
	return func(sc *Scope) {
		if s != "" {
			sc.strategy = s
		}
	}
}

type listener struct {
	id int
	fn func(Context)
}

// Scope is one mounted widget.
type Scope struct {
	host     Host
	widgetID string
	strategy Strategy
	facades  *capabilities.Facades

	mu         sync.RWMutex
	current    Context
	config     map[string]interface{}
	inputs     map[string]interface{}
	dimensions Dimensions
	nextID     int
	listeners  []listener
	unsubs     []func()
	unmounted  bool
}

// Mount binds facades to initial.WidgetID and, when the id is non-empty,
// follows context-update events for it.
func Mount(host Host, initial Context, opts ...Option) (*Scope, error) {
	if host == nil {
		return nil, errors.New(logPrefix + " - mount requires a host")
	}

	s := &Scope{
		host:      host,
		widgetID:  initial.WidgetID,
		strategy:  StrategyReplace,
		facades:   capabilities.Bind(host, initial.WidgetID),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.set(initial.Clone())

	if s.widgetID != "" {
		s.unsubs = append(s.unsubs, host.On(events.ContextUpdate, s.onUpdate, s.widgetID))
	}

	slog.Debug(fmt.Sprintf("%s - mounted widget=%q strategy=%s", logPrefix, s.widgetID, s.strategy))
	return s, nil
}

// WidgetID returns the id the scope is bound to.
func (s *Scope) WidgetID() string { return s.widgetID }

// Facades returns the capability facades bound to the widget id.
func (s *Scope) Facades() *capabilities.Facades { return s.facades }

// Storage returns the storage facade bound to the widget.
func (s *Scope) Storage() capabilities.Storage { return s.facades.Storage }

// UI returns the UI facade bound to the widget.
func (s *Scope) UI() capabilities.UI { return s.facades.UI }

// IO returns the IO facade bound to the widget.
func (s *Scope) IO() capabilities.IO { return s.facades.IO }

// Context returns a copy of the current context.
func (s *Scope) Context() Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Dimensions returns the current dimensions.
func (s *Scope) Dimensions() Dimensions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimensions
}

// Config returns the current configuration. The map keeps its identity until
// its content changes and must not be modified.
func (s *Scope) Config() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// Inputs returns the current inputs, with the same identity rule as Config.
func (s *Scope) Inputs() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inputs
}

// OnChange registers fn to run after every context change.
func (s *Scope) OnChange(fn func(Context)) (remove func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// Refresh fetches the context from the host and applies it.
func (s *Scope) Refresh(ctx context.Context) error {
	f, err := s.host.Request(ctx, protocol.TypeGetContext, s.widgetID, nil)
	if err != nil {
		return err
	}
	raw, err := f.Await(ctx)
	if err != nil {
		return fmt.Errorf("%s - refresh %q: %w", logPrefix, s.widgetID, err)
	}
	return s.update(raw)
}

// Unmount stops following context updates and drops all listeners. Calling
// it again does nothing.
func (s *Scope) Unmount() {
	s.mu.Lock()
	if s.unmounted {
		s.mu.Unlock()
		return
	}
	s.unmounted = true
	unsubs := s.unsubs
	s.unsubs = nil
	s.listeners = nil
	s.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	slog.Debug(fmt.Sprintf("%s - unmounted widget=%q", logPrefix, s.widgetID))
}

func (s *Scope) onUpdate(payload json.RawMessage) {
	if err := s.update(payload); err != nil {
		slog.Warn(fmt.Sprintf("%s - ignoring context update for %q: %v", logPrefix, s.widgetID, err))
	}
}

func (s *Scope) update(payload json.RawMessage) error {
	s.mu.Lock()
	if s.unmounted {
		s.mu.Unlock()
		return nil
	}
	next, err := s.strategy.apply(s.current, payload)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if next.WidgetID == "" {
		next.WidgetID = s.widgetID
	}
	s.set(next)
	snapshot := s.current.Clone()
	listeners := s.listeners
	s.mu.Unlock()

	for _, l := range listeners {
		l.fn(snapshot)
	}
	return nil
}

// set installs next, reusing the previous derived values whose content did
// not change. Callers hold mu or own s exclusively.
func (s *Scope) set(next Context) {
	s.current = next
	if s.config == nil || !reflect.DeepEqual(s.config, next.Config) {
		s.config = maps.Clone(next.Config)
	}
	if s.inputs == nil || !reflect.DeepEqual(s.inputs, next.Inputs) {
		s.inputs = maps.Clone(next.Inputs)
	}
	s.dimensions = next.Dimensions
}
