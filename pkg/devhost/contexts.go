package devhost

import (
	"sort"
	"sync"

	"github.com/morezero/widget-bridge/pkg/widget"
)

// ContextStore holds the context the host reports for each widget.
type ContextStore struct {
	mu       sync.RWMutex
	contexts map[string]widget.Context
	fallback widget.Context
}

// NewContextStore creates a store seeded with initial. Widgets without an
// entry get fallback with their id filled in.
func NewContextStore(initial map[string]widget.Context, fallback widget.Context) *ContextStore {
	s := &ContextStore{contexts: make(map[string]widget.Context, len(initial)), fallback: fallback}
	for id, c := range initial {
		c.WidgetID = id
		s.contexts[id] = c.Clone()
	}
	return s
}

// DefaultContext is the fallback used by the dev host.
func DefaultContext() widget.Context {
	return widget.Context{
		Theme:      widget.ThemeLight,
		Dimensions: widget.Dimensions{Width: 400, Height: 300},
	}
}

// Get returns the context for widgetID.
func (s *ContextStore) Get(widgetID string) widget.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.contexts[widgetID]; ok {
		return c.Clone()
	}
	c := s.fallback.Clone()
	c.WidgetID = widgetID
	return c
}

// Set stores c under its widget id.
func (s *ContextStore) Set(c widget.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[c.WidgetID] = c.Clone()
}

// IDs lists the widgets with a stored context, sorted.
func (s *ContextStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.contexts))
	for id := range s.contexts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
