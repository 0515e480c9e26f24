package devhost

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/morezero/widget-bridge/pkg/db"
)

// Storage areas.
const (
	AreaLocal   = "local"
	AreaSession = "session"
)

// Store keeps widget storage and outputs, keyed by widget id.
type Store interface {
	GetItem(ctx context.Context, widgetID, area, key string) (json.RawMessage, error)
	SetItem(ctx context.Context, widgetID, area, key string, value json.RawMessage) error
	RemoveItem(ctx context.Context, widgetID, area, key string) error
	Clear(ctx context.Context, widgetID, area string) error
	Keys(ctx context.Context, widgetID, area string) ([]string, error)
	SetOutput(ctx context.Context, widgetID string, value json.RawMessage) error
	Output(ctx context.Context, widgetID string) (json.RawMessage, error)
	Ping(ctx context.Context) error
}

type itemKey struct {
	widgetID, area, key string
}

// MemoryStore is a Store held in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	items   map[itemKey]json.RawMessage
	outputs map[string]json.RawMessage
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:   make(map[itemKey]json.RawMessage),
		outputs: make(map[string]json.RawMessage),
	}
}

func (s *MemoryStore) GetItem(_ context.Context, widgetID, area, key string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items[itemKey{widgetID, area, key}], nil
}

func (s *MemoryStore) SetItem(_ context.Context, widgetID, area, key string, value json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[itemKey{widgetID, area, key}] = append(json.RawMessage(nil), value...)
	return nil
}

func (s *MemoryStore) RemoveItem(_ context.Context, widgetID, area, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, itemKey{widgetID, area, key})
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, widgetID, area string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.items {
		if k.widgetID == widgetID && k.area == area {
			delete(s.items, k)
		}
	}
	return nil
}

func (s *MemoryStore) Keys(_ context.Context, widgetID, area string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.items {
		if k.widgetID == widgetID && k.area == area {
			keys = append(keys, k.key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) SetOutput(_ context.Context, widgetID string, value json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs[widgetID] = append(json.RawMessage(nil), value...)
	return nil
}

func (s *MemoryStore) Output(_ context.Context, widgetID string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.outputs[widgetID], nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

// PostgresStore is a Store backed by the db package.
type PostgresStore struct {
	repo *db.Repository
}

// NewPostgresStore wraps repo.
func NewPostgresStore(repo *db.Repository) *PostgresStore {
	return &PostgresStore{repo: repo}
}

func (s *PostgresStore) GetItem(ctx context.Context, widgetID, area, key string) (json.RawMessage, error) {
	it, err := s.repo.GetItem(ctx, widgetID, area, key)
	if err != nil || it == nil {
		return nil, err
	}
	return it.Value, nil
}

func (s *PostgresStore) SetItem(ctx context.Context, widgetID, area, key string, value json.RawMessage) error {
	return s.repo.SetItem(ctx, widgetID, area, key, value)
}

func (s *PostgresStore) RemoveItem(ctx context.Context, widgetID, area, key string) error {
	return s.repo.RemoveItem(ctx, widgetID, area, key)
}

func (s *PostgresStore) Clear(ctx context.Context, widgetID, area string) error {
	_, err := s.repo.ClearArea(ctx, widgetID, area)
	return err
}

func (s *PostgresStore) Keys(ctx context.Context, widgetID, area string) ([]string, error) {
	return s.repo.ListKeys(ctx, widgetID, area)
}

func (s *PostgresStore) SetOutput(ctx context.Context, widgetID string, value json.RawMessage) error {
	_, err := s.repo.SetOutput(ctx, widgetID, value)
	return err
}

func (s *PostgresStore) Output(ctx context.Context, widgetID string) (json.RawMessage, error) {
	o, err := s.repo.GetOutput(ctx, widgetID)
	if err != nil || o == nil {
		return nil, err
	}
	return o.Value, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		return fmt.Errorf("devhost:store - postgres ping: %w", err)
	}
	return nil
}
