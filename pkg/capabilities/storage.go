package capabilities

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/morezero/widget-bridge/pkg/commsutil"
	"github.com/morezero/widget-bridge/pkg/invoke"
)

// ItemGetter is anything that can fetch a stored item by key.
type ItemGetter interface {
	GetItem(ctx context.Context, key string) (json.RawMessage, error)
}

// StorageArea is one of the host's key/value areas (storage.local,
// storage.session).
type StorageArea struct {
	path invoke.Path
}

// GetItem returns the stored value, or nil when the key is unset.
func (a StorageArea) GetItem(ctx context.Context, key string) (json.RawMessage, error) {
	return getItem(ctx, a.path, key)
}

// SetItem stores value under key.
func (a StorageArea) SetItem(ctx context.Context, key string, value interface{}) error {
	return invoke.CallVoid(ctx, a.path.Descend("setItem"), key, value)
}

// RemoveItem deletes key.
func (a StorageArea) RemoveItem(ctx context.Context, key string) error {
	return invoke.CallVoid(ctx, a.path.Descend("removeItem"), key)
}

// Clear deletes every key in the area.
func (a StorageArea) Clear(ctx context.Context) error {
	return invoke.CallVoid(ctx, a.path.Descend("clear"))
}

// Storage is the "storage" module. The root GetItem and SetItem are the
// host's legacy shortcuts.
type Storage struct {
	root    invoke.Path
	Local   StorageArea
	Session StorageArea
}

// NewStorage roots a Storage facade at "storage".
func NewStorage(invoker invoke.Invoker, scope string) Storage {
	root := invoke.Root(invoker, ModuleStorage, scope)
	return Storage{
		root:    root,
		Local:   StorageArea{path: root.Descend("local")},
		Session: StorageArea{path: root.Descend("session")},
	}
}

// GetItem calls storage.getItem.
func (s Storage) GetItem(ctx context.Context, key string) (json.RawMessage, error) {
	return getItem(ctx, s.root, key)
}

// SetItem calls storage.setItem.
func (s Storage) SetItem(ctx context.Context, key string, value interface{}) error {
	return invoke.CallVoid(ctx, s.root.Descend("setItem"), key, value)
}

// GetItemAs fetches key from g and decodes it into T. found is false when the
// key is unset.
func GetItemAs[T any](ctx context.Context, g ItemGetter, key string) (value T, found bool, err error) {
	raw, err := g.GetItem(ctx, key)
	if err != nil || raw == nil {
		return value, false, err
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return value, false, fmt.Errorf("%s - decode %q: %w", logPrefix, key, err)
	}
	return value, true, nil
}

func getItem(ctx context.Context, p invoke.Path, key string) (json.RawMessage, error) {
	raw, err := invoke.Call[json.RawMessage](ctx, p.Descend("getItem"), key)
	if err != nil {
		return nil, err
	}
	if commsutil.IsAbsent(raw) {
		return nil, nil
	}
	return raw, nil
}
