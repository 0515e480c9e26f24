package bridge

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/morezero/widget-bridge/pkg/transport"
)

// DefaultKey names the process-wide bridge. Every widget in the process
// shares the bridge stored under it.
const DefaultKey = "morezero.widget-bridge/v1"

var (
	processMu sync.Mutex
	process   = map[string]*Bridge{}
)

// Acquire returns the process-wide bridge, creating and attaching it over
// channel on first use. Later calls ignore channel and opts.
func Acquire(channel transport.Channel, opts ...Option) (*Bridge, error) {
	return AcquireKey(DefaultKey, channel, opts...)
}

// AcquireKey is Acquire for an explicit registry key.
func AcquireKey(key string, channel transport.Channel, opts ...Option) (*Bridge, error) {
	processMu.Lock()
	defer processMu.Unlock()

	if b, ok := process[key]; ok {
		return b, nil
	}
	if channel == nil {
		return nil, fmt.Errorf("%s - no bridge under %q and no channel given", logPrefix, key)
	}

	b := New(channel, opts...)
	if err := b.Attach(); err != nil {
		return nil, err
	}
	process[key] = b
	slog.Info(fmt.Sprintf("%s - process bridge created under %q", logPrefix, key))
	return b, nil
}

// Current returns the default process-wide bridge, or nil if none exists.
func Current() *Bridge {
	return Lookup(DefaultKey)
}

// Lookup returns the bridge stored under key, or nil.
func Lookup(key string) *Bridge {
	processMu.Lock()
	defer processMu.Unlock()
	return process[key]
}

// Release removes the bridge stored under key and closes its channel.
func Release(key string) error {
	processMu.Lock()
	b, ok := process[key]
	delete(process, key)
	processMu.Unlock()

	if !ok {
		return nil
	}
	return b.Close()
}
