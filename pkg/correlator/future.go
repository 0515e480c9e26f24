package correlator

import (
	"context"
	"encoding/json"
	"fmt"
)

// Future is the caller's handle on a pending request. It settles once.
type Future struct {
	id      string
	done    chan struct{}
	payload json.RawMessage
	err     error
}

func newFuture(id string) *Future {
	return &Future{id: id, done: make(chan struct{})}
}

// ID returns the correlation id of the request.
func (f *Future) ID() string { return f.id }

// Done is closed when the request settles.
func (f *Future) Done() <-chan struct{} { return f.done }

// Await blocks until the request settles or ctx ends. Giving up on ctx does
// not cancel the request; it stays pending until a reply or the timeout.
func (f *Future) Await(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-f.done:
		return f.payload, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Decode awaits the result and unmarshals it into out. An absent payload
// leaves out untouched.
func (f *Future) Decode(ctx context.Context, out interface{}) error {
	payload, err := f.Await(ctx)
	if err != nil {
		return err
	}
	if len(payload) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%s - failed to decode result for %s: %w", logPrefix, f.id, err)
	}
	return nil
}

// settle must be called at most once, by the Correlator, after the entry has
// been removed from the pending map.
func (f *Future) settle(payload json.RawMessage, err error) {
	f.payload = payload
	f.err = err
	close(f.done)
}
