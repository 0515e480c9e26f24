// Package invoke builds dotted capability paths and turns them into
// INVOKE_METHOD requests.
//
//	p := invoke.Root(b, "storage", "w1").Descend("local").Descend("getItem")
//	v, err := invoke.Call[string](ctx, p, "key1")
//
// The path is split at its last dot: everything before is the module, the
// last segment is the method.
package invoke

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/morezero/widget-bridge/pkg/commsutil"
	"github.com/morezero/widget-bridge/pkg/correlator"
	"github.com/morezero/widget-bridge/pkg/protocol"
)

const logPrefix = "invoke:invoke"

// ErrInvalidInvocation is returned when a path has no method segment.
var ErrInvalidInvocation = errors.New("cannot invoke root module directly")

// Invoker sends a request to the host. *bridge.Bridge implements it.
type Invoker interface {
	Request(ctx context.Context, typ protocol.MessageType, widgetID string, payload interface{}) (*correlator.Future, error)
}

// Path is an immutable dotted capability path bound to an invoker and scope.
type Path struct {
	invoker Invoker
	path    string
	scope   string
}

// Root starts a path at module. scope is the widget id sent with every
// invocation; empty means unscoped.
func Root(invoker Invoker, module, scope string) Path {
	return Path{invoker: invoker, path: module, scope: scope}
}

// Descend returns a new path one segment deeper. p is unchanged.
func (p Path) Descend(name string) Path {
	p.path = p.path + "." + name
	return p
}

// String returns the dotted path.
func (p Path) String() string {
	return p.path
}

// Scope returns the widget id bound to the path.
func (p Path) Scope() string {
	return p.scope
}

// Split separates path into module and method at the last dot. ok is false
// when path has no dot.
func Split(path string) (module, method string, ok bool) {
	i := strings.LastIndex(path, ".")
	if i < 0 {
		return "", "", false
	}
	return path[:i], path[i+1:], true
}

// Invoke sends INVOKE_METHOD for the path with args passed through verbatim.
func (p Path) Invoke(ctx context.Context, args ...interface{}) (*correlator.Future, error) {
	module, method, ok := Split(p.path)
	if !ok {
		return nil, fmt.Errorf("%s - %q: %w", logPrefix, p.path, ErrInvalidInvocation)
	}
	if p.invoker == nil {
		return nil, fmt.Errorf("%s - %q: no invoker bound", logPrefix, p.path)
	}

	raw := make([]json.RawMessage, 0, len(args))
	for i, a := range args {
		r, err := commsutil.RawPayload(a)
		if err != nil {
			return nil, fmt.Errorf("%s - %s arg %d: %w", logPrefix, p.path, i, err)
		}
		if r == nil {
			r = json.RawMessage("null")
		}
		raw = append(raw, r)
	}

	payload := protocol.InvokeMethodPayload{Module: module, Method: method, Args: raw}
	return p.invoker.Request(ctx, protocol.TypeInvokeMethod, p.scope, payload)
}

// Call invokes p and decodes the reply into T.
func Call[T any](ctx context.Context, p Path, args ...interface{}) (T, error) {
	var out T
	f, err := p.Invoke(ctx, args...)
	if err != nil {
		return out, err
	}
	if err := f.Decode(ctx, &out); err != nil {
		return out, err
	}
	return out, nil
}

// CallVoid invokes p and waits for the reply, discarding its payload.
func CallVoid(ctx context.Context, p Path, args ...interface{}) error {
	f, err := p.Invoke(ctx, args...)
	if err != nil {
		return err
	}
	_, err = f.Await(ctx)
	return err
}
