package capabilities

import (
	"context"

	"github.com/morezero/widget-bridge/pkg/invoke"
)

// IO is the "io" module.
type IO struct {
	root invoke.Path
}

// NewIO roots an IO facade at "io".
func NewIO(invoker invoke.Invoker, scope string) IO {
	return IO{root: invoke.Root(invoker, ModuleIO, scope)}
}

// SetOutput publishes the widget's output value to the host.
func (o IO) SetOutput(ctx context.Context, data interface{}) error {
	return invoke.CallVoid(ctx, o.root.Descend("setOutput"), data)
}
