package capabilities

import (
	"context"

	"github.com/morezero/widget-bridge/pkg/invoke"
)

// Toast variants.
type Toast struct {
	path invoke.Path
}

// Success shows a success toast.
func (t Toast) Success(ctx context.Context, message string) error {
	return invoke.CallVoid(ctx, t.path.Descend("success"), message)
}

// Error shows a error toast.
func (t Toast) Error(ctx context.Context, message string) error {
	return invoke.CallVoid(ctx, t.path.Descend("error"), message)
}

// Info shows a info toast.
func (t Toast) Info(ctx context.Context, message string) error {
	return invoke.CallVoid(ctx, t.path.Descend("info"), message)
}

// Warning shows a warning toast.
func (t Toast) Warning(ctx context.Context, message string) error {
	return invoke.CallVoid(ctx, t.path.Descend("warning"), message)
}

// UI is the "ui" module.
type UI struct {
	root  invoke.Path
	Toast Toast
}

// NewUI roots a UI facade at "ui".
func NewUI(invoker invoke.Invoker, scope string) UI {
	root := invoke.Root(invoker, ModuleUI, scope)
	return UI{root: root, Toast: Toast{path: root.Descend("toast")}}
}

// Alert shows a message and waits until the host acknowledges it.
func (u UI) Alert(ctx context.Context, message string) error {
	return invoke.CallVoid(ctx, u.root.Descend("alert"), message)
}

// Confirm asks the user a yes/no question.
func (u UI) Confirm(ctx context.Context, message string) (bool, error) {
	return invoke.Call[bool](ctx, u.root.Descend("confirm"), message)
}
