// Package capabilities provides typed facades over the host's capability
// modules. The facades only shape calls; the host decides whether a method
// exists and what its arguments mean, and reports mismatches as ERROR replies.
package capabilities

import (
	"github.com/morezero/widget-bridge/pkg/bridge"
	"github.com/morezero/widget-bridge/pkg/invoke"
)

const logPrefix = "capabilities:facades"

// Module roots.
const (
	ModuleStorage = "storage"
	ModuleUI      = "ui"
	ModuleIO      = "io"
)

// Facades groups the three modules bound to one scope.
type Facades struct {
	Storage Storage
	UI      UI
	IO      IO
}

// Bind roots every facade at invoker, tagging calls with widgetID.
func Bind(invoker invoke.Invoker, widgetID string) *Facades {
	return &Facades{
		Storage: NewStorage(invoker, widgetID),
		UI:      NewUI(invoker, widgetID),
		IO:      NewIO(invoker, widgetID),
	}
}

// Default binds unscoped facades to the process-wide bridge. It returns nil
// if no bridge has been acquired yet.
func Default() *Facades {
	b := bridge.Current()
	if b == nil {
		return nil
	}
	return Bind(b, "")
}
