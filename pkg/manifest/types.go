// Package manifest describes the capability modules a host serves: which
// module.method pairs exist, the widget SDK range it accepts and optional
// initial widget contexts.
package manifest

import (
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/morezero/widget-bridge/pkg/widget"
)

// MethodMetadata documents one method.
type MethodMetadata struct {
	Description string   `json:"description,omitempty"`
	Args        []string `json:"args,omitempty"`
	Returns     string   `json:"returns,omitempty"`
}

// Module is a capability module entry, keyed by its dotted name
// (e.g. "storage.local").
type Module struct {
	Description     string                    `json:"description,omitempty"`
	Methods         []string                  `json:"methods"`
	MethodsMetadata map[string]MethodMetadata `json:"methodsMetadata,omitempty"`
}

// Manifest is the root document.
type Manifest struct {
	Name        string                    `json:"name"`
	Version     string                    `json:"version"`
	Description string                    `json:"description,omitempty"`
	SDKRange    string                    `json:"sdkRange"`
	Modules     map[string]Module         `json:"modules"`
	Aliases     map[string]string         `json:"aliases,omitempty"`
	Widgets     map[string]widget.Context `json:"widgets,omitempty"`
}

// Resolved is a validated Manifest prepared for lookups.
type Resolved struct {
	name     string
	version  string
	sdk      *semver.Constraints
	sdkRange string
	methods  map[string]map[string]struct{}
	modules  map[string]*Module
	aliases  map[string]string
	widgets  map[string]widget.Context
}

// Resolve validates m and builds its lookup tables.
func Resolve(m *Manifest) (*Resolved, error) {
	rangeStr := m.SDKRange
	if rangeStr == "" {
		rangeStr = DefaultSDKRange
	}
	c, err := semver.NewConstraint(rangeStr)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid sdkRange %q: %w", logPrefix, rangeStr, err)
	}

	r := &Resolved{
		name:     m.Name,
		version:  m.Version,
		sdk:      c,
		sdkRange: rangeStr,
		methods:  make(map[string]map[string]struct{}, len(m.Modules)),
		modules:  make(map[string]*Module, len(m.Modules)),
		aliases:  make(map[string]string, len(m.Aliases)),
		widgets:  make(map[string]widget.Context, len(m.Widgets)),
	}
	for name, mod := range m.Modules {
		mod := mod
		r.modules[name] = &mod
		set := make(map[string]struct{}, len(mod.Methods))
		for _, method := range mod.Methods {
			set[method] = struct{}{}
		}
		r.methods[name] = set
	}
	for alias, target := range m.Aliases {
		if _, ok := r.modules[target]; !ok {
			return nil, fmt.Errorf("%s - alias %q points at unknown module %q", logPrefix, alias, target)
		}
		r.aliases[alias] = target
	}
	for id, ctx := range m.Widgets {
		if ctx.WidgetID == "" {
			ctx.WidgetID = id
		}
		r.widgets[id] = ctx
	}
	return r, nil
}

// Name returns the manifest name.
func (r *Resolved) Name() string { return r.name }

// Version returns the manifest version.
func (r *Resolved) Version() string { return r.version }

// SDKRange returns the accepted widget SDK constraint.
func (r *Resolved) SDKRange() string { return r.sdkRange }

// ResolveAlias maps an alias to its module name. Unknown names are returned
// unchanged.
func (r *Resolved) ResolveAlias(module string) string {
	if target, ok := r.aliases[module]; ok {
		return target
	}
	return module
}

// Module returns the named module, following aliases.
func (r *Resolved) Module(name string) *Module {
	return r.modules[r.ResolveAlias(name)]
}

// ModuleNames lists the served modules, sorted.
func (r *Resolved) ModuleNames() []string {
	out := make([]string, 0, len(r.modules))
	for name := range r.modules {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Has reports whether module.method is served.
func (r *Resolved) Has(module, method string) bool {
	set, ok := r.methods[r.ResolveAlias(module)]
	if !ok {
		return false
	}
	_, ok = set[method]
	return ok
}

// Methods lists every served method as "module.method", sorted.
func (r *Resolved) Methods() []string {
	out := make([]string, 0, len(r.methods)*4)
	for module, set := range r.methods {
		for method := range set {
			out = append(out, module+"."+method)
		}
	}
	sort.Strings(out)
	return out
}

// Widget returns the configured initial context for widgetID.
func (r *Resolved) Widget(widgetID string) (widget.Context, bool) {
	ctx, ok := r.widgets[widgetID]
	return ctx.Clone(), ok
}

// WidgetIDs lists the widgets with a configured context, sorted.
func (r *Resolved) WidgetIDs() []string {
	out := make([]string, 0, len(r.widgets))
	for id := range r.widgets {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// CheckSDK reports whether a widget built with sdkVersion can talk to this
// host.
func (r *Resolved) CheckSDK(sdkVersion string) error {
	v, err := semver.NewVersion(sdkVersion)
	if err != nil {
		return fmt.Errorf("%s - invalid sdk version %q: %w", logPrefix, sdkVersion, err)
	}
	if ok, errs := r.sdk.Validate(v); !ok {
		if len(errs) > 0 {
			return fmt.Errorf("%s - sdk %s not supported: %w", logPrefix, sdkVersion, errs[0])
		}
		return fmt.Errorf("%s - sdk %s not supported by %s", logPrefix, sdkVersion, r.sdkRange)
	}
	return nil
}
