// Package widget binds a widget id to the bridge: capability facades tagged
// with the id, and a context snapshot kept current by host pushes.
package widget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"

	"github.com/morezero/widget-bridge/pkg/commsutil"
	"github.com/morezero/widget-bridge/pkg/invoke"
	"github.com/morezero/widget-bridge/pkg/protocol"
)

// Theme is the host colour scheme.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// GridSize is the widget's footprint in host grid cells.
type GridSize struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

// Dimensions is the widget's pixel size.
type Dimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// User identifies the signed-in user, when the host shares it.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Context is the state the host shares with a widget.
type Context struct {
	WidgetID   string                 `json:"widgetId,omitempty"`
	Theme      Theme                  `json:"theme,omitempty"`
	GridSize   *GridSize              `json:"gridSize,omitempty"`
	Dimensions Dimensions             `json:"dimensions"`
	Config     map[string]interface{} `json:"config,omitempty"`
	Inputs     map[string]interface{} `json:"inputs,omitempty"`
	User       *User                  `json:"user,omitempty"`
}

// Clone returns a copy whose maps and pointers are not shared with c. Map
// values are copied shallowly.
func (c Context) Clone() Context {
	out := c
	out.Config = maps.Clone(c.Config)
	out.Inputs = maps.Clone(c.Inputs)
	if c.GridSize != nil {
		g := *c.GridSize
		out.GridSize = &g
	}
	if c.User != nil {
		u := *c.User
		out.User = &u
	}
	return out
}

// FetchContext asks the host for the current context of widgetID.
func FetchContext(ctx context.Context, invoker invoke.Invoker, widgetID string) (Context, error) {
	var out Context
	f, err := invoker.Request(ctx, protocol.TypeGetContext, widgetID, nil)
	if err != nil {
		return out, err
	}
	if err := f.Decode(ctx, &out); err != nil {
		return out, fmt.Errorf("%s - fetch context for %q: %w", logPrefix, widgetID, err)
	}
	return out, nil
}

var errEmptyUpdate = errors.New("empty context payload")

// Strategy decides how a context-update payload is applied.
type Strategy string

const (
	// StrategyReplace swaps the whole context for the payload.
	StrategyReplace Strategy = "replace"
	// StrategyMerge overwrites only the top-level fields present in the payload.
	StrategyMerge Strategy = "merge"
)

// ParseStrategy maps a config value to a Strategy. Empty means replace.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyReplace:
		return StrategyReplace, nil
	case StrategyMerge:
		return StrategyMerge, nil
	}
	return "", fmt.Errorf("%s - unknown context strategy %q", logPrefix, s)
}

// apply produces the next context from current and an update payload.
func (s Strategy) apply(current Context, payload json.RawMessage) (Context, error) {
	if commsutil.IsAbsent(payload) {
		return current, errEmptyUpdate
	}
	if s == StrategyMerge {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(payload, &fields); err != nil {
			return current, err
		}
		base, err := json.Marshal(current)
		if err != nil {
			return current, err
		}
		var merged map[string]json.RawMessage
		if err := json.Unmarshal(base, &merged); err != nil {
			return current, err
		}
		for k, v := range fields {
			merged[k] = v
		}
		payload, err = json.Marshal(merged)
		if err != nil {
			return current, err
		}
	}

	var next Context
	if err := json.Unmarshal(payload, &next); err != nil {
		return current, err
	}
	return next, nil
}
