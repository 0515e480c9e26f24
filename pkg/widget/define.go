package widget

import (
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// SDKVersion is stamped on every defined widget so hosts can check
// compatibility.
const SDKVersion = "2.0.0"

// Meta describes a widget for catalogues.
type Meta struct {
	Title       string   `json:"title,omitempty" yaml:"title,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Keywords    []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
}

// ConfigSchema holds the widget's declared props and settings panel.
type ConfigSchema struct {
	Props map[string]interface{} `json:"props,omitempty" yaml:"props,omitempty"`
	Panel map[string]interface{} `json:"panel,omitempty" yaml:"panel,omitempty"`
}

// Definition declares a widget. Setup runs once per mount with the mounted
// scope; a returned error aborts the mount.
type Definition struct {
	ID      string
	Version string
	Meta    *Meta
	Config  *ConfigSchema
	Setup   func(*Scope) error
}

// Widget is a validated Definition.
type Widget struct {
	Definition
	SDKVersion string
	version    *semver.Version
}

// Define validates def and stamps the SDK version.
func Define(def Definition) (*Widget, error) {
	if def.ID == "" {
		return nil, errors.New("widget:define - id is required")
	}
	if def.Setup == nil {
		return nil, fmt.Errorf("widget:define - %s: setup is required", def.ID)
	}
	v, err := semver.StrictNewVersion(def.Version)
	if err != nil {
		return nil, fmt.Errorf("widget:define - %s: invalid version %q: %w", def.ID, def.Version, err)
	}
	return &Widget{Definition: def, SDKVersion: SDKVersion, version: v}, nil
}

// Version returns the parsed widget version.
func (w *Widget) Version() *semver.Version {
	return w.version
}

// Mount mounts a scope for initial and runs Setup on it.
func (w *Widget) Mount(host Host, initial Context, opts ...Option) (*Scope, error) {
	s, err := Mount(host, initial, opts...)
	if err != nil {
		return nil, err
	}
	if err := w.Setup(s); err != nil {
		s.Unmount()
		return nil, fmt.Errorf("widget:define - %s setup: %w", w.ID, err)
	}
	return s, nil
}
