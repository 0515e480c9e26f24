package manifest

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/morezero/widget-bridge/pkg/widget"
)

const logPrefix = "manifest:loader"

// DefaultSDKRange is used when a manifest does not set sdkRange.
const DefaultSDKRange = "^2.0.0"

// EnvFile names the environment variable holding a manifest path.
const EnvFile = "BRIDGE_MANIFEST_FILE"

//go:embed default_manifest.yaml
var defaultManifest []byte

// Load reads the first parseable manifest from paths, then $BRIDGE_MANIFEST_FILE,
// then the default locations, falling back to the embedded default.
func Load(paths ...string) (*Manifest, error) {
	all := make([]string, 0, len(paths)+5)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv(EnvFile); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/manifest.yaml", "config/manifest.json", "manifest.yaml", "manifest.json")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		m, err := Parse(data, filepath.Ext(p))
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to parse manifest file %s: %v", logPrefix, p, err))
			continue
		}

		slog.Info(fmt.Sprintf("%s - Loaded manifest from %s", logPrefix, p))
		return m, nil
	}

	slog.Info(fmt.Sprintf("%s - Using default manifest", logPrefix))
	return Default(), nil
}

// Parse decodes a manifest. ext selects the format: ".yaml"/".yml" for YAML,
// anything else for JSON.
func Parse(data []byte, ext string) (*Manifest, error) {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		// YAML is normalised to JSON so one set of field tags serves both.
		var doc interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%s - yaml: %w", logPrefix, err)
		}
		converted, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("%s - yaml to json: %w", logPrefix, err)
		}
		data = converted
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%s - json: %w", logPrefix, err)
	}
	if len(m.Modules) == 0 {
		return nil, fmt.Errorf("%s - manifest declares no modules", logPrefix)
	}
	return &m, nil
}

// Default returns the embedded manifest.
func Default() *Manifest {
	m, err := Parse(defaultManifest, ".yaml")
	if err != nil {
		panic(fmt.Sprintf("%s - embedded manifest is invalid: %v", logPrefix, err))
	}
	return m
}

// Merge overlays override onto base. Modules, aliases and widgets are merged
// by key; scalar fields are replaced when set.
func Merge(base, override *Manifest) *Manifest {
	merged := *base
	merged.Modules = make(map[string]Module, len(base.Modules)+len(override.Modules))
	for k, v := range base.Modules {
		merged.Modules[k] = v
	}
	for k, v := range override.Modules {
		merged.Modules[k] = v
	}

	merged.Aliases = make(map[string]string, len(base.Aliases)+len(override.Aliases))
	for k, v := range base.Aliases {
		merged.Aliases[k] = v
	}
	for k, v := range override.Aliases {
		merged.Aliases[k] = v
	}

	if len(base.Widgets)+len(override.Widgets) > 0 {
		merged.Widgets = make(map[string]widget.Context, len(base.Widgets)+len(override.Widgets))
		for k, v := range base.Widgets {
			merged.Widgets[k] = v
		}
		for k, v := range override.Widgets {
			merged.Widgets[k] = v
		}
	}

	if override.Name != "" {
		merged.Name = override.Name
	}
	if override.Version != "" {
		merged.Version = override.Version
	}
	if override.SDKRange != "" {
		merged.SDKRange = override.SDKRange
	}
	return &merged
}
