// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DriftMUSH Contributors

// Package plugin implements the plugin management core: the capability
// registry, the constructor catalog, the startup manager, and the event
// dispatcher.
package plugin

import (
	"regexp"

	"github.com/Masterminds/semver/v3"
	"github.com/gobwas/glob"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

// Manifest represents a plugin.yaml file: one discovered plugin artifact.
type Manifest struct {
	// Name uniquely identifies the plugin instance within a registry.
	Name string `yaml:"name" json:"name"`

	// Version is the plugin's semantic version.
	Version string `yaml:"version" json:"version"`

	// Entrypoint names the constructor in the static catalog.
	Entrypoint string `yaml:"entrypoint" json:"entrypoint"`

	// Required plugins abort server startup when they fail to construct.
	Required bool `yaml:"required,omitempty" json:"required,omitempty"`

	// Depends lists plugins that must construct before this one.
	Depends []string `yaml:"depends,omitempty" json:"depends,omitempty"`

	// Events holds glob patterns selecting which domain events the plugin
	// receives. '.' separates segments; empty means all events.
	Events []string `yaml:"events,omitempty" json:"events,omitempty"`

	// Config is the plugin's opaque configuration block.
	Config map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}

// maxNameLength is the maximum allowed length for plugin names.
const maxNameLength = 64

// namePattern validates plugin names: must start with a lowercase letter,
// followed by lowercase letters, digits, or hyphens, and not end with a
// hyphen. Single character names are allowed.
var namePattern = regexp.MustCompile(`^[a-z]([a-z0-9-]*[a-z0-9])?$`)

// ParseManifest parses and validates a plugin.yaml file.
func ParseManifest(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, oops.Code("PLUGIN_MANIFEST_INVALID").Errorf("manifest data is empty")
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, oops.Code("PLUGIN_MANIFEST_INVALID").Wrapf(err, "invalid YAML")
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest constraints.
func (m *Manifest) Validate() error {
	if m.Name == "" || !namePattern.MatchString(m.Name) {
		return oops.Code("PLUGIN_MANIFEST_INVALID").
			With("name", m.Name).
			Errorf("name %q must start with a-z, contain only a-z, 0-9, hyphens, and not end with a hyphen", m.Name)
	}
	if len(m.Name) > maxNameLength {
		return oops.Code("PLUGIN_MANIFEST_INVALID").
			With("name", m.Name).
			Errorf("name must be %d characters or less, got %d", maxNameLength, len(m.Name))
	}

	if m.Version == "" {
		return oops.Code("PLUGIN_MANIFEST_INVALID").
			With("name", m.Name).
			Errorf("version is required")
	}
	if _, err := semver.NewVersion(m.Version); err != nil {
		return oops.Code("PLUGIN_MANIFEST_INVALID").
			With("name", m.Name).
			With("version", m.Version).
			Wrapf(err, "version %q is not valid semver", m.Version)
	}

	if m.Entrypoint == "" {
		return oops.Code("PLUGIN_MANIFEST_INVALID").
			With("name", m.Name).
			Errorf("entrypoint is required")
	}

	for _, dep := range m.Depends {
		if dep == m.Name {
			return oops.Code("PLUGIN_MANIFEST_INVALID").
				With("name", m.Name).
				Errorf("plugin cannot depend on itself")
		}
		if dep == "" || !namePattern.MatchString(dep) {
			return oops.Code("PLUGIN_MANIFEST_INVALID").
				With("name", m.Name).
				With("dependency", dep).
				Errorf("dependency name %q is invalid", dep)
		}
	}

	for _, pattern := range m.Events {
		if pattern == "" {
			return oops.Code("PLUGIN_MANIFEST_INVALID").
				With("name", m.Name).
				Errorf("event pattern cannot be empty")
		}
		if _, err := glob.Compile(pattern, '.'); err != nil {
			return oops.Code("PLUGIN_MANIFEST_INVALID").
				With("name", m.Name).
				With("pattern", pattern).
				Wrapf(err, "invalid event pattern %q", pattern)
		}
	}

	return nil
}
