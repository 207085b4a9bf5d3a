// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DriftMUSH Contributors

package pluginapi

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// Constructor builds a plugin instance from the host services. The returned
// value is wrapped in a Handle by the manager; its capability set is
// whatever built-in contracts it implements, plus any custom capabilities it
// exposes via the CapabilityProvider interface.
type Constructor func(ctx context.Context, host *Host) (any, error)

// Registry is the read view of the capability registry a plugin may query.
// During construction it contains only plugins constructed strictly earlier;
// after the registry is sealed it contains every Ready plugin.
type Registry interface {
	// Lookup returns the handle registered under name. Absence is not an
	// error: it means the capability is unavailable. Failed plugins are
	// treated as absent.
	Lookup(name string) (*Handle, bool)
}

// Host carries the services the manager grants a plugin during
// construction: its manifest config, a scoped logger, and dependency lookup
// against the registry as built so far.
type Host struct {
	name     string
	logger   *slog.Logger
	config   map[string]any
	registry Registry
	declared map[string]bool
}

// NewHost assembles a construction host. Called by the plugin manager;
// plugins receive the result, they never build one.
func NewHost(name string, logger *slog.Logger, config map[string]any, registry Registry, declared []string) *Host {
	set := make(map[string]bool, len(declared))
	for _, dep := range declared {
		set[dep] = true
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{
		name:     name,
		logger:   logger.With("plugin", name),
		config:   config,
		registry: registry,
		declared: set,
	}
}

// Name returns the plugin's registered name.
func (h *Host) Name() string { return h.name }

// Logger returns a logger scoped to the plugin.
func (h *Host) Logger() *slog.Logger { return h.logger }

// Config returns the manifest config block. May be nil.
func (h *Host) Config() map[string]any { return h.config }

// Depend resolves a declared dependency. The dependency must be listed in
// the plugin's manifest and must have been constructed successfully before
// this plugin; anything else is a hard error that fails construction.
func (h *Host) Depend(name string) (*Handle, error) {
	if !h.declared[name] {
		return nil, oops.Code("PLUGIN_DEPENDENCY_UNDECLARED").
			With("plugin", h.name).
			With("dependency", name).
			Errorf("dependency %q not declared in manifest", name)
	}
	handle, ok := h.registry.Lookup(name)
	if !ok {
		return nil, oops.Code("PLUGIN_DEPENDENCY_MISSING").
			With("plugin", h.name).
			With("dependency", name).
			Errorf("dependency %q is not available", name)
	}
	return handle, nil
}

// Find resolves a plugin by name without requiring a manifest declaration.
// Unlike Depend it never fails construction: absence means the capability is
// unavailable and the plugin should degrade. The registry reference stays
// valid after sealing, so Find may be re-queried lazily at dispatch time.
func (h *Host) Find(name string) (*Handle, bool) {
	return h.registry.Lookup(name)
}
