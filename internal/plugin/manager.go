// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DriftMUSH Contributors

package plugin

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"

	"github.com/driftmush/driftmush/pkg/errutil"
	"github.com/driftmush/driftmush/pkg/pluginapi"
)

// Phase is the manager's startup state machine position.
type Phase uint32

const (
	PhaseIdle Phase = iota
	PhaseScanning
	PhaseResolving
	PhaseConstructing
	PhaseSealed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseScanning:
		return "scanning"
	case PhaseResolving:
		return "resolving"
	case PhaseConstructing:
		return "constructing"
	case PhaseSealed:
		return "sealed"
	default:
		return "unknown"
	}
}

// DiscoveredPlugin contains a manifest and its directory.
type DiscoveredPlugin struct {
	Manifest *Manifest
	Dir      string
}

// Manager orchestrates plugin startup: it scans plugin artifacts, resolves
// a construction order over declared dependencies, constructs each plugin
// via the catalog, and seals the resulting capability registry.
type Manager struct {
	pluginsDir string
	catalog    *Catalog
	registry   *Registry
	logger     *slog.Logger
	metrics    *Metrics
	phase      atomic.Uint32

	constructed []*Manifest // construction order, set during Startup
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithCatalog overrides the constructor catalog. Tests use this to avoid
// the init-time default catalog.
func WithCatalog(c *Catalog) ManagerOption {
	return func(m *Manager) {
		m.catalog = c
	}
}

// WithLogger sets the manager's logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetricsRegisterer registers the plugin core metrics with reg.
func WithMetricsRegisterer(reg prometheus.Registerer) ManagerOption {
	return func(m *Manager) {
		m.metrics = NewMetrics(reg)
	}
}

// NewManager creates a plugin manager reading manifests from pluginsDir.
func NewManager(pluginsDir string, opts ...ManagerOption) *Manager {
	m := &Manager{
		pluginsDir: pluginsDir,
		catalog:    DefaultCatalog(),
		registry:   NewRegistry(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = nopMetrics()
	}
	return m
}

// Phase returns the manager's current startup phase.
func (m *Manager) Phase() Phase {
	return Phase(m.phase.Load())
}

// Registry returns the capability registry. Before Startup completes it is
// a work in progress; afterwards it is sealed.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Constructed returns the manifests of plugins that reached construction,
// in construction order. Valid after Startup.
func (m *Manager) Constructed() []*Manifest {
	return m.constructed
}

// Ready reports whether startup finished and the registry is sealed.
// Implements the observability readiness contract.
func (m *Manager) Ready() bool {
	return m.Phase() == PhaseSealed
}

// Discover finds all valid plugin manifests in the plugins directory.
// Invalid manifests are logged and skipped.
func (m *Manager) Discover(_ context.Context) ([]*DiscoveredPlugin, error) {
	entries, err := os.ReadDir(m.pluginsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No plugins directory
		}
		return nil, oops.Code("PLUGIN_DISCOVERY_FAILED").
			With("dir", m.pluginsDir).
			Wrapf(err, "failed to read plugins directory")
	}

	var plugins []*DiscoveredPlugin
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		pluginDir := filepath.Join(m.pluginsDir, entry.Name())
		manifestPath := filepath.Join(pluginDir, "plugin.yaml")

		data, err := os.ReadFile(manifestPath) //nolint:gosec // manifestPath is constructed from ReadDir entries
		if err != nil {
			m.logger.Warn("skipping plugin without manifest",
				"dir", entry.Name(),
				"error", err)
			continue
		}

		if err := ValidateSchema(data); err != nil {
			m.logger.Warn("skipping plugin with invalid manifest",
				"dir", entry.Name(),
				"error", FormatSchemaError(err))
			continue
		}

		manifest, err := ParseManifest(data)
		if err != nil {
			m.logger.Warn("skipping plugin with invalid manifest",
				"dir", entry.Name(),
				"error", err)
			continue
		}

		plugins = append(plugins, &DiscoveredPlugin{
			Manifest: manifest,
			Dir:      pluginDir,
		})
	}

	return plugins, nil
}

// ResolveOrder computes a construction order honoring declared dependencies
// (stable topological sort, discovery order breaking ties). A dependency
// cycle is a fatal configuration error. Dependencies on plugins absent from
// the discovered set do not affect ordering; they surface as construction
// failures for the plugins declaring them.
func (m *Manager) ResolveOrder(discovered []*DiscoveredPlugin) ([]*DiscoveredPlugin, error) {
	byName := make(map[string]*DiscoveredPlugin, len(discovered))
	for _, dp := range discovered {
		// Duplicate names collide at registration time; ordering just keeps
		// the first occurrence's position.
		if _, seen := byName[dp.Manifest.Name]; !seen {
			byName[dp.Manifest.Name] = dp
		}
	}

	indegree := make(map[string]int, len(discovered))
	dependents := make(map[string][]string, len(discovered))
	for _, dp := range discovered {
		name := dp.Manifest.Name
		if _, ok := indegree[name]; !ok {
			indegree[name] = 0
		}
		for _, dep := range dp.Manifest.Depends {
			if _, present := byName[dep]; !present {
				continue // missing dep fails construction later, not ordering
			}
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var queue []string
	for _, dp := range discovered {
		name := dp.Manifest.Name
		if byName[name] == dp && indegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	ordered := make([]*DiscoveredPlugin, 0, len(byName))
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		ordered = append(ordered, byName[name])

		for _, dependent := range dependents[name] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(ordered) != len(byName) {
		var cycle []string
		for name, deg := range indegree {
			if deg > 0 {
				cycle = append(cycle, name)
			}
		}
		sort.Strings(cycle)
		return nil, oops.Code("PLUGIN_DEPENDENCY_CYCLE").
			With("plugins", cycle).
			Errorf("dependency cycle among plugins: %v", cycle)
	}

	return ordered, nil
}

// Startup runs the full startup sequence and returns the sealed registry.
// Optional plugin failures degrade to a Failed registry entry; a dependency
// cycle or a required plugin's failure aborts startup.
func (m *Manager) Startup(ctx context.Context) (*Registry, error) {
	m.phase.Store(uint32(PhaseScanning))
	discovered, err := m.Discover(ctx)
	if err != nil {
		return nil, err
	}

	m.phase.Store(uint32(PhaseResolving))
	ordered, err := m.ResolveOrder(discovered)
	if err != nil {
		return nil, err
	}

	m.phase.Store(uint32(PhaseConstructing))
	for _, dp := range ordered {
		if err := m.constructOne(ctx, dp); err != nil {
			return nil, err
		}
	}

	m.registry.Seal()
	m.phase.Store(uint32(PhaseSealed))
	m.logger.Info("plugin registry sealed",
		"plugins", len(m.constructed),
		"ready", len(m.registry.Implementing(pluginapi.CapConnectionHandler)))
	return m.registry, nil
}

// constructOne builds a single plugin and records the outcome in the
// registry. A nil return means startup continues; a non-nil return aborts
// startup (required plugin failed, or registration collided for a required
// plugin).
func (m *Manager) constructOne(ctx context.Context, dp *DiscoveredPlugin) error {
	manifest := dp.Manifest
	name := manifest.Name

	if err := m.registry.Register(name, StateInitializing, nil); err != nil {
		errutil.LogError(m.logger, "plugin registration failed", err)
		if manifest.Required {
			return oops.Code("PLUGIN_REQUIRED_FAILED").
				With("plugin", name).
				Wrapf(err, "required plugin %q failed to register", name)
		}
		return nil
	}

	instance, err := m.build(ctx, manifest)
	if err != nil {
		m.registry.setState(name, StateFailed)
		m.metrics.Constructions.WithLabelValues("failed").Inc()
		errutil.LogError(m.logger, "plugin construction failed", err)
		if manifest.Required {
			return oops.Code("PLUGIN_REQUIRED_FAILED").
				With("plugin", name).
				Wrapf(err, "required plugin %q failed to construct", name)
		}
		return nil
	}

	handle, err := newInstanceHandle(name, instance)
	if err != nil {
		m.registry.setState(name, StateFailed)
		m.metrics.Constructions.WithLabelValues("failed").Inc()
		errutil.LogError(m.logger, "plugin handle construction failed", err)
		if manifest.Required {
			return oops.Code("PLUGIN_REQUIRED_FAILED").
				With("plugin", name).
				Wrapf(err, "required plugin %q failed to construct", name)
		}
		return nil
	}

	m.registry.setHandle(name, handle)
	m.registry.setState(name, StateReady)
	m.metrics.Constructions.WithLabelValues("ready").Inc()
	m.constructed = append(m.constructed, manifest)

	m.logger.Info("constructed plugin",
		"plugin", name,
		"version", manifest.Version,
		"capabilities", len(handle.Capabilities()))
	return nil
}

// build resolves the constructor and invokes it with a construction host.
// Declared dependencies are verified before the constructor runs, so a
// constructor may assume Depend succeeds for anything it declared.
func (m *Manager) build(ctx context.Context, manifest *Manifest) (any, error) {
	for _, dep := range manifest.Depends {
		state, ok := m.registry.State(dep)
		if !ok || state != StateReady {
			return nil, oops.Code("PLUGIN_DEPENDENCY_MISSING").
				With("plugin", manifest.Name).
				With("dependency", dep).
				Errorf("dependency %q is not available", dep)
		}
	}

	ctor, ok := m.catalog.Constructor(manifest.Entrypoint)
	if !ok {
		return nil, oops.Code("PLUGIN_UNKNOWN_ENTRYPOINT").
			With("plugin", manifest.Name).
			With("entrypoint", manifest.Entrypoint).
			Errorf("no constructor registered for entrypoint %q", manifest.Entrypoint)
	}

	host := pluginapi.NewHost(manifest.Name, m.logger, manifest.Config, m.registry.View(), manifest.Depends)
	return safeConstruct(ctx, manifest.Name, ctor, host)
}

// safeConstruct invokes a constructor, converting a panic into a
// construction error so one plugin cannot abort server startup.
func safeConstruct(ctx context.Context, name string, ctor pluginapi.Constructor, host *pluginapi.Host) (instance any, err error) {
	defer func() {
		if r := recover(); r != nil {
			instance = nil
			err = oops.Code("PLUGIN_CONSTRUCT_FAILED").
				With("plugin", name).
				Errorf("constructor panicked: %v", r)
		}
	}()

	instance, err = ctor(ctx, host)
	if err != nil {
		return nil, oops.Code("PLUGIN_CONSTRUCT_FAILED").
			With("plugin", name).
			Wrap(err)
	}
	if instance == nil {
		return nil, oops.Code("PLUGIN_CONSTRUCT_FAILED").
			With("plugin", name).
			Errorf("constructor returned nil instance")
	}
	return instance, nil
}

// newInstanceHandle wraps a constructed instance, folding in any custom
// capabilities the plugin exposes.
func newInstanceHandle(name string, instance any) (*pluginapi.Handle, error) {
	var opts []pluginapi.HandleOption
	if provider, ok := instance.(pluginapi.CapabilityProvider); ok {
		for id, accessor := range provider.ExtraCapabilities() {
			opts = append(opts, pluginapi.WithCapability(id, accessor))
		}
	}
	return pluginapi.NewHandle(name, instance, opts...)
}
