// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DriftMUSH Contributors

package plugin

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/samber/oops"

	"github.com/driftmush/driftmush/pkg/pluginapi"
)

// entry pairs a plugin's handle with its lifecycle state. The handle pointer
// is set once (under the registry lock, before sealing); the state cell is
// atomic so post-seal transitions never block readers of other entries.
type entry struct {
	name   string
	state  stateCell
	handle *pluginapi.Handle
}

// Registry maps plugin names to (state, handle). It is built once during
// startup and read-mostly afterwards: after Seal, lookups and capability
// scans take no lock at all, and the only legal mutation is a state
// transition to Failed.
//
// Registries are plain values constructed per process (or per test); there
// is no ambient global.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []*entry
	sealed  atomic.Bool
}

// NewRegistry creates an empty capability registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
	}
}

// Register inserts an entry. Registering a name that already exists in a
// non-Failed state is a DuplicateName error and leaves the original entry
// unchanged; a Failed entry may be replaced. Registering on a sealed
// registry is an error.
func (r *Registry) Register(name string, state State, handle *pluginapi.Handle) error {
	if name == "" {
		return oops.Code("PLUGIN_NAME_INVALID").Errorf("plugin name cannot be empty")
	}
	if r.sealed.Load() {
		return oops.Code("PLUGIN_REGISTRY_SEALED").
			With("plugin", name).
			Errorf("registry is sealed, cannot register %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[name]; ok {
		if existing.state.load() != StateFailed {
			return oops.Code("PLUGIN_DUPLICATE_NAME").
				With("plugin", name).
				With("state", existing.state.load().String()).
				Errorf("plugin %q already registered", name)
		}
		// Replace the failed entry in place, keeping its dispatch position.
		existing.handle = handle
		existing.state.store(state)
		return nil
	}

	e := &entry{name: name, handle: handle}
	e.state.store(state)
	r.entries[name] = e
	r.order = append(r.order, e)
	return nil
}

// setHandle attaches the constructed handle to an existing entry. Manager
// use only, before sealing.
func (r *Registry) setHandle(name string, handle *pluginapi.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		e.handle = handle
	}
}

// setState transitions an entry's lifecycle state. Manager use only.
func (r *Registry) setState(name string, state State) {
	if e, ok := r.get(name); ok {
		e.state.store(state)
	}
}

// MarkFailed transitions a plugin to Failed, e.g. on a runtime fault report.
// This is the only mutation permitted after sealing; it is a per-entry
// atomic store and never blocks concurrent readers.
func (r *Registry) MarkFailed(name string) {
	e, ok := r.get(name)
	if !ok {
		slog.Debug("MarkFailed called for unknown plugin", "plugin", name)
		return
	}
	e.state.store(StateFailed)
	slog.Warn("plugin marked failed", "plugin", name)
}

// Lookup returns the handle registered under name. Absence is not an error;
// callers treat it as "capability unavailable". Failed plugins and entries
// still under construction are treated as absent.
func (r *Registry) Lookup(name string) (*pluginapi.Handle, bool) {
	e, ok := r.get(name)
	if !ok || e.state.load() != StateReady || e.handle == nil {
		return nil, false
	}
	return e.handle, true
}

// State returns a plugin's lifecycle state.
func (r *Registry) State(name string) (State, bool) {
	e, ok := r.get(name)
	if !ok {
		return StateUninitialized, false
	}
	return e.state.load(), true
}

// Implementing returns, in registration order, every Ready handle that
// exposes the capability. The scan runs afresh on every call.
func (r *Registry) Implementing(id pluginapi.CapabilityID) []*pluginapi.Handle {
	var handles []*pluginapi.Handle
	for _, e := range r.snapshot() {
		if e.state.load() != StateReady || e.handle == nil {
			continue
		}
		if e.handle.Implements(id) {
			handles = append(handles, e.handle)
		}
	}
	return handles
}

// Names returns all registered plugin names in registration order.
func (r *Registry) Names() []string {
	entries := r.snapshot()
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names
}

// Len returns the number of registered entries.
func (r *Registry) Len() int {
	if r.sealed.Load() {
		return len(r.order)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Seal freezes the registry: no further registrations, only MarkFailed.
func (r *Registry) Seal() {
	r.sealed.Store(true)
}

// Sealed reports whether the registry has been sealed.
func (r *Registry) Sealed() bool {
	return r.sealed.Load()
}

// View returns the read-only view handed to plugins. The view stays valid
// for the registry's lifetime, so construction-time lazy lookups may be
// re-queried after sealing.
func (r *Registry) View() pluginapi.Registry {
	return registryView{r}
}

// get fetches an entry, locking only while the registry is unsealed.
func (r *Registry) get(name string) (*entry, bool) {
	if r.sealed.Load() {
		e, ok := r.entries[name]
		return e, ok
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// snapshot returns the ordered entries, lock-free once sealed.
func (r *Registry) snapshot() []*entry {
	if r.sealed.Load() {
		return r.order
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entry, len(r.order))
	copy(out, r.order)
	return out
}

// registryView adapts Registry to the plugin-facing read contract.
type registryView struct {
	r *Registry
}

func (v registryView) Lookup(name string) (*pluginapi.Handle, bool) {
	return v.r.Lookup(name)
}
