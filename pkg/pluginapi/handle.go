// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DriftMUSH Contributors

package pluginapi

import "github.com/samber/oops"

// builtinContracts maps each built-in capability ID to an assertion probe.
// NewHandle runs every probe against the plugin instance once, so the
// capability table is populated at construction and queries are map lookups.
var builtinContracts = map[CapabilityID]func(any) (any, bool){
	CapConnectionHandler: func(v any) (any, bool) { c, ok := v.(ConnectionHandler); return c, ok },
	CapEventHandler:      func(v any) (any, bool) { c, ok := v.(EventHandler); return c, ok },
	CapPermissionAPI:     func(v any) (any, bool) { c, ok := v.(PermissionAPI); return c, ok },
	CapChatAPI:           func(v any) (any, bool) { c, ok := v.(ChatAPI); return c, ok },
}

// Handle type-erases a concrete plugin behind a stable capability query
// surface. Handles are owned by the capability registry and shared by
// reference; the capability table is populated once at construction and
// never mutated afterwards, so queries need no locking.
type Handle struct {
	name string
	caps map[CapabilityID]any
}

// HandleOption configures a Handle at construction.
type HandleOption func(*Handle) error

// WithCapability exposes a custom capability under the given ID. The
// accessor must be non-nil; the ID must not collide with one already set.
func WithCapability(id CapabilityID, accessor any) HandleOption {
	return func(h *Handle) error {
		if id == "" {
			return oops.Code("PLUGIN_CAPABILITY_INVALID").
				With("plugin", h.name).
				Errorf("capability ID cannot be empty")
		}
		if accessor == nil {
			return oops.Code("PLUGIN_CAPABILITY_INVALID").
				With("plugin", h.name).
				With("capability", string(id)).
				Errorf("capability accessor cannot be nil")
		}
		if _, exists := h.caps[id]; exists {
			return oops.Code("PLUGIN_CAPABILITY_INVALID").
				With("plugin", h.name).
				With("capability", string(id)).
				Errorf("capability %q already registered", id)
		}
		h.caps[id] = accessor
		return nil
	}
}

// NewHandle wraps a concrete plugin instance. Built-in capability contracts
// are discovered via interface assertion; custom capabilities are added with
// WithCapability. A plugin implementing no capability at all is legal - it
// simply never receives dispatches.
func NewHandle(name string, instance any, opts ...HandleOption) (*Handle, error) {
	h := &Handle{
		name: name,
		caps: make(map[CapabilityID]any),
	}
	if instance != nil {
		for id, probe := range builtinContracts {
			if accessor, ok := probe(instance); ok {
				h.caps[id] = accessor
			}
		}
	}
	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Name returns the plugin name the handle was registered under.
func (h *Handle) Name() string { return h.name }

// Implements reports whether the plugin exposes the capability.
func (h *Handle) Implements(id CapabilityID) bool {
	_, ok := h.caps[id]
	return ok
}

// Capability returns the untyped accessor for a capability. Callers
// normally use As instead.
func (h *Handle) Capability(id CapabilityID) (any, bool) {
	accessor, ok := h.caps[id]
	return accessor, ok
}

// Capabilities returns the IDs the plugin exposes. Order is not guaranteed.
func (h *Handle) Capabilities() []CapabilityID {
	ids := make([]CapabilityID, 0, len(h.caps))
	for id := range h.caps {
		ids = append(ids, id)
	}
	return ids
}

// As returns the capability accessor typed as T. It fails closed: a nil
// handle, an absent capability, or an accessor of the wrong type all yield
// (zero, false) rather than a panic.
func As[T any](h *Handle, id CapabilityID) (T, bool) {
	var zero T
	if h == nil {
		return zero, false
	}
	accessor, ok := h.caps[id]
	if !ok {
		return zero, false
	}
	typed, ok := accessor.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
