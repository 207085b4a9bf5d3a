// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DriftMUSH Contributors

package plugin

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/driftmush/driftmush/pkg/errutil"
	"github.com/driftmush/driftmush/pkg/pluginapi"
)

// Dispatcher translates transport-layer lifecycle and domain events into
// capability invocations on every interested Ready plugin. It is a
// fire-once-per-event notifier: a failing or panicking plugin is logged and
// skipped, never retried, and never aborts dispatch to the plugins after it.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
	metrics  *Metrics

	mu      sync.RWMutex
	filters map[string][]glob.Glob // plugin name -> event patterns; empty = all
}

// DispatcherOption configures the Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatchLogger sets the dispatcher's logger.
func WithDispatchLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithDispatchMetrics sets the dispatcher's metrics instruments.
func WithDispatchMetrics(m *Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// NewDispatcher creates a dispatcher over a capability registry. The
// registry is normally sealed by the time events flow, but the dispatcher
// only ever reads it, so a pre-seal registry works too (tests rely on this).
func NewDispatcher(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		logger:   slog.Default(),
		filters:  make(map[string][]glob.Glob),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.metrics == nil {
		d.metrics = nopMetrics()
	}
	return d
}

// Dispatcher builds an event dispatcher over the manager's registry, with
// event filters taken from the constructed manifests. Call after Startup.
func (m *Manager) Dispatcher() *Dispatcher {
	d := NewDispatcher(m.registry,
		WithDispatchLogger(m.logger),
		WithDispatchMetrics(m.metrics))
	for _, manifest := range m.constructed {
		if err := d.SetEventFilter(manifest.Name, manifest.Events); err != nil {
			// Patterns were validated at manifest parse time; a failure here
			// means the manifest bypassed validation.
			errutil.LogError(m.logger, "invalid event filter", err)
		}
	}
	return d
}

// SetEventFilter restricts which domain events a plugin receives. Patterns
// use gobwas/glob with '.' as the segment separator; an empty pattern list
// means the plugin receives every event.
func (d *Dispatcher) SetEventFilter(plugin string, patterns []string) error {
	compiled := make([]glob.Glob, len(patterns))
	for i, pattern := range patterns {
		g, err := glob.Compile(pattern, '.')
		if err != nil {
			return oops.Code("PLUGIN_EVENT_FILTER_INVALID").
				With("plugin", plugin).
				With("pattern", pattern).
				Wrapf(err, "invalid event pattern %q", pattern)
		}
		compiled[i] = g
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.filters[plugin] = compiled
	return nil
}

// PlayerJoined notifies every Ready plugin implementing ConnectionHandler
// that a connection completed its handshake. Invocations run synchronously
// in registration order on the calling goroutine; all plugins receive the
// same shared session record.
func (d *Dispatcher) PlayerJoined(ctx context.Context, ch pluginapi.Channel, sess pluginapi.Session) {
	for _, handle := range d.registry.Implementing(pluginapi.CapConnectionHandler) {
		handler, ok := pluginapi.As[pluginapi.ConnectionHandler](handle, pluginapi.CapConnectionHandler)
		if !ok {
			continue
		}
		d.invoke(handle.Name(), pluginapi.CapConnectionHandler, func() error {
			return handler.PlayerJoined(ctx, ch, sess)
		})
	}
}

// DispatchEvent delivers a domain event to every Ready plugin implementing
// EventHandler whose event filter matches the event type.
func (d *Dispatcher) DispatchEvent(ctx context.Context, event pluginapi.Event) {
	for _, handle := range d.registry.Implementing(pluginapi.CapEventHandler) {
		if !d.wants(handle.Name(), event.Type) {
			d.metrics.Dispatches.WithLabelValues(handle.Name(), string(pluginapi.CapEventHandler), "filtered").Inc()
			continue
		}
		handler, ok := pluginapi.As[pluginapi.EventHandler](handle, pluginapi.CapEventHandler)
		if !ok {
			continue
		}
		d.invoke(handle.Name(), pluginapi.CapEventHandler, func() error {
			return handler.HandleEvent(ctx, event)
		})
	}
}

// wants reports whether a plugin's filter matches the event type.
func (d *Dispatcher) wants(plugin, eventType string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	patterns := d.filters[plugin]
	if len(patterns) == 0 {
		return true
	}
	for _, g := range patterns {
		if g.Match(eventType) {
			return true
		}
	}
	return false
}

// invoke runs one capability invocation with best-effort isolation: errors
// and panics are surfaced to the operational log and counted, then dispatch
// moves on. The connection is never torn down on a plugin fault.
func (d *Dispatcher) invoke(plugin string, capID pluginapi.CapabilityID, fn func() error) {
	outcome := "ok"
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				outcome = "panic"
				err = oops.Code("PLUGIN_DISPATCH_FAILED").
					With("plugin", plugin).
					With("capability", string(capID)).
					Errorf("plugin handler panicked: %v", r)
			}
		}()
		return fn()
	}()

	if err != nil {
		if outcome == "ok" {
			outcome = "error"
			err = oops.Code("PLUGIN_DISPATCH_FAILED").
				With("plugin", plugin).
				With("capability", string(capID)).
				Wrap(err)
		}
		errutil.LogError(d.logger, "plugin dispatch failed", err)
	}
	d.metrics.Dispatches.WithLabelValues(plugin, string(capID), outcome).Inc()
}
