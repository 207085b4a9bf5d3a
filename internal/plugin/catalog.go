// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DriftMUSH Contributors

package plugin

import (
	"sort"
	"sync"

	"github.com/driftmush/driftmush/pkg/pluginapi"
)

// Catalog maps entrypoint names to plugin constructors. In-tree plugins
// register themselves into the default catalog from init(), before the
// manager starts; a manifest references a catalog entry by entrypoint name.
type Catalog struct {
	mu           sync.RWMutex
	constructors map[string]pluginapi.Constructor
}

// NewCatalog creates an empty constructor catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		constructors: make(map[string]pluginapi.Constructor),
	}
}

// Register adds a constructor under an entrypoint name. It panics on an
// empty name, nil constructor, or duplicate registration: these are
// programming errors in a plugin's init(), not runtime conditions.
func (c *Catalog) Register(entrypoint string, ctor pluginapi.Constructor) {
	if entrypoint == "" {
		panic("plugin: entrypoint cannot be empty")
	}
	if ctor == nil {
		panic("plugin: constructor cannot be nil for entrypoint " + entrypoint)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.constructors[entrypoint]; exists {
		panic("plugin: duplicate constructor registration for entrypoint " + entrypoint)
	}
	c.constructors[entrypoint] = ctor
}

// Constructor returns the constructor registered under an entrypoint.
func (c *Catalog) Constructor(entrypoint string) (pluginapi.Constructor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ctor, ok := c.constructors[entrypoint]
	return ctor, ok
}

// Entrypoints returns all registered entrypoint names, sorted.
func (c *Catalog) Entrypoints() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.constructors))
	for name := range c.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// defaultCatalog receives init-time registrations from in-tree plugins.
var defaultCatalog = NewCatalog()

// RegisterConstructor adds a constructor to the default catalog. Called
// from plugin init() functions.
func RegisterConstructor(entrypoint string, ctor pluginapi.Constructor) {
	defaultCatalog.Register(entrypoint, ctor)
}

// DefaultCatalog returns the catalog populated by init-time registrations.
func DefaultCatalog() *Catalog {
	return defaultCatalog
}
