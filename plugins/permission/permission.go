// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DriftMUSH Contributors

// Package permission implements the role-based permission plugin. It exposes
// PermissionAPI for other plugins to query and assigns a default role to new
// connections.
package permission

import (
	"context"
	"log/slog"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/driftmush/driftmush/internal/plugin"
	"github.com/driftmush/driftmush/pkg/pluginapi"
)

// Version is the PermissionAPI contract version this plugin reports.
const Version = "1.0.0"

// roleAttr is the session attribute holding a connection's role.
const roleAttr = "role"

func init() {
	plugin.RegisterConstructor("permission", New)
}

// Plugin grants permissions to sessions by role. Grants are glob patterns
// with '.' as the segment separator ("chat.*", "admin.**"). All fields are
// set at construction and read-only afterwards, so dispatch-time queries
// need no locking.
type Plugin struct {
	logger      *slog.Logger
	defaultRole string
	grants      map[string][]glob.Glob
}

var (
	_ pluginapi.ConnectionHandler = (*Plugin)(nil)
	_ pluginapi.PermissionAPI     = (*Plugin)(nil)
)

// defaultGrants applies when the manifest config carries no grants block.
var defaultGrants = map[string][]string{
	"player": {"chat.*"},
	"admin":  {"**"},
}

// New constructs the plugin from its manifest config. Recognized keys:
// "default-role" (string) and "grants" (map of role to pattern list).
func New(_ context.Context, host *pluginapi.Host) (any, error) {
	p := &Plugin{
		logger:      host.Logger(),
		defaultRole: "player",
		grants:      make(map[string][]glob.Glob),
	}

	cfg := host.Config()
	if role, ok := cfg["default-role"].(string); ok && role != "" {
		p.defaultRole = role
	}

	patterns := defaultGrants
	if raw, ok := cfg["grants"].(map[string]any); ok {
		patterns = make(map[string][]string, len(raw))
		for role, list := range raw {
			items, ok := list.([]any)
			if !ok {
				return nil, oops.Code("PERMISSION_CONFIG_INVALID").
					With("role", role).
					Errorf("grants for role %q must be a list of patterns", role)
			}
			for _, item := range items {
				pattern, ok := item.(string)
				if !ok {
					return nil, oops.Code("PERMISSION_CONFIG_INVALID").
						With("role", role).
						Errorf("grant pattern for role %q must be a string", role)
				}
				patterns[role] = append(patterns[role], pattern)
			}
		}
	}

	for role, list := range patterns {
		for _, pattern := range list {
			g, err := glob.Compile(pattern, '.')
			if err != nil {
				return nil, oops.Code("PERMISSION_CONFIG_INVALID").
					With("role", role).
					With("pattern", pattern).
					Wrapf(err, "invalid grant pattern %q", pattern)
			}
			p.grants[role] = append(p.grants[role], g)
		}
	}

	return p, nil
}

// Version implements PermissionAPI.
func (p *Plugin) Version() string { return Version }

// HasPermission reports whether the session's role grants the permission.
// Unknown roles and empty permissions are denied.
func (p *Plugin) HasPermission(sess pluginapi.Session, perm string) bool {
	if sess == nil || perm == "" {
		return false
	}
	role, ok := sess.Attr(roleAttr)
	if !ok {
		role = p.defaultRole
	}
	for _, g := range p.grants[role] {
		if g.Match(perm) {
			return true
		}
	}
	return false
}

// PlayerJoined assigns the default role to connections that have none.
func (p *Plugin) PlayerJoined(_ context.Context, _ pluginapi.Channel, sess pluginapi.Session) error {
	if _, ok := sess.Attr(roleAttr); !ok {
		sess.SetAttr(roleAttr, p.defaultRole)
		p.logger.Debug("assigned default role",
			"conn_id", sess.ID(),
			"role", p.defaultRole)
	}
	return nil
}
