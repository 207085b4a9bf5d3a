// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DriftMUSH Contributors

package permission_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftmush/driftmush/internal/core"
	"github.com/driftmush/driftmush/pkg/errutil"
	"github.com/driftmush/driftmush/pkg/pluginapi"
	"github.com/driftmush/driftmush/plugins/permission"
)

// emptyRegistry satisfies the host's registry contract for a plugin with no
// dependencies.
type emptyRegistry struct{}

func (emptyRegistry) Lookup(string) (*pluginapi.Handle, bool) { return nil, false }

func construct(t *testing.T, config map[string]any) pluginapi.PermissionAPI {
	t.Helper()
	host := pluginapi.NewHost("permission", nil, config, emptyRegistry{}, nil)
	instance, err := permission.New(context.Background(), host)
	require.NoError(t, err)
	p, ok := instance.(pluginapi.PermissionAPI)
	require.True(t, ok)
	return p
}

func newSession(t *testing.T) *core.Session {
	t.Helper()
	return core.NewSessionManager().Connect(core.NewULID())
}

func TestHasPermission_DefaultGrants(t *testing.T) {
	p := construct(t, nil)
	sess := newSession(t)

	// No role attribute falls back to the default role.
	assert.True(t, p.HasPermission(sess, "chat.say"))
	assert.False(t, p.HasPermission(sess, "admin.kick"))

	sess.SetAttr("role", "admin")
	assert.True(t, p.HasPermission(sess, "admin.kick"))
	assert.True(t, p.HasPermission(sess, "chat.say"))
}

func TestHasPermission_DeniesUnknownRoleAndEmptyPerm(t *testing.T) {
	p := construct(t, nil)
	sess := newSession(t)

	sess.SetAttr("role", "ghost")
	assert.False(t, p.HasPermission(sess, "chat.say"))

	assert.False(t, p.HasPermission(sess, ""))
	assert.False(t, p.HasPermission(nil, "chat.say"))
}

func TestHasPermission_CustomGrants(t *testing.T) {
	p := construct(t, map[string]any{
		"default-role": "guest",
		"grants": map[string]any{
			"guest": []any{"presence.*"},
		},
	})
	sess := newSession(t)

	assert.True(t, p.HasPermission(sess, "presence.joined"))
	assert.False(t, p.HasPermission(sess, "chat.say"))
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]any
	}{
		{"grants not a list", map[string]any{"grants": map[string]any{"guest": "chat.*"}}},
		{"pattern not a string", map[string]any{"grants": map[string]any{"guest": []any{42}}}},
		{"pattern does not compile", map[string]any{"grants": map[string]any{"guest": []any{"chat.["}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host := pluginapi.NewHost("permission", nil, tt.config, emptyRegistry{}, nil)
			_, err := permission.New(context.Background(), host)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "PERMISSION_CONFIG_INVALID")
		})
	}
}

func TestPlayerJoined_AssignsDefaultRole(t *testing.T) {
	p := construct(t, map[string]any{"default-role": "guest"})
	handler, ok := p.(pluginapi.ConnectionHandler)
	require.True(t, ok)

	sess := newSession(t)
	require.NoError(t, handler.PlayerJoined(context.Background(), nil, sess))

	role, ok := sess.Attr("role")
	require.True(t, ok)
	assert.Equal(t, "guest", role)

	// An existing role is never overwritten.
	sess.SetAttr("role", "admin")
	require.NoError(t, handler.PlayerJoined(context.Background(), nil, sess))
	role, _ = sess.Attr("role")
	assert.Equal(t, "admin", role)
}
