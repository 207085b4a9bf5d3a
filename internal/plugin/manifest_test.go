// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DriftMUSH Contributors

package plugin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftmush/driftmush/internal/plugin"
	"github.com/driftmush/driftmush/pkg/errutil"
)

func TestParseManifest_Valid(t *testing.T) {
	data := []byte(`
name: chat
version: 1.2.0
entrypoint: chat
required: true
depends:
  - permission
events:
  - "chat.*"
  - "player.joined"
config:
  max-line-length: 512
`)

	m, err := plugin.ParseManifest(data)
	require.NoError(t, err)

	assert.Equal(t, "chat", m.Name)
	assert.Equal(t, "1.2.0", m.Version)
	assert.Equal(t, "chat", m.Entrypoint)
	assert.True(t, m.Required)
	assert.Equal(t, []string{"permission"}, m.Depends)
	assert.Equal(t, []string{"chat.*", "player.joined"}, m.Events)
	assert.Equal(t, 512, m.Config["max-line-length"])
}

func TestParseManifest_Minimal(t *testing.T) {
	m, err := plugin.ParseManifest([]byte("name: echo\nversion: 0.1.0\nentrypoint: echo\n"))
	require.NoError(t, err)

	assert.False(t, m.Required)
	assert.Empty(t, m.Depends)
	assert.Empty(t, m.Events)
	assert.Nil(t, m.Config)
}

func TestParseManifest_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty data", ""},
		{"bad yaml", "name: [unclosed"},
		{"missing name", "version: 1.0.0\nentrypoint: x\n"},
		{"uppercase name", "name: Chat\nversion: 1.0.0\nentrypoint: x\n"},
		{"trailing hyphen", "name: chat-\nversion: 1.0.0\nentrypoint: x\n"},
		{"missing version", "name: chat\nentrypoint: x\n"},
		{"bad semver", "name: chat\nversion: one.two\nentrypoint: x\n"},
		{"missing entrypoint", "name: chat\nversion: 1.0.0\n"},
		{"self dependency", "name: chat\nversion: 1.0.0\nentrypoint: x\ndepends: [chat]\n"},
		{"invalid dependency name", "name: chat\nversion: 1.0.0\nentrypoint: x\ndepends: [\"BAD\"]\n"},
		{"empty event pattern", "name: chat\nversion: 1.0.0\nentrypoint: x\nevents: [\"\"]\n"},
		{"invalid event pattern", "name: chat\nversion: 1.0.0\nentrypoint: x\nevents: [\"chat.[\"]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := plugin.ParseManifest([]byte(tt.data))
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "PLUGIN_MANIFEST_INVALID")
		})
	}
}

func TestManifest_NameLength(t *testing.T) {
	long := "a"
	for len(long) <= 64 {
		long += "a"
	}
	m := &plugin.Manifest{Name: long, Version: "1.0.0", Entrypoint: "x"}
	err := m.Validate()
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "PLUGIN_MANIFEST_INVALID")
}

func TestManifest_SingleCharacterName(t *testing.T) {
	m := &plugin.Manifest{Name: "x", Version: "1.0.0", Entrypoint: "x"}
	assert.NoError(t, m.Validate())
}
