// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DriftMUSH Contributors

package plugin_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftmush/driftmush/internal/plugin"
	"github.com/driftmush/driftmush/pkg/pluginapi"
)

// greeter implements ConnectionHandler, recording joins or failing on demand.
type greeter struct {
	name   string
	joins  *[]string
	err    error
	panics bool
}

func (g *greeter) PlayerJoined(context.Context, pluginapi.Channel, pluginapi.Session) error {
	if g.panics {
		panic("greeter exploded")
	}
	if g.err != nil {
		return g.err
	}
	*g.joins = append(*g.joins, g.name)
	return nil
}

func dispatchRegistry(t *testing.T, plugins ...*pluginapi.Handle) *plugin.Registry {
	t.Helper()
	reg := plugin.NewRegistry()
	for _, h := range plugins {
		require.NoError(t, reg.Register(h.Name(), plugin.StateReady, h))
	}
	reg.Seal()
	return reg
}

func TestDispatcher_PlayerJoined_RegistrationOrder(t *testing.T) {
	var joins []string
	reg := dispatchRegistry(t,
		readyHandle(t, "alpha", &greeter{name: "alpha", joins: &joins}),
		readyHandle(t, "bravo", &greeter{name: "bravo", joins: &joins}),
		readyHandle(t, "charlie", &greeter{name: "charlie", joins: &joins}),
	)

	d := plugin.NewDispatcher(reg)
	d.PlayerJoined(context.Background(), nil, nil)

	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, joins)
}

func TestDispatcher_PlayerJoined_FailureIsolation(t *testing.T) {
	var joins []string
	reg := dispatchRegistry(t,
		readyHandle(t, "alpha", &greeter{name: "alpha", joins: &joins}),
		readyHandle(t, "flaky", &greeter{name: "flaky", err: errors.New("no thanks")}),
		readyHandle(t, "bomb", &greeter{name: "bomb", panics: true}),
		readyHandle(t, "charlie", &greeter{name: "charlie", joins: &joins}),
	)

	d := plugin.NewDispatcher(reg)
	d.PlayerJoined(context.Background(), nil, nil)

	// Errors and panics in earlier plugins never starve later ones.
	assert.Equal(t, []string{"alpha", "charlie"}, joins)
}

func TestDispatcher_PlayerJoined_SkipsFailedPlugins(t *testing.T) {
	var joins []string
	reg := dispatchRegistry(t,
		readyHandle(t, "alpha", &greeter{name: "alpha", joins: &joins}),
		readyHandle(t, "gone", &greeter{name: "gone", joins: &joins}),
	)
	reg.MarkFailed("gone")

	d := plugin.NewDispatcher(reg)
	d.PlayerJoined(context.Background(), nil, nil)

	assert.Equal(t, []string{"alpha"}, joins)
}

func TestDispatcher_DispatchEvent_FiltersByPattern(t *testing.T) {
	chatty := &noteTaker{}
	all := &noteTaker{}
	reg := dispatchRegistry(t,
		readyHandle(t, "chatty", chatty),
		readyHandle(t, "all", all),
	)

	d := plugin.NewDispatcher(reg)
	require.NoError(t, d.SetEventFilter("chatty", []string{"chat.*"}))

	d.DispatchEvent(context.Background(), pluginapi.Event{Type: "chat.say"})
	d.DispatchEvent(context.Background(), pluginapi.Event{Type: "player.joined"})

	assert.Equal(t, []string{"chat.say"}, chatty.seen)
	assert.Equal(t, []string{"chat.say", "player.joined"}, all.seen, "empty filter means every event")
}

func TestDispatcher_DispatchEvent_GlobIsSegmentAware(t *testing.T) {
	h := &noteTaker{}
	reg := dispatchRegistry(t, readyHandle(t, "chatty", h))

	d := plugin.NewDispatcher(reg)
	require.NoError(t, d.SetEventFilter("chatty", []string{"chat.*"}))

	// '*' does not cross the '.' separator.
	d.DispatchEvent(context.Background(), pluginapi.Event{Type: "chat.room.say"})
	assert.Empty(t, h.seen)

	require.NoError(t, d.SetEventFilter("chatty", []string{"chat.**"}))
	d.DispatchEvent(context.Background(), pluginapi.Event{Type: "chat.room.say"})
	assert.Equal(t, []string{"chat.room.say"}, h.seen)
}

func TestDispatcher_SetEventFilter_Invalid(t *testing.T) {
	d := plugin.NewDispatcher(plugin.NewRegistry())
	err := d.SetEventFilter("chatty", []string{"chat.["})
	require.Error(t, err)
}

func TestDispatcher_Metrics(t *testing.T) {
	promReg := prometheus.NewRegistry()
	metrics := plugin.NewMetrics(promReg)

	reg := dispatchRegistry(t,
		readyHandle(t, "ok-plugin", &noteTaker{}),
		readyHandle(t, "err-plugin", &failingHandler{}),
	)

	d := plugin.NewDispatcher(reg, plugin.WithDispatchMetrics(metrics))
	require.NoError(t, d.SetEventFilter("ok-plugin", []string{"chat.*"}))

	d.DispatchEvent(context.Background(), pluginapi.Event{Type: "chat.say"})
	d.DispatchEvent(context.Background(), pluginapi.Event{Type: "player.joined"})

	capLabel := string(pluginapi.CapEventHandler)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Dispatches.WithLabelValues("ok-plugin", capLabel, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Dispatches.WithLabelValues("ok-plugin", capLabel, "filtered")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Dispatches.WithLabelValues("err-plugin", capLabel, "error")))
}

// failingHandler always errors on dispatch.
type failingHandler struct{}

func (failingHandler) HandleEvent(context.Context, pluginapi.Event) error {
	return errors.New("handler down")
}

func TestManager_DispatcherAppliesManifestFilters(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "chatty", "name: chatty\nversion: 1.0.0\nentrypoint: chatty\nevents: [\"chat.*\"]\n")

	seen := &noteTaker{}
	cat := plugin.NewCatalog()
	cat.Register("chatty", func(context.Context, *pluginapi.Host) (any, error) {
		return seen, nil
	})

	m := plugin.NewManager(dir, plugin.WithCatalog(cat))
	_, err := m.Startup(context.Background())
	require.NoError(t, err)

	d := m.Dispatcher()
	d.DispatchEvent(context.Background(), pluginapi.Event{Type: "chat.say"})
	d.DispatchEvent(context.Background(), pluginapi.Event{Type: "player.joined"})

	assert.Equal(t, []string{"chat.say"}, seen.seen)
}
