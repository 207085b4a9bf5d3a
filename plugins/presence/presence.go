// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DriftMUSH Contributors

// Package presence implements the presence plugin: it welcomes new
// connections and announces them to everyone else. It has no dependencies,
// which keeps it dispatchable even when other plugins fail to construct.
package presence

import (
	"context"
	"log/slog"

	"github.com/driftmush/driftmush/internal/plugin"
	"github.com/driftmush/driftmush/pkg/pluginapi"
)

func init() {
	plugin.RegisterConstructor("presence", New)
}

// Plugin announces joins on the global stream.
type Plugin struct {
	logger   *slog.Logger
	greeting string
}

var _ pluginapi.ConnectionHandler = (*Plugin)(nil)

// New constructs the plugin. Recognized config key: "greeting" (string).
func New(_ context.Context, host *pluginapi.Host) (any, error) {
	greeting := "Welcome to the server!"
	if g, ok := host.Config()["greeting"].(string); ok && g != "" {
		greeting = g
	}
	return &Plugin{
		logger:   host.Logger(),
		greeting: greeting,
	}, nil
}

// PlayerJoined greets the connection and announces it globally.
func (p *Plugin) PlayerJoined(ctx context.Context, ch pluginapi.Channel, sess pluginapi.Session) error {
	if err := ch.Emit(ctx, "system.welcome", pluginapi.Payload{
		"message": p.greeting,
	}); err != nil {
		return err
	}

	who, ok := sess.Name()
	if !ok {
		who = "a new player"
	}
	return ch.Broadcast().Emit(ctx, "presence.joined", pluginapi.Payload{
		"who":     who,
		"conn_id": sess.ID(),
	})
}
