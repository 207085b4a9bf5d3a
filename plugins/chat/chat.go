// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DriftMUSH Contributors

// Package chat implements the chat plugin. It depends on the permission
// plugin through the capability registry: it never imports the permission
// plugin's concrete type, only the PermissionAPI contract.
package chat

import (
	"context"
	"log/slog"

	"github.com/samber/oops"

	"github.com/driftmush/driftmush/internal/plugin"
	"github.com/driftmush/driftmush/pkg/pluginapi"
)

// Version is the ChatAPI contract version this plugin reports.
const Version = "1.0.0"

func init() {
	plugin.RegisterConstructor("chat", New)
}

// Plugin relays chat messages between connections, gated by a permission
// check on the speaker.
type Plugin struct {
	logger *slog.Logger
	perms  pluginapi.PermissionAPI
}

var (
	_ pluginapi.ConnectionHandler = (*Plugin)(nil)
	_ pluginapi.EventHandler      = (*Plugin)(nil)
	_ pluginapi.ChatAPI           = (*Plugin)(nil)
)

// New constructs the plugin. The manifest must declare a dependency on the
// permission plugin; construction fails if it is absent or lacks
// PermissionAPI.
func New(_ context.Context, host *pluginapi.Host) (any, error) {
	handle, err := host.Depend("permission")
	if err != nil {
		return nil, err
	}

	perms, ok := pluginapi.As[pluginapi.PermissionAPI](handle, pluginapi.CapPermissionAPI)
	if !ok {
		return nil, oops.Code("CHAT_DEPENDENCY_INVALID").
			With("dependency", handle.Name()).
			Errorf("plugin %q does not implement PermissionAPI", handle.Name())
	}

	logger := host.Logger()
	logger.Debug("using permission provider", "version", perms.Version())

	return &Plugin{
		logger: logger,
		perms:  perms,
	}, nil
}

// Version implements ChatAPI.
func (p *Plugin) Version() string { return Version }

// FormatMessage renders a chat line for the given speaker.
func (p *Plugin) FormatMessage(sess pluginapi.Session, body string) string {
	name, ok := sess.Name()
	if !ok {
		name = "someone"
	}
	return name + ` says, "` + body + `"`
}

// PlayerJoined wires the connection's inbound chat traffic: each chat.say
// is permission-checked and then broadcast to every connection.
func (p *Plugin) PlayerJoined(_ context.Context, ch pluginapi.Channel, sess pluginapi.Session) error {
	ch.On("chat.say", func(ctx context.Context, payload pluginapi.Payload) {
		body, _ := payload["body"].(string)
		if body == "" {
			return
		}

		if !p.perms.HasPermission(sess, "chat.say") {
			if err := ch.Emit(ctx, "chat.denied", pluginapi.Payload{
				"reason": "you do not have permission to speak",
			}); err != nil {
				p.logger.Warn("failed to emit chat denial",
					"conn_id", sess.ID(),
					"error", err)
			}
			return
		}

		if err := ch.Broadcast().Emit(ctx, "chat.message", pluginapi.Payload{
			"from": sess.ID(),
			"body": p.FormatMessage(sess, body),
		}); err != nil {
			p.logger.Warn("failed to broadcast chat message",
				"conn_id", sess.ID(),
				"error", err)
		}
	})
	return nil
}

// HandleEvent records chat traffic for the moderation audit trail. The
// manifest's event filter limits delivery to chat.* events.
func (p *Plugin) HandleEvent(_ context.Context, event pluginapi.Event) error {
	p.logger.Info("chat event",
		"event_id", event.ID,
		"event_type", event.Type,
		"actor", event.Actor)
	return nil
}
