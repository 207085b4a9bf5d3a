// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DriftMUSH Contributors

// Package gateway bridges the transport layer and the plugin core. The
// transport (telnet, websocket - external to this core) reports connection
// lifecycle; the connector turns that into session records, event channels,
// and plugin dispatches.
package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/driftmush/driftmush/internal/core"
	"github.com/driftmush/driftmush/pkg/pluginapi"
)

// Dispatcher is the slice of the event dispatcher the connector needs.
type Dispatcher interface {
	PlayerJoined(ctx context.Context, ch pluginapi.Channel, sess pluginapi.Session)
	DispatchEvent(ctx context.Context, event pluginapi.Event)
}

// Connector owns the per-connection wiring: one session record and one
// event channel per live connection, with plugin dispatch on the lifecycle
// edges. Safe for concurrent use; each connection's callbacks are expected
// on that connection's goroutine.
type Connector struct {
	sessions   *core.SessionManager
	bcast      *core.Broadcaster
	dispatcher Dispatcher
	logger     *slog.Logger

	mu       sync.Mutex
	channels map[ulid.ULID]*core.Channel
}

// NewConnector creates a connector over the given session manager,
// broadcaster, and dispatcher.
func NewConnector(sessions *core.SessionManager, bcast *core.Broadcaster, dispatcher Dispatcher, logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{
		sessions:   sessions,
		bcast:      bcast,
		dispatcher: dispatcher,
		logger:     logger,
		channels:   make(map[ulid.ULID]*core.Channel),
	}
}

// Connect handles a connection that completed its handshake: it creates the
// shared session record and event channel, notifies every interested plugin
// synchronously, and then publishes the join as a domain event.
func (c *Connector) Connect(ctx context.Context) (*core.Session, *core.Channel) {
	connID := core.NewULID()
	sess := c.sessions.Connect(connID)
	ch := core.NewChannel(connID, c.bcast)

	c.mu.Lock()
	c.channels[connID] = ch
	c.mu.Unlock()

	c.dispatcher.PlayerJoined(ctx, ch, sess)

	c.dispatcher.DispatchEvent(ctx, core.Event{
		ID:        core.NewULID(),
		Stream:    core.GlobalStream,
		Type:      core.EventTypeJoin,
		Timestamp: time.Now(),
		Actor:     core.Actor{Kind: core.ActorPlayer, ID: connID.String()},
		Payload:   pluginapi.Payload{"conn_id": connID.String()},
	}.API())

	c.logger.Info("connection joined", "conn_id", connID.String())
	return sess, ch
}

// Disconnect tears down a connection's wiring and publishes the leave event.
func (c *Connector) Disconnect(ctx context.Context, connID ulid.ULID) error {
	c.mu.Lock()
	ch, ok := c.channels[connID]
	delete(c.channels, connID)
	c.mu.Unlock()

	if !ok {
		return oops.Code("CONNECTION_NOT_FOUND").
			With("conn_id", connID.String()).
			Errorf("no channel for connection %s", connID.String())
	}
	ch.Close()

	if err := c.sessions.Disconnect(connID); err != nil {
		return err
	}

	c.dispatcher.DispatchEvent(ctx, core.Event{
		ID:        core.NewULID(),
		Stream:    core.GlobalStream,
		Type:      core.EventTypeLeave,
		Timestamp: time.Now(),
		Actor:     core.Actor{Kind: core.ActorPlayer, ID: connID.String()},
		Payload:   pluginapi.Payload{"conn_id": connID.String()},
	}.API())

	c.logger.Info("connection left", "conn_id", connID.String())
	return nil
}

// Deliver routes an inbound transport event to the connection's channel
// handlers and then to plugin event handlers.
func (c *Connector) Deliver(ctx context.Context, connID ulid.ULID, event string, payload pluginapi.Payload) error {
	c.mu.Lock()
	ch, ok := c.channels[connID]
	c.mu.Unlock()

	if !ok {
		return oops.Code("CONNECTION_NOT_FOUND").
			With("conn_id", connID.String()).
			Errorf("no channel for connection %s", connID.String())
	}

	if sess := c.sessions.Get(connID); sess != nil {
		sess.Touch()
	}
	ch.Deliver(ctx, event, payload)

	c.dispatcher.DispatchEvent(ctx, pluginapi.Event{
		ID:      core.NewULID().String(),
		Stream:  ch.Stream(),
		Type:    event,
		Actor:   connID.String(),
		Payload: payload,
	})
	return nil
}
