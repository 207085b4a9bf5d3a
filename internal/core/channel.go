// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DriftMUSH Contributors

package core

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/driftmush/driftmush/pkg/pluginapi"
)

// GlobalStream is the stream broadcast emitters publish to.
const GlobalStream = "global"

// outboundBuffer is the per-connection outbound queue capacity.
const outboundBuffer = 100

// Channel is the per-connection bidirectional event channel. The transport
// layer drains Outbound and feeds inbound traffic through Deliver; plugins
// see the channel through the pluginapi.Channel contract.
type Channel struct {
	connID ulid.ULID
	bcast  *Broadcaster
	out    chan Event

	mu       sync.RWMutex
	closed   bool
	handlers map[string][]pluginapi.HandlerFunc
}

var _ pluginapi.Channel = (*Channel)(nil)

// NewChannel creates the event channel for a connection.
func NewChannel(connID ulid.ULID, bcast *Broadcaster) *Channel {
	return &Channel{
		connID:   connID,
		bcast:    bcast,
		out:      make(chan Event, outboundBuffer),
		handlers: make(map[string][]pluginapi.HandlerFunc),
	}
}

// Stream returns the connection's event stream name.
func (c *Channel) Stream() string {
	return "conn:" + c.connID.String()
}

// Emit queues an event for delivery to this connection. Emit never blocks;
// a full outbound queue is an error, not a stall.
func (c *Channel) Emit(_ context.Context, event string, payload pluginapi.Payload) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return oops.Code("CHANNEL_CLOSED").
			With("conn_id", c.connID.String()).
			With("event", event).
			Errorf("channel closed")
	}

	select {
	case c.out <- c.newEvent(event, payload):
		return nil
	default:
		return oops.Code("CHANNEL_BUFFER_FULL").
			With("conn_id", c.connID.String()).
			With("event", event).
			Errorf("outbound buffer full")
	}
}

// Broadcast returns an emitter fanning out to every subscriber of the
// global stream.
func (c *Channel) Broadcast() pluginapi.Emitter {
	return broadcastEmitter{c}
}

// On registers a handler for inbound events of the given name. Handlers for
// the same event run in registration order.
func (c *Channel) On(event string, handler pluginapi.HandlerFunc) {
	if handler == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], handler)
}

// Deliver invokes the registered handlers for an inbound event. Called by
// the transport layer on the connection's goroutine.
func (c *Channel) Deliver(ctx context.Context, event string, payload pluginapi.Payload) {
	c.mu.RLock()
	handlers := make([]pluginapi.HandlerFunc, len(c.handlers[event]))
	copy(handlers, c.handlers[event])
	c.mu.RUnlock()

	for _, handler := range handlers {
		handler(ctx, payload)
	}
}

// Outbound exposes the queued events for the transport layer to drain.
func (c *Channel) Outbound() <-chan Event {
	return c.out
}

// Close marks the channel closed and releases the outbound queue. Emit
// calls after Close return an error.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.out)
}

func (c *Channel) newEvent(event string, payload pluginapi.Payload) Event {
	return Event{
		ID:        NewULID(),
		Stream:    c.Stream(),
		Type:      EventType(event),
		Timestamp: time.Now(),
		Actor:     Actor{Kind: ActorSystem, ID: c.connID.String()},
		Payload:   payload,
	}
}

// broadcastEmitter publishes to the global stream via the broadcaster.
type broadcastEmitter struct {
	ch *Channel
}

func (b broadcastEmitter) Emit(_ context.Context, event string, payload pluginapi.Payload) error {
	b.ch.bcast.Broadcast(Event{
		ID:        NewULID(),
		Stream:    GlobalStream,
		Type:      EventType(event),
		Timestamp: time.Now(),
		Actor:     Actor{Kind: ActorSystem, ID: b.ch.connID.String()},
		Payload:   payload,
	})
	return nil
}
