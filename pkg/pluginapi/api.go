// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DriftMUSH Contributors

// Package pluginapi defines the compile-time contracts shared between the
// server core and independently built plugins: capability interfaces, the
// per-connection event channel, the session accessor contract, and the
// constructor protocol.
//
// Plugins depend only on this package. They never depend on another plugin's
// concrete type; cross-plugin calls go through a capability query on the
// other plugin's Handle.
package pluginapi

import "context"

// CapabilityID names a versioned capability contract.
//
// The version suffix is part of the identifier: a breaking change to a
// contract introduces a new ID rather than mutating the old one.
type CapabilityID string

// Capability IDs for the built-in contract set. NewHandle discovers these
// automatically via interface assertion.
const (
	CapConnectionHandler CapabilityID = "connection-handler.v1"
	CapEventHandler      CapabilityID = "event-handler.v1"
	CapPermissionAPI     CapabilityID = "permission-api.v1"
	CapChatAPI           CapabilityID = "chat-api.v1"
)

// Session is the accessor contract for a connected client's record.
//
// The record is shared between the transport layer and every plugin notified
// of the connection. All accessors are guarded by the record's own lock:
// many concurrent readers, exactly one writer at a time.
type Session interface {
	// ID returns the connection identifier.
	ID() string

	// Name returns the player name, or false if none has been set yet.
	Name() (string, bool)

	// SetName sets the player name.
	SetName(name string)

	// Attr returns a session attribute, or false if unset.
	Attr(key string) (string, bool)

	// SetAttr sets a session attribute.
	SetAttr(key, value string)
}

// Payload is the structured document carried by events. The core treats it
// as an opaque serializable value.
type Payload map[string]any

// Event is a domain event as seen by plugins.
type Event struct {
	ID     string
	Stream string
	Type   string
	Actor  string
	Payload
}

// HandlerFunc handles an inbound event on a connection's channel.
type HandlerFunc func(ctx context.Context, payload Payload)

// Emitter sends events to one or more connections.
type Emitter interface {
	// Emit sends an event with a structured payload.
	Emit(ctx context.Context, event string, payload Payload) error
}

// Channel is the per-connection bidirectional event channel handed to
// plugins at dispatch time. Implementations are safe for concurrent use.
type Channel interface {
	Emitter

	// Broadcast returns an emitter that fans out to every connection.
	Broadcast() Emitter

	// On registers a handler for inbound events of the given name.
	// Multiple handlers for the same event are invoked in registration order.
	On(event string, handler HandlerFunc)
}

// ConnectionHandler is invoked when a connection completes its handshake.
type ConnectionHandler interface {
	// PlayerJoined is called once per new connection, synchronously on the
	// goroutine handling that connection's lifecycle event. It must not
	// block; genuinely blocking work belongs on a background goroutine.
	PlayerJoined(ctx context.Context, ch Channel, sess Session) error
}

// EventHandler receives domain events matching the plugin's manifest
// event filters.
type EventHandler interface {
	HandleEvent(ctx context.Context, event Event) error
}

// PermissionAPI checks whether a session may perform an action.
type PermissionAPI interface {
	// Version reports the implementation version.
	Version() string

	// HasPermission reports whether the session holds the permission.
	HasPermission(sess Session, perm string) bool
}

// CapabilityProvider lets a plugin expose capabilities beyond the built-in
// contract set. The manager queries it once, right after construction.
type CapabilityProvider interface {
	// ExtraCapabilities returns custom capability accessors keyed by ID.
	ExtraCapabilities() map[CapabilityID]any
}

// ChatAPI renders chat messages.
type ChatAPI interface {
	// Version reports the implementation version.
	Version() string

	// FormatMessage renders a chat line for the given speaker.
	FormatMessage(sess Session, body string) string
}
