// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DriftMUSH Contributors

// Package core contains the connection-facing game types: session records,
// domain events, and the per-connection event channel.
package core

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/driftmush/driftmush/pkg/pluginapi"
)

// EventType identifies the kind of event.
type EventType string

const (
	EventTypeJoin   EventType = "player.joined"
	EventTypeLeave  EventType = "player.left"
	EventTypeSay    EventType = "chat.say"
	EventTypeSystem EventType = "system"
)

// ActorKind identifies what type of entity caused an event.
type ActorKind uint8

const (
	ActorPlayer ActorKind = iota
	ActorSystem
	ActorPlugin
)

func (a ActorKind) String() string {
	switch a {
	case ActorPlayer:
		return "player"
	case ActorSystem:
		return "system"
	case ActorPlugin:
		return "plugin"
	default:
		return "unknown"
	}
}

// Actor represents who or what caused an event.
type Actor struct {
	Kind ActorKind
	ID   string // connection ID, plugin name, or "system"
}

// Event represents something that happened on the server.
type Event struct {
	ID        ulid.ULID
	Stream    string // e.g. "conn:01ABC", "global"
	Type      EventType
	Timestamp time.Time
	Actor     Actor
	Payload   pluginapi.Payload // opaque structured document
}

// API converts the event to the plugin-facing representation.
func (e Event) API() pluginapi.Event {
	return pluginapi.Event{
		ID:      e.ID.String(),
		Stream:  e.Stream,
		Type:    string(e.Type),
		Actor:   e.Actor.ID,
		Payload: e.Payload,
	}
}
