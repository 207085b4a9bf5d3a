// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DriftMUSH Contributors

package core

import (
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/driftmush/driftmush/pkg/pluginapi"
)

// Session is the shared record for one connected client. Its lifetime spans
// connection-accept to disconnect, and ownership is shared between the
// transport layer and every plugin notified of the connection. The record
// carries its own lock: many concurrent readers, exactly one writer.
type Session struct {
	connID ulid.ULID

	mu           sync.RWMutex
	name         string
	attrs        map[string]string
	lastActivity time.Time
}

// compile-time check: Session satisfies the plugin accessor contract.
var _ pluginapi.Session = (*Session)(nil)

// newSession creates a session for a connection. Sessions are created by
// the SessionManager, never directly.
func newSession(connID ulid.ULID) *Session {
	return &Session{
		connID:       connID,
		attrs:        make(map[string]string),
		lastActivity: time.Now(),
	}
}

// ID returns the connection identifier.
func (s *Session) ID() string { return s.connID.String() }

// ConnID returns the connection identifier as a ULID.
func (s *Session) ConnID() ulid.ULID { return s.connID }

// Name returns the player name, or false if none has been set.
func (s *Session) Name() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name, s.name != ""
}

// SetName sets the player name.
func (s *Session) SetName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
	s.lastActivity = time.Now()
}

// Attr returns a session attribute, or false if unset.
func (s *Session) Attr(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.attrs[key]
	return v, ok
}

// SetAttr sets a session attribute.
func (s *Session) SetAttr(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs[key] = value
	s.lastActivity = time.Now()
}

// Touch refreshes the last activity time.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

// LastActivity returns the last time the session had activity.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// SessionManager tracks live sessions by connection ID. Unlike the session
// records themselves, which are handed out as shared references, the
// manager's map is private and guarded by its own lock.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[ulid.ULID]*Session
}

// NewSessionManager creates a session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[ulid.ULID]*Session),
	}
}

// Connect creates and registers a session for a new connection. If the
// connection already has a session, the existing record is returned.
func (sm *SessionManager) Connect(connID ulid.ULID) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if existing, ok := sm.sessions[connID]; ok {
		slog.Debug("connect called for existing session", "conn_id", connID.String())
		return existing
	}

	session := newSession(connID)
	sm.sessions[connID] = session
	return session
}

// Get returns the session for a connection, or nil if none exists.
func (sm *SessionManager) Get(connID ulid.ULID) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[connID]
}

// Disconnect removes a connection's session. Plugins still holding the
// record may keep reading it; it is simply no longer listed.
func (sm *SessionManager) Disconnect(connID ulid.ULID) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, ok := sm.sessions[connID]; !ok {
		return oops.Code("SESSION_NOT_FOUND").
			With("conn_id", connID.String()).
			Errorf("session not found for connection %s", connID.String())
	}
	delete(sm.sessions, connID)
	return nil
}

// ListActive returns the live session records. The slice is a copy; the
// records are shared.
func (sm *SessionManager) ListActive() []*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	result := make([]*Session, 0, len(sm.sessions))
	for _, session := range sm.sessions {
		result = append(result, session)
	}
	return result
}
