// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DriftMUSH Contributors

package plugin

import "sync/atomic"

// State is a plugin's lifecycle tag. Transitions run Uninitialized ->
// Initializing -> Ready | Failed; Ready and Failed are terminal, except that
// a Ready plugin may still be marked Failed on a runtime fault report.
type State uint32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// stateCell is a per-entry atomic state holder. Readers of one entry never
// block on transitions of another.
type stateCell struct {
	v atomic.Uint32
}

func (c *stateCell) load() State {
	return State(c.v.Load())
}

func (c *stateCell) store(s State) {
	c.v.Store(uint32(s))
}
