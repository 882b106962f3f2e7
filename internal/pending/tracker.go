// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package pending tracks connections that finished the transport handshake
// but have not logged in yet.
package pending

import (
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/holomush/sessiongate/internal/transport"
)

type entry struct {
	waited   time.Duration
	notified bool
}

// Tracker holds pending entries and their accumulated wait. Remove is the
// claim operation: for any entry exactly one caller observes true.
type Tracker struct {
	mu      sync.Mutex
	timeout time.Duration
	entries map[transport.ConnID]*entry
}

// NewTracker creates a tracker. A timeout of zero or less disables timeout
// detection.
func NewTracker(timeout time.Duration) *Tracker {
	return &Tracker{
		timeout: timeout,
		entries: make(map[transport.ConnID]*entry),
	}
}

// Timeout returns the configured threshold.
func (t *Tracker) Timeout() time.Duration {
	return t.timeout
}

// Add starts tracking conn. It returns false if conn was already pending.
func (t *Tracker) Add(conn transport.ConnID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[conn]; ok {
		return false
	}
	t.entries[conn] = &entry{}
	return true
}

// Remove stops tracking conn and reports whether it was pending.
func (t *Tracker) Remove(conn transport.ConnID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[conn]; !ok {
		return false
	}
	delete(t.entries, conn)
	return true
}

// Has reports whether conn is pending.
func (t *Tracker) Has(conn transport.ConnID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[conn]
	return ok
}

// Waited returns how long conn has been pending.
func (t *Tracker) Waited(conn transport.ConnID) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[conn]
	if !ok {
		return 0, false
	}
	return e.waited, true
}

// Len returns the number of pending connections.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Conns returns the pending connections.
func (t *Tracker) Conns() []transport.ConnID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return lo.Keys(t.entries)
}

// Tick adds delta to every entry's wait and returns the connections whose
// wait reached the timeout on this tick. Each entry is reported once; entries
// are never removed here.
func (t *Tracker) Tick(delta time.Duration) []transport.ConnID {
	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []transport.ConnID
	for conn, e := range t.entries {
		e.waited += delta
		if t.timeout > 0 && !e.notified && e.waited >= t.timeout {
			e.notified = true
			expired = append(expired, conn)
		}
	}
	return expired
}
