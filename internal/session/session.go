// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package session holds the authenticated-session bookkeeping: one index by
// connection, one by account, and a per-session data bag.
//
// The store guards its own indexes, so reads are safe from any goroutine.
// Decisions that lead to writes must still be made under the protocol's
// exclusion gate; the store does not serialize read-then-write sequences.
package session

import (
	"cmp"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/lo"
	"github.com/samber/oops"

	"github.com/holomush/sessiongate/internal/transport"
)

// ErrMissingSession is wrapped by every operation that needs a session for a
// connection that has none.
var ErrMissingSession = errors.New("missing session")

// Session binds one connection to one authenticated account.
// Identity fields never change after creation.
type Session[ID comparable] struct {
	id        ulid.ULID
	conn      transport.ConnID
	account   ID
	startedAt time.Time
	data      *bag
}

// ID returns the session's unique id.
func (s *Session[ID]) ID() ulid.ULID { return s.id }

// Conn returns the owning connection.
func (s *Session[ID]) Conn() transport.ConnID { return s.conn }

// Account returns the bound account id.
func (s *Session[ID]) Account() ID { return s.account }

// StartedAt returns when the session was added.
func (s *Session[ID]) StartedAt() time.Time { return s.startedAt }

// Store indexes sessions by connection and by account. Both indexes are
// updated under one lock so they always agree.
type Store[ID comparable] struct {
	mu        sync.RWMutex
	byConn    map[transport.ConnID]*Session[ID]
	byAccount map[ID]map[transport.ConnID]*Session[ID]
	now       func() time.Time
}

// NewStore creates an empty store.
func NewStore[ID comparable]() *Store[ID] {
	return &Store[ID]{
		byConn:    make(map[transport.ConnID]*Session[ID]),
		byAccount: make(map[ID]map[transport.ConnID]*Session[ID]),
		now:       time.Now,
	}
}

// Add creates the session for conn. A second Add for the same connection is
// a sequencing bug and fails with SESSION_EXISTS.
func (s *Store[ID]) Add(conn transport.ConnID, account ID) (*Session[ID], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byConn[conn]; ok {
		return nil, oops.In("session").Code("SESSION_EXISTS").
			With("conn_id", conn).
			With("session_id", existing.id.String()).
			Errorf("connection already has a session")
	}

	sess := &Session[ID]{
		id:        NewID(),
		conn:      conn,
		account:   account,
		startedAt: s.now(),
		data:      newBag(),
	}
	s.byConn[conn] = sess

	conns, ok := s.byAccount[account]
	if !ok {
		conns = make(map[transport.ConnID]*Session[ID])
		s.byAccount[account] = conns
	}
	conns[conn] = sess

	return sess, nil
}

// Remove deletes the session for conn from both indexes and reports whether
// one existed.
func (s *Store[ID]) Remove(conn transport.ConnID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byConn[conn]
	if !ok {
		return false
	}
	delete(s.byConn, conn)

	if conns, ok := s.byAccount[sess.account]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(s.byAccount, sess.account)
		}
	}
	return true
}

// Exists reports whether conn has a session.
func (s *Store[ID]) Exists(conn transport.ConnID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byConn[conn]
	return ok
}

// Get returns the session for conn.
func (s *Store[ID]) Get(conn transport.ConnID) (*Session[ID], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.byConn[conn]
	return sess, ok
}

// ForAccount returns a snapshot of the account's sessions, oldest first.
// The slice is owned by the caller and is unaffected by later mutations.
func (s *Store[ID]) ForAccount(account ID) []*Session[ID] {
	s.mu.RLock()
	sessions := lo.Values(s.byAccount[account])
	s.mu.RUnlock()

	sortSessions(sessions)
	return sessions
}

// HasAccount reports whether the account has at least one session.
func (s *Store[ID]) HasAccount(account ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byAccount[account]) > 0
}

// All returns a snapshot of every session, oldest first.
func (s *Store[ID]) All() []*Session[ID] {
	s.mu.RLock()
	sessions := lo.Values(s.byConn)
	s.mu.RUnlock()

	sortSessions(sessions)
	return sessions
}

// Conns returns the connections that currently have a session.
func (s *Store[ID]) Conns() []transport.ConnID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Keys(s.byConn)
}

// Len returns the number of sessions.
func (s *Store[ID]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byConn)
}

// AccountCount returns the number of distinct accounts with a session.
func (s *Store[ID]) AccountCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byAccount)
}

func (s *Store[ID]) lookup(conn transport.ConnID) (*Session[ID], error) {
	sess, ok := s.Get(conn)
	if !ok {
		return nil, oops.In("session").Code("SESSION_NOT_FOUND").
			With("conn_id", conn).
			Wrap(ErrMissingSession)
	}
	return sess, nil
}

func sortSessions[ID comparable](sessions []*Session[ID]) {
	slices.SortFunc(sessions, func(a, b *Session[ID]) int {
		if c := a.startedAt.Compare(b.startedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.conn, b.conn)
	})
}
