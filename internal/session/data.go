// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package session

import (
	"sync"

	"github.com/samber/oops"

	"github.com/holomush/sessiongate/internal/transport"
)

type namespace uint8

const (
	userNamespace namespace = iota
	systemNamespace
)

func (n namespace) String() string {
	if n == systemNamespace {
		return "system"
	}
	return "user"
}

// Key names a typed slot in a session's data bag. Features declare their
// keys once, usually as package variables:
//
//	var nicknameKey = session.NewKey[string]("chat.nickname")
//
// User keys are dropped by ClearUserData; system keys belong to
// infrastructure and survive it. A user key and a system key with the same
// name never collide.
type Key[T any] struct {
	name string
	ns   namespace
}

// NewKey declares a user slot.
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name, ns: userNamespace}
}

// NewSystemKey declares an infrastructure slot.
func NewSystemKey[T any](name string) Key[T] {
	return Key[T]{name: name, ns: systemNamespace}
}

// Name returns the slot name.
func (k Key[T]) Name() string { return k.name }

// System reports whether the key lives in the infrastructure namespace.
func (k Key[T]) System() bool { return k.ns == systemNamespace }

type bag struct {
	mu     sync.Mutex
	values [2]map[string]any
}

func newBag() *bag {
	return &bag{values: [2]map[string]any{{}, {}}}
}

func (b *bag) get(ns namespace, name string) (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.values[ns][name]
	return v, ok
}

func (b *bag) set(ns namespace, name string, v any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[ns][name] = v
}

func (b *bag) remove(ns namespace, name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.values[ns][name]
	delete(b.values[ns], name)
	return ok
}

func (b *bag) clear(userOnly bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[userNamespace] = map[string]any{}
	if !userOnly {
		b.values[systemNamespace] = map[string]any{}
	}
}

// Set stores value under key in conn's session.
func Set[ID comparable, T any](s *Store[ID], conn transport.ConnID, key Key[T], value T) error {
	sess, err := s.lookup(conn)
	if err != nil {
		return err
	}
	sess.data.set(key.ns, key.name, value)
	return nil
}

// Get returns the value under key. A missing slot fails with
// SESSION_DATA_MISSING.
func Get[ID comparable, T any](s *Store[ID], conn transport.ConnID, key Key[T]) (T, error) {
	v, ok, err := TryGet(s, conn, key)
	if err != nil {
		return v, err
	}
	if !ok {
		return v, oops.In("session").Code("SESSION_DATA_MISSING").
			With("conn_id", conn).
			With("key", key.name).
			With("namespace", key.ns.String()).
			Errorf("no value for key %q", key.name)
	}
	return v, nil
}

// TryGet returns the value under key and whether it was present.
func TryGet[ID comparable, T any](s *Store[ID], conn transport.ConnID, key Key[T]) (T, bool, error) {
	var zero T
	sess, err := s.lookup(conn)
	if err != nil {
		return zero, false, err
	}
	raw, ok := sess.data.get(key.ns, key.name)
	if !ok {
		return zero, false, nil
	}
	v, ok := raw.(T)
	if !ok {
		return zero, false, oops.In("session").Code("SESSION_DATA_TYPE").
			With("conn_id", conn).
			With("key", key.name).
			Errorf("value for key %q has type %T", key.name, raw)
	}
	return v, true, nil
}

// Remove deletes the slot and reports whether it existed.
func Remove[ID comparable, T any](s *Store[ID], conn transport.ConnID, key Key[T]) (bool, error) {
	sess, err := s.lookup(conn)
	if err != nil {
		return false, err
	}
	return sess.data.remove(key.ns, key.name), nil
}

// Contains reports whether the slot holds a value.
func Contains[ID comparable, T any](s *Store[ID], conn transport.ConnID, key Key[T]) (bool, error) {
	sess, err := s.lookup(conn)
	if err != nil {
		return false, err
	}
	_, ok := sess.data.get(key.ns, key.name)
	return ok, nil
}

// ClearUserData empties conn's data bag. With userOnly set, system slots
// are kept.
func (s *Store[ID]) ClearUserData(conn transport.ConnID, userOnly bool) error {
	sess, err := s.lookup(conn)
	if err != nil {
		return err
	}
	sess.data.clear(userOnly)
	return nil
}
