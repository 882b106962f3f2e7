// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package transport defines the connection-level contract the session
// protocol runs on: opaque connection ids, fire-and-forget sends, decoded
// message handlers and connect/disconnect signals.
//
// Concrete transports (see internal/tcp) implement Sender and drive a
// Lifecycle; the protocol layer only ever sees these interfaces.
package transport

import (
	"context"
	"strconv"
)

// ConnID identifies one client link. It is assigned by the transport and is
// never reused while the process runs.
type ConnID uint64

// String renders the id for logs.
func (c ConnID) String() string {
	return strconv.FormatUint(uint64(c), 10)
}

// Sender is the outbound half of a transport.
//
// Send queues a named message for conn and returns without waiting for
// delivery. Close flushes anything already queued for conn and then closes
// it; closing an unknown or already closed connection is not an error.
type Sender interface {
	Send(conn ConnID, name string, payload any) error
	Close(conn ConnID) error
}

// Payload is a decoded-on-demand message body.
type Payload interface {
	Decode(v any) error
}

// Handler processes one inbound message for conn.
type Handler func(ctx context.Context, conn ConnID, payload Payload) error

// Mux registers handlers by message name.
type Mux interface {
	Handle(name string, h Handler) error
}

// Lifecycle receives connection-level signals from a transport. Connected is
// called once before any message for conn is dispatched; Disconnected is
// called once after the link is gone, with the read error that ended it.
type Lifecycle interface {
	Connected(ctx context.Context, conn ConnID)
	Disconnected(ctx context.Context, conn ConnID, cause error)
}
