// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package protocol implements the session-authentication layer that sits on
// top of a transport: handshake tracking, login and registration methods,
// logout, administrative kicks and cleanup after abrupt disconnects.
//
// Every operation that mutates sessions or pending logins runs inside one
// exclusion gate per Server, so the session indexes and the pending set are
// always observed in a consistent state. Hooks run inside that gate and must
// not call gated Server methods themselves; doing so returns ErrReentrant.
//
// A typical setup:
//
//	srv, err := protocol.NewServer(protocol.Config[ulid.ULID]{
//		Transport: tcpServer,
//		Accounts:  accounts,
//		Policy:    protocol.PolicyGhost,
//	})
//	err = srv.Mount(router)
//	err = protocol.HandleLogin(srv, router, "Sample", loginSample)
//	go srv.Run(ctx)
package protocol
