// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package tcp is a line-delimited JSON transport. Every line, in either
// direction, is one envelope:
//
//	{"name": "Login:Sample", "payload": {"username": "bob", "password": "x"}}
//
// Inbound messages of one connection are handled in order; handlers of
// different connections run concurrently on a bounded worker pool.
package tcp
