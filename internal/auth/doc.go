// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth holds the account model behind the session protocol and the
// Sample login and registration methods.
//
// # Accounts
//
// Account records are created with NewAccount, which validates the username,
// and persisted through a Repository. Three repositories exist: an in-memory
// one (MemoryRepository), PostgreSQL (auth/postgres) and Redis (auth/redis).
//
// # Methods
//
// Service.Mount registers Login:Sample and Register:Sample on a protocol
// server. Service.FindAccount is the account finder the server uses after a
// login is accepted, and Service.StartingHook copies account roles into the
// session's system data under RolesKey.
package auth
