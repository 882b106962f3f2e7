// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package access decides what a logged-in session may do.
//
// Permissions are colon-separated names such as "chat:say" or
// "session:kick". Roles grant glob patterns over them: "chat:*" matches
// every chat permission, "**" matches everything.
package access

import (
	"context"

	"github.com/samber/oops"

	"github.com/holomush/sessiongate/internal/protocol"
	"github.com/holomush/sessiongate/internal/session"
	"github.com/holomush/sessiongate/internal/transport"
)

// Grants answers whether any of a set of roles carries a permission.
type Grants interface {
	Allowed(roles []string, permission string) bool
}

// Require builds a permission check for protocol.Server.LoginRequiredWith.
// It reads the session's roles from rolesKey; a session with no roles
// recorded is denied.
func Require[ID comparable](grants Grants, store *session.Store[ID], rolesKey session.Key[[]string], permission string) protocol.PermissionCheck {
	return func(_ context.Context, conn transport.ConnID) (bool, error) {
		roles, ok, err := session.TryGet(store, conn, rolesKey)
		if err != nil {
			return false, oops.In("access").
				With("conn_id", conn).
				With("permission", permission).
				Wrap(err)
		}
		if !ok {
			return false, nil
		}
		return grants.Allowed(roles, permission), nil
	}
}
