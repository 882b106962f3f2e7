// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package protocol

import (
	"context"

	"github.com/holomush/sessiongate/internal/transport"
	"github.com/holomush/sessiongate/pkg/errutil"
)

// Gate names used in denial metrics.
const (
	gateLoginRequired  = "login_required"
	gatePermission     = "permission"
	gateLogoutRequired = "logout_required"
)

// PermissionCheck decides whether conn may run a handler.
type PermissionCheck func(ctx context.Context, conn transport.ConnID) (bool, error)

// LoginRequired only runs next for connections with a session; others get
// NotLoggedIn.
func (s *Server[ID]) LoginRequired(next transport.Handler) transport.Handler {
	return func(ctx context.Context, conn transport.ConnID, payload transport.Payload) error {
		if !s.store.Exists(conn) {
			RecordDenial(gateLoginRequired)
			s.send(ctx, conn, MsgNotLoggedIn, nil)
			return nil
		}
		return next(ctx, conn, payload)
	}
}

// LoginRequiredWith is LoginRequired plus a permission check. Denied
// connections get Forbidden. A check that fails or panics is reported at
// StagePermissionCheck and counts as a denial.
func (s *Server[ID]) LoginRequiredWith(check PermissionCheck, next transport.Handler) transport.Handler {
	return s.LoginRequired(func(ctx context.Context, conn transport.ConnID, payload transport.Payload) error {
		var allowed bool
		err := errutil.Safely("HANDLER_PANIC", func() error {
			var err error
			allowed, err = check(ctx, conn)
			return err
		})
		if err != nil {
			s.reportError(ctx, conn, StagePermissionCheck, err)
			allowed = false
		}
		if !allowed {
			RecordDenial(gatePermission)
			s.send(ctx, conn, MsgForbidden, nil)
			return nil
		}
		return next(ctx, conn, payload)
	})
}

// LogoutRequired only runs next for connections still waiting to log in;
// others get AlreadyLoggedIn.
func (s *Server[ID]) LogoutRequired(next transport.Handler) transport.Handler {
	return func(ctx context.Context, conn transport.ConnID, payload transport.Payload) error {
		if !s.logins.Has(conn) {
			RecordDenial(gateLogoutRequired)
			s.send(ctx, conn, MsgAlreadyLoggedIn, nil)
			return nil
		}
		return next(ctx, conn, payload)
	}
}
