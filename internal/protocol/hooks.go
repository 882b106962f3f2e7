// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package protocol

import (
	"context"
	"errors"

	"github.com/samber/oops"

	"github.com/holomush/sessiongate/internal/transport"
	"github.com/holomush/sessiongate/pkg/errutil"
)

// Stage names the point of the session lifecycle where an error happened.
type Stage string

// Session error stages.
const (
	StageAccountLoad     Stage = "account_load"
	StageInitialization  Stage = "initialization"
	StagePermissionCheck Stage = "permission_check"
	StageTermination     Stage = "termination"
)

// Account is the external account record a login resolves to.
type Account[ID comparable] interface {
	AccountID() ID
	// Preview is the display-safe projection shared with other sessions.
	Preview() any
}

// AccountFinder loads account records. A nil record with a nil error means
// the account does not exist.
type AccountFinder[ID comparable] interface {
	FindAccount(ctx context.Context, id ID) (Account[ID], error)
}

// AccountFinderFunc adapts a function to AccountFinder.
type AccountFinderFunc[ID comparable] func(ctx context.Context, id ID) (Account[ID], error)

// FindAccount calls f.
func (f AccountFinderFunc[ID]) FindAccount(ctx context.Context, id ID) (Account[ID], error) {
	return f(ctx, id)
}

// StartingHook runs after a session was added, before any session message
// is handled.
type StartingHook[ID comparable] func(ctx context.Context, conn transport.ConnID, account Account[ID]) error

// TerminatingHook runs before a session is removed. reason is nil for a
// client logout.
type TerminatingHook func(ctx context.Context, conn transport.ConnID, reason *KickReason) error

// ErrorHook receives every hook and permission-check failure.
type ErrorHook func(ctx context.Context, conn transport.ConnID, stage Stage, err error) error

// Hooks are fixed at construction and invoked in slice order.
//
// Starting hooks stop at the first failure. Terminating hooks all run and
// their failures are joined into one Termination error. An error or panic
// from the Error hook is logged and dropped.
type Hooks[ID comparable] struct {
	Starting    []StartingHook[ID]
	Terminating []TerminatingHook
	Error       ErrorHook
}

func (s *Server[ID]) runStarting(ctx context.Context, conn transport.ConnID, account Account[ID]) error {
	for i, hook := range s.hooks.Starting {
		err := errutil.Safely("HOOK_PANIC", func() error {
			return hook(ctx, conn, account)
		})
		if err != nil {
			return oops.In("protocol").Code("SESSION_INIT_FAILED").
				With("conn_id", conn).
				With("hook", i).
				Wrap(err)
		}
	}
	return nil
}

func (s *Server[ID]) runTerminating(ctx context.Context, conn transport.ConnID, reason *KickReason) error {
	var errs []error
	for i, hook := range s.hooks.Terminating {
		err := errutil.Safely("HOOK_PANIC", func() error {
			return hook(ctx, conn, reason)
		})
		if err != nil {
			errs = append(errs, oops.In("protocol").With("hook", i).Wrap(err))
		}
	}
	return errors.Join(errs...)
}

// reportError routes err to the error hook. A failing error hook never
// affects the caller; both errors are logged instead.
func (s *Server[ID]) reportError(ctx context.Context, conn transport.ConnID, stage Stage, err error) {
	RecordHookError(stage)

	if s.hooks.Error == nil {
		errutil.LogErrorContext(ctx, s.logger, "session error", err,
			"conn_id", conn,
			"stage", string(stage),
		)
		return
	}

	hookErr := errutil.Safely("HOOK_PANIC", func() error {
		return s.hooks.Error(ctx, conn, stage, err)
	})
	if hookErr != nil {
		errutil.LogErrorContext(ctx, s.logger, "session error hook failed", hookErr,
			"conn_id", conn,
			"stage", string(stage),
			"original_error", err.Error(),
		)
	}
}
