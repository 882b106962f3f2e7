// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package protocol

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/sessiongate/internal/transport"
	"github.com/holomush/sessiongate/pkg/errutil"
)

// ErrAccountNotFound is reported at StageAccountLoad when the finder has no
// record for an accepted account id.
var ErrAccountNotFound = errors.New("account not found")

// MessageHandler handles a decoded message of type T.
type MessageHandler[T any] func(ctx context.Context, conn transport.ConnID, msg T) error

// Decode adapts a typed handler to a transport handler. A body that does not
// decode into T fails with INVALID_MESSAGE and the handler is not called.
func Decode[T any](fn MessageHandler[T]) transport.Handler {
	return func(ctx context.Context, conn transport.ConnID, payload transport.Payload) error {
		var msg T
		if payload != nil {
			if err := payload.Decode(&msg); err != nil {
				return oops.In("protocol").Code("INVALID_MESSAGE").With("conn_id", conn).Wrap(err)
			}
		}
		return fn(ctx, conn, msg)
	}
}

// LoginFunc validates a login message of type T. It runs inside the gate
// after the pending entry was claimed, so it is called at most once per
// connection.
type LoginFunc[T any] func(ctx context.Context, conn transport.ConnID, msg T) (LoginResult, error)

// HandleLogin registers Login:<method> on mux. The handler is wrapped in
// LogoutRequired.
func HandleLogin[ID comparable, T any](s *Server[ID], mux transport.Mux, method string, fn LoginFunc[T]) error {
	if method == "" {
		return oops.In("protocol").Code("INVALID_METHOD").Errorf("login method name cannot be empty")
	}
	if fn == nil {
		return oops.In("protocol").Code("INVALID_METHOD").With("method", method).Errorf("login handler cannot be nil")
	}

	handler := Decode(func(ctx context.Context, conn transport.ConnID, msg T) error {
		return s.Login(ctx, conn, method, func(ctx context.Context) (LoginResult, error) {
			return fn(ctx, conn, msg)
		})
	})
	//nolint:wrapcheck // mux errors already carry their own domain
	return mux.Handle(LoginMessage(method), s.LogoutRequired(handler))
}

// Login claims conn's pending entry and completes a login attempt with
// attempt's result. If the entry was already claimed the call is a no-op.
func (s *Server[ID]) Login(ctx context.Context, conn transport.ConnID, method string, attempt func(ctx context.Context) (LoginResult, error)) error {
	ctx, span := tracer.Start(ctx, "protocol.login",
		trace.WithAttributes(
			attribute.String("conn.id", conn.String()),
			attribute.String("login.method", method),
		),
	)
	defer span.End()

	//nolint:wrapcheck // gate errors are already coded
	return s.gate.Do(ctx, func(ctx context.Context) error {
		if !s.logins.Remove(conn) {
			RecordLogin(method, OutcomeDropped)
			span.SetAttributes(attribute.Bool("login.dropped", true))
			s.logger.DebugContext(ctx, "login dropped, nothing to claim", "conn_id", conn, "method", method)
			return nil
		}
		defer s.updateGauges()

		var result LoginResult
		err := errutil.Safely("HANDLER_PANIC", func() error {
			var err error
			result, err = attempt(ctx)
			return err
		})
		if err != nil {
			RecordLogin(method, OutcomeHandlerError)
			span.RecordError(err)
			span.SetStatus(codes.Error, "login handler failed")
			errutil.LogErrorContext(ctx, s.logger, "login handler failed", err, "conn_id", conn, "method", method)
			s.close(ctx, conn)
			return nil
		}

		switch r := result.(type) {
		case Rejected:
			if r.Payload == nil {
				s.logger.WarnContext(ctx, "login rejected without a payload", "conn_id", conn, "method", method)
			}
			RecordLogin(method, OutcomeRejected)
			span.SetAttributes(attribute.String("login.outcome", OutcomeRejected))
			s.send(ctx, conn, MsgFailed, r.Payload)
			s.close(ctx, conn)
		case Accepted[ID]:
			if r.Payload == nil {
				s.logger.WarnContext(ctx, "login accepted without a payload", "conn_id", conn, "method", method)
			}
			outcome := s.accept(ctx, conn, r)
			RecordLogin(method, outcome)
			span.SetAttributes(attribute.String("login.outcome", outcome))
		default:
			RecordLogin(method, OutcomeInvalidResult)
			span.SetStatus(codes.Error, "invalid login result")
			s.logger.ErrorContext(ctx, "login handler returned an invalid result",
				"conn_id", conn,
				"method", method,
				"result_type", typeName(result),
			)
			s.close(ctx, conn)
		}
		return nil
	})
}

// accept completes an accepted login. It runs inside the gate.
func (s *Server[ID]) accept(ctx context.Context, conn transport.ConnID, r Accepted[ID]) string {
	switch Resolve(s.policy, len(s.store.ForAccount(r.AccountID))) {
	case RejectNew:
		s.send(ctx, conn, MsgAccountAlreadyInUse, nil)
		s.close(ctx, conn)
		return OutcomeAccountInUse
	case GhostExisting:
		s.kickAccount(ctx, r.AccountID, Ghosted())
	case Proceed:
	}

	account, err := s.accounts.FindAccount(ctx, r.AccountID)
	if err == nil && account == nil {
		err = oops.In("protocol").Code("ACCOUNT_NOT_FOUND").
			With("account_id", r.AccountID).
			Wrap(ErrAccountNotFound)
	}
	if err != nil {
		s.reportError(ctx, conn, StageAccountLoad, err)
		s.sendKicked(ctx, conn, AccountLoadError())
		s.close(ctx, conn)
		return OutcomeAccountLoad
	}

	s.send(ctx, conn, MsgOK, r.Payload)

	sess, err := s.store.Add(conn, r.AccountID)
	if err != nil {
		// Unreachable while every mutation goes through the gate.
		errutil.LogErrorContext(ctx, s.logger, "session bookkeeping out of sync", err, "conn_id", conn)
		s.close(ctx, conn)
		return OutcomeInitialization
	}
	s.logger.InfoContext(ctx, "session started",
		"conn_id", conn,
		"session_id", sess.ID().String(),
	)

	if err := s.runStarting(ctx, conn, account); err != nil {
		s.reportError(ctx, conn, StageInitialization, err)
		reason := SessionInitializationError()
		s.sendKicked(ctx, conn, reason)
		s.terminate(ctx, conn, &reason)
		return OutcomeInitialization
	}
	return OutcomeAccepted
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}
