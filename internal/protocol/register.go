// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package protocol

import (
	"context"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/sessiongate/internal/transport"
	"github.com/holomush/sessiongate/pkg/errutil"
)

// RegisterFunc handles a registration message of type T. Like LoginFunc it
// runs inside the gate, at most once per connection.
type RegisterFunc[T any] func(ctx context.Context, conn transport.ConnID, msg T) (RegisterResult, error)

// HandleRegister registers Register:<method> on mux, wrapped in
// LogoutRequired. Each connection gets one registration attempt; it never
// creates a session, so the connection can log in afterwards.
func HandleRegister[ID comparable, T any](s *Server[ID], mux transport.Mux, method string, fn RegisterFunc[T]) error {
	if method == "" {
		return oops.In("protocol").Code("INVALID_METHOD").Errorf("register method name cannot be empty")
	}
	if fn == nil {
		return oops.In("protocol").Code("INVALID_METHOD").With("method", method).Errorf("register handler cannot be nil")
	}

	handler := Decode(func(ctx context.Context, conn transport.ConnID, msg T) error {
		return s.Register(ctx, conn, method, func(ctx context.Context) (RegisterResult, error) {
			return fn(ctx, conn, msg)
		})
	})
	//nolint:wrapcheck // mux errors already carry their own domain
	return mux.Handle(RegisterMessage(method), s.LogoutRequired(handler))
}

// Register claims conn's registration entry and sends the outcome of
// attempt. A handler error closes the connection without a reply. A
// connection that logged in meanwhile gets AlreadyLoggedIn and attempt is
// not run.
func (s *Server[ID]) Register(ctx context.Context, conn transport.ConnID, method string, attempt func(ctx context.Context) (RegisterResult, error)) error {
	ctx, span := tracer.Start(ctx, "protocol.register",
		trace.WithAttributes(
			attribute.String("conn.id", conn.String()),
			attribute.String("register.method", method),
		),
	)
	defer span.End()

	//nolint:wrapcheck // gate errors are already coded
	return s.gate.Do(ctx, func(ctx context.Context) error {
		// LogoutRequired ran before the gate; a login may have won since.
		if s.store.Exists(conn) || !s.logins.Has(conn) {
			RecordRegistration(method, OutcomeDropped)
			RecordDenial(gateLogoutRequired)
			span.SetAttributes(attribute.Bool("register.dropped", true))
			s.send(ctx, conn, MsgAlreadyLoggedIn, nil)
			return nil
		}
		if !s.registrations.Remove(conn) {
			RecordRegistration(method, OutcomeDropped)
			return nil
		}

		var result RegisterResult
		err := errutil.Safely("HANDLER_PANIC", func() error {
			var err error
			result, err = attempt(ctx)
			return err
		})
		if err != nil {
			RecordRegistration(method, OutcomeHandlerError)
			span.RecordError(err)
			errutil.LogErrorContext(ctx, s.logger, "register handler failed", err, "conn_id", conn, "method", method)
			s.close(ctx, conn)
			return nil
		}

		switch r := result.(type) {
		case Registered:
			RecordRegistration(method, OutcomeAccepted)
			s.send(ctx, conn, MsgRegisterOK, r.Payload)
		case RegisterRejected:
			RecordRegistration(method, OutcomeRejected)
			s.send(ctx, conn, MsgRegisterFailed, r.Payload)
		default:
			RecordRegistration(method, OutcomeInvalidResult)
			s.logger.ErrorContext(ctx, "register handler returned an invalid result",
				"conn_id", conn,
				"method", method,
				"result_type", typeName(result),
			)
			s.close(ctx, conn)
		}
		return nil
	})
}
