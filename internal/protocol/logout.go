// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package protocol

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/sessiongate/internal/transport"
)

// Logout ends conn's session at the client's request: LoggedOut is sent,
// terminating hooks run with a nil reason, the session is removed and the
// connection closed. A connection without a session is left alone.
func (s *Server[ID]) Logout(ctx context.Context, conn transport.ConnID) error {
	ctx, span := tracer.Start(ctx, "protocol.logout",
		trace.WithAttributes(attribute.String("conn.id", conn.String())),
	)
	defer span.End()

	//nolint:wrapcheck // gate errors are already coded
	return s.gate.Do(ctx, func(ctx context.Context) error {
		if !s.store.Exists(conn) {
			return nil
		}
		s.send(ctx, conn, MsgLoggedOut, nil)
		s.terminate(ctx, conn, nil)
		s.updateGauges()
		return nil
	})
}

// Kick terminates every session bound to account with reason and returns
// how many were ended. Each connection receives Kicked before it is closed.
func (s *Server[ID]) Kick(ctx context.Context, account ID, reason KickReason) (int, error) {
	ctx, span := tracer.Start(ctx, "protocol.kick",
		trace.WithAttributes(
			attribute.String("account.id", fmt.Sprint(account)),
			attribute.String("kick.kind", string(reason.Kind)),
		),
	)
	defer span.End()

	var kicked int
	err := s.gate.Do(ctx, func(ctx context.Context) error {
		kicked = s.kickAccount(ctx, account, reason)
		s.updateGauges()
		return nil
	})
	span.SetAttributes(attribute.Int("kick.sessions", kicked))
	//nolint:wrapcheck // gate errors are already coded
	return kicked, err
}

// kickAccount runs inside the gate. It iterates a snapshot because each
// termination mutates the account index.
func (s *Server[ID]) kickAccount(ctx context.Context, account ID, reason KickReason) int {
	sessions := s.store.ForAccount(account)
	for _, sess := range sessions {
		s.sendKicked(ctx, sess.Conn(), reason)
		s.terminate(ctx, sess.Conn(), &reason)
	}
	return len(sessions)
}

// terminate runs inside the gate. Once started it always removes the
// session and closes the connection, whatever the hooks do.
func (s *Server[ID]) terminate(ctx context.Context, conn transport.ConnID, reason *KickReason) {
	if err := s.runTerminating(ctx, conn, reason); err != nil {
		s.reportError(ctx, conn, StageTermination, err)
	}

	if s.store.Remove(conn) {
		RecordTermination(reasonLabel(reason))
	}
	s.close(ctx, conn)

	attrs := []any{"conn_id", conn, "reason", reasonLabel(reason)}
	if reason != nil && reason.Cause != nil {
		attrs = append(attrs, "cause", reason.Cause.Error())
	}
	s.logger.InfoContext(ctx, "session ended", attrs...)
}
