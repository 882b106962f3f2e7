// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package protocol

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/sessiongate/internal/pending"
	"github.com/holomush/sessiongate/internal/session"
	"github.com/holomush/sessiongate/internal/transport"
	"github.com/holomush/sessiongate/pkg/errutil"
)

var tracer = otel.Tracer("sessiongate/protocol")

// Defaults applied by NewServer.
const (
	DefaultLoginTimeout = 60 * time.Second
	DefaultTickInterval = time.Second
)

// TimeoutFunc is called, inside the gate, after Timeout was sent to a
// connection whose pending login expired.
type TimeoutFunc func(ctx context.Context, conn transport.ConnID)

// Config configures a Server.
type Config[ID comparable] struct {
	// Transport sends and closes connections. Required.
	Transport transport.Sender
	// Accounts loads account records after a login is accepted. Required.
	Accounts AccountFinder[ID]
	// Policy handles logins for accounts that already have a session.
	Policy DuplicatePolicy
	// LoginTimeout is how long a connection may stay pending before it is
	// sent Timeout. Zero uses DefaultLoginTimeout; negative disables it.
	LoginTimeout time.Duration
	// TickInterval is how often Run advances pending timers.
	TickInterval time.Duration
	// OnTimeout optionally acts on expired pending logins, e.g. closing them.
	OnTimeout TimeoutFunc
	Hooks     Hooks[ID]
	Logger    *slog.Logger
}

// Validate checks required fields.
func (c Config[ID]) Validate() error {
	if c.Transport == nil {
		return oops.In("protocol").Code("CONFIG_INVALID").Errorf("transport is required")
	}
	if c.Accounts == nil {
		return oops.In("protocol").Code("CONFIG_INVALID").Errorf("account finder is required")
	}
	if c.Policy < PolicyReject || c.Policy > PolicyAllowAll {
		return oops.In("protocol").Code("CONFIG_INVALID").With("policy", int(c.Policy)).Errorf("unknown duplicate policy")
	}
	if c.TickInterval < 0 {
		return oops.In("protocol").Code("CONFIG_INVALID").Errorf("tick interval cannot be negative")
	}
	return nil
}

// Server runs the session protocol for one transport.
type Server[ID comparable] struct {
	sender        transport.Sender
	accounts      AccountFinder[ID]
	policy        DuplicatePolicy
	hooks         Hooks[ID]
	onTimeout     TimeoutFunc
	tickInterval  time.Duration
	logger        *slog.Logger
	gate          *Gate
	store         *session.Store[ID]
	logins        *pending.Tracker
	registrations *pending.Tracker
}

var _ transport.Lifecycle = (*Server[string])(nil)

// NewServer creates a Server from cfg.
func NewServer[ID comparable](cfg Config[ID]) (*Server[ID], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := cfg.LoginTimeout
	if timeout == 0 {
		timeout = DefaultLoginTimeout
	}
	tick := cfg.TickInterval
	if tick == 0 {
		tick = DefaultTickInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Server[ID]{
		sender:        cfg.Transport,
		accounts:      cfg.Accounts,
		policy:        cfg.Policy,
		hooks:         cfg.Hooks,
		onTimeout:     cfg.OnTimeout,
		tickInterval:  tick,
		logger:        logger,
		gate:          NewGate(),
		store:         session.NewStore[ID](),
		logins:        pending.NewTracker(timeout),
		registrations: pending.NewTracker(0),
	}, nil
}

// Sessions exposes the session store for reads and session data access.
func (s *Server[ID]) Sessions() *session.Store[ID] {
	return s.store
}

// Pending exposes the pending-login tracker for reads.
func (s *Server[ID]) Pending() *pending.Tracker {
	return s.logins
}

// Policy returns the duplicate-account policy.
func (s *Server[ID]) Policy() DuplicatePolicy {
	return s.policy
}

// Exclusive runs fn under the server's exclusion gate. Use it to make
// read-then-write decisions on sessions from outside the protocol.
func (s *Server[ID]) Exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.gate.Do(ctx, fn)
}

// Mount registers the Logout handler on mux.
func (s *Server[ID]) Mount(mux transport.Mux) error {
	//nolint:wrapcheck // mux errors already carry their own domain
	return mux.Handle(MsgLogout, s.LoginRequired(func(ctx context.Context, conn transport.ConnID, _ transport.Payload) error {
		return s.Logout(ctx, conn)
	}))
}

// Connected marks conn as pending and greets it.
func (s *Server[ID]) Connected(ctx context.Context, conn transport.ConnID) {
	err := s.gate.Do(ctx, func(ctx context.Context) error {
		if s.store.Exists(conn) {
			return oops.In("protocol").Code("SESSION_EXISTS").
				With("conn_id", conn).
				Errorf("new connection already has a session")
		}
		s.logins.Add(conn)
		s.registrations.Add(conn)
		s.updateGauges()
		s.send(ctx, conn, MsgWelcome, nil)
		return nil
	})
	if err != nil {
		errutil.LogErrorContext(ctx, s.logger, "connection setup failed", err, "conn_id", conn)
	}
}

// Disconnected cleans up after a connection the transport lost. A pending
// entry is discarded; a session is terminated with a non-graceful reason.
func (s *Server[ID]) Disconnected(ctx context.Context, conn transport.ConnID, cause error) {
	ctx, span := tracer.Start(ctx, "protocol.disconnect",
		trace.WithAttributes(attribute.String("conn.id", conn.String())),
	)
	defer span.End()

	err := s.gate.Do(ctx, func(ctx context.Context) error {
		s.logins.Remove(conn)
		s.registrations.Remove(conn)
		if s.store.Exists(conn) {
			reason := NonGracefulDisconnection(cause)
			s.terminate(ctx, conn, &reason)
		}
		s.updateGauges()
		return nil
	})
	if err != nil {
		errutil.LogErrorContext(ctx, s.logger, "disconnect cleanup failed", err, "conn_id", conn)
	}
}

// Run advances pending-login timers every tick interval until ctx ends.
func (s *Server[ID]) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s.Tick(ctx, now.Sub(last))
			last = now
		}
	}
}

// Tick advances pending timers by delta and sends Timeout to every
// connection that just reached the login timeout.
// Timers only advance while the gate is held, so a tick that cannot take
// the gate leaves every entry as it was.
func (s *Server[ID]) Tick(ctx context.Context, delta time.Duration) {
	err := s.gate.Do(ctx, func(ctx context.Context) error {
		for _, conn := range s.logins.Tick(delta) {
			s.logger.DebugContext(ctx, "login timed out", "conn_id", conn)
			s.send(ctx, conn, MsgTimeout, nil)
			if s.onTimeout != nil {
				s.onTimeout(ctx, conn)
			}
		}
		return nil
	})
	if err != nil {
		errutil.LogErrorContext(ctx, s.logger, "timeout sweep failed", err)
	}
}

func (s *Server[ID]) send(ctx context.Context, conn transport.ConnID, name string, payload any) {
	if err := s.sender.Send(conn, name, payload); err != nil {
		s.logger.DebugContext(ctx, "send failed",
			"conn_id", conn,
			"message", name,
			"error", err,
		)
	}
}

func (s *Server[ID]) sendKicked(ctx context.Context, conn transport.ConnID, reason KickReason) {
	if !reason.Transmittable() {
		s.logger.WarnContext(ctx, "refusing to send internal kick reason",
			"conn_id", conn,
			"reason", reason.String(),
		)
		return
	}
	s.send(ctx, conn, MsgKicked, reason)
}

func (s *Server[ID]) close(ctx context.Context, conn transport.ConnID) {
	if err := s.sender.Close(conn); err != nil {
		s.logger.DebugContext(ctx, "close failed", "conn_id", conn, "error", err)
	}
}

func (s *Server[ID]) updateGauges() {
	SessionsActive.Set(float64(s.store.Len()))
	PendingLogins.Set(float64(s.logins.Len()))
}
