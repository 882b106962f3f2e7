// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package throttle

import (
	"context"
	"log/slog"

	"github.com/holomush/sessiongate/internal/protocol"
	"github.com/holomush/sessiongate/internal/transport"
)

// MsgRateLimited answers a message dropped by the limiter.
const MsgRateLimited = "RateLimited"

// RateLimited is the payload of MsgRateLimited.
type RateLimited struct {
	RetryAfterMs int64 `json:"retry_after_ms"`
}

// Dispatcher routes one inbound message. transport.Router implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, conn transport.ConnID, name string, payload transport.Payload) error
}

// Gate rate limits messages before they reach the next dispatcher.
type Gate struct {
	limiter *Limiter
	next    Dispatcher
	sender  transport.Sender
	bypass  protocol.PermissionCheck
	logger  *slog.Logger
}

// NewGate wraps next. bypass may be nil; when it grants, an exhausted
// connection is let through anyway. Bypass errors count as a denial.
func NewGate(limiter *Limiter, next Dispatcher, sender transport.Sender, bypass protocol.PermissionCheck, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Gate{limiter: limiter, next: next, sender: sender, bypass: bypass, logger: logger}
}

// Dispatch forwards the message or answers RateLimited.
func (g *Gate) Dispatch(ctx context.Context, conn transport.ConnID, name string, payload transport.Payload) error {
	allowed, wait := g.limiter.Allow(conn)
	if allowed || g.bypassed(ctx, conn) {
		//nolint:wrapcheck // routed errors carry their own codes
		return g.next.Dispatch(ctx, conn, name, payload)
	}

	throttledTotal.Inc()
	g.logger.DebugContext(ctx, "message rate limited", "conn_id", conn, "message", name, "retry_after", wait)
	if err := g.sender.Send(conn, MsgRateLimited, RateLimited{RetryAfterMs: wait.Milliseconds()}); err != nil {
		g.logger.DebugContext(ctx, "failed to send RateLimited", "conn_id", conn, "error", err)
	}
	return nil
}

func (g *Gate) bypassed(ctx context.Context, conn transport.ConnID) bool {
	if g.bypass == nil {
		return false
	}
	ok, err := g.bypass(ctx, conn)
	return err == nil && ok
}

// ForgetOnDisconnect wraps next so that a connection's bucket is dropped
// when it disconnects.
func ForgetOnDisconnect(next transport.Lifecycle, limiter *Limiter) transport.Lifecycle {
	return forgetting{Lifecycle: next, limiter: limiter}
}

type forgetting struct {
	transport.Lifecycle
	limiter *Limiter
}

func (f forgetting) Disconnected(ctx context.Context, conn transport.ConnID, cause error) {
	f.Lifecycle.Disconnected(ctx, conn, cause)
	f.limiter.Forget(conn)
}
