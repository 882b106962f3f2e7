// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package protocol

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
	"golang.org/x/sync/semaphore"
)

// ErrReentrant is returned when a gated operation is started from inside
// the same gate, typically by a hook calling Kick.
var ErrReentrant = errors.New("exclusion gate is not reentrant")

type gateKey struct{}

// Gate serializes session-mutating operations. It is a single, coarse,
// non-reentrant lock whose acquisition honours context cancellation.
type Gate struct {
	sem *semaphore.Weighted
}

// NewGate creates an unlocked gate.
func NewGate() *Gate {
	return &Gate{sem: semaphore.NewWeighted(1)}
}

// Do runs fn while holding the gate and releases it on every exit path,
// panics included. The context passed to fn marks the gate as held, so a
// nested Do on it fails with ErrReentrant instead of deadlocking.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if g.Held(ctx) {
		return oops.In("protocol").Code("REENTRANT_EXCLUSION").Wrap(ErrReentrant)
	}

	start := time.Now()
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return oops.In("protocol").Code("EXCLUSION_CANCELLED").Wrap(err)
	}
	defer g.sem.Release(1)
	RecordExclusionWait(time.Since(start))

	return fn(context.WithValue(ctx, gateKey{}, g))
}

// Held reports whether ctx was produced by this gate's Do.
func (g *Gate) Held(ctx context.Context) bool {
	held, _ := ctx.Value(gateKey{}).(*Gate)
	return held == g
}
