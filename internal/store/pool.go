// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ConnectOptions tunes how hard Connect tries before giving up.
type ConnectOptions struct {
	MaxRetries uint64
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Logger     *slog.Logger
}

// DefaultConnectOptions suit a database that starts alongside the server.
var DefaultConnectOptions = ConnectOptions{
	MaxRetries: 5,
	BaseDelay:  250 * time.Millisecond,
	MaxDelay:   5 * time.Second,
}

// pinger is the part of a pool Connect checks before handing it out.
type pinger interface {
	Ping(ctx context.Context) error
	Close()
}

// newPool is replaced in tests.
var newPool = func(ctx context.Context, dsn string) (pinger, error) {
	return pgxpool.New(ctx, dsn)
}

// Connect opens a pool for dsn and pings it, retrying with exponential
// backoff while the database is unreachable. A malformed dsn fails at once.
func Connect(ctx context.Context, dsn string, opts ConnectOptions) (*pgxpool.Pool, error) {
	p, err := connect(ctx, dsn, opts)
	if err != nil {
		return nil, err
	}
	pool, ok := p.(*pgxpool.Pool)
	if !ok {
		p.Close()
		return nil, oops.In("store").Code("DB_CONNECT_FAILED").Errorf("unexpected pool type %T", p)
	}
	return pool, nil
}

func connect(ctx context.Context, dsn string, opts ConnectOptions) (pinger, error) {
	if dsn == "" {
		return nil, oops.In("store").Code("CONFIG_INVALID").Errorf("database url is required")
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultConnectOptions.BaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultConnectOptions.MaxDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := newPool(ctx, dsn)
	if err != nil {
		return nil, oops.In("store").Code("DB_CONFIG_INVALID").Wrap(err)
	}

	backoff := retry.WithCappedDuration(opts.MaxDelay, retry.NewExponential(opts.BaseDelay))
	backoff = retry.WithMaxRetries(opts.MaxRetries, backoff)

	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if pingErr := pool.Ping(ctx); pingErr != nil {
			logger.WarnContext(ctx, "database not reachable", "attempt", attempt, "error", pingErr)
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.In("store").Code("DB_CONNECT_FAILED").With("attempts", attempt).Wrap(err)
	}
	return pool, nil
}
