// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/holomush/sessiongate/internal/auth"
	authpg "github.com/holomush/sessiongate/internal/auth/postgres"
	authredis "github.com/holomush/sessiongate/internal/auth/redis"
	"github.com/holomush/sessiongate/internal/config"
	"github.com/holomush/sessiongate/internal/store"
)

// accountStore is an opened account repository plus whatever must be
// released when the server stops.
type accountStore struct {
	repo  auth.Repository
	close func()
}

// openAccounts opens the repository selected by cfg.AccountStore.
func openAccounts(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*accountStore, error) {
	switch cfg.AccountStore {
	case config.StorePostgres:
		return openPostgres(ctx, cfg, logger)
	case config.StoreRedis:
		return openRedis(ctx, cfg, logger)
	default:
		return &accountStore{repo: auth.NewMemoryRepository(), close: func() {}}, nil
	}
}

func openPostgres(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*accountStore, error) {
	if cfg.AutoMigrate {
		if err := migrateUp(cfg.DatabaseURL, logger); err != nil {
			return nil, err
		}
	}

	opts := store.DefaultConnectOptions
	opts.Logger = logger
	pool, err := store.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to database")
	return &accountStore{repo: authpg.NewAccountRepository(pool), close: pool.Close}, nil
}

func migrateUp(databaseURL string, logger *slog.Logger) error {
	migrator, err := store.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return err
	}
	version, _, err := migrator.Version()
	if err != nil {
		return err
	}
	logger.Info("database schema up to date", "version", version)
	return nil
}

func openRedis(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*accountStore, error) {
	client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})

	opts := store.DefaultConnectOptions
	backoff := retry.WithCappedDuration(opts.MaxDelay, retry.NewExponential(opts.BaseDelay))
	backoff = retry.WithMaxRetries(opts.MaxRetries, backoff)

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis not reachable, retrying", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = client.Close()
		return nil, oops.In("redis").Code("REDIS_CONNECT_FAILED").
			With("addr", cfg.RedisAddr).
			With("attempts", attempt).
			Wrap(err)
	}
	logger.Info("connected to redis", "addr", cfg.RedisAddr)

	return &accountStore{
		repo: authredis.NewAccountRepository(client, cfg.RedisPrefix),
		close: func() {
			if err := client.Close(); err != nil {
				logger.Warn("failed to close redis client", "error", err)
			}
		},
	}, nil
}
