// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package redis stores accounts in Redis. Each account is a hash under
// <prefix>:acct:<id>; <prefix>:name:<username> maps the lower-cased
// username to the id.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/sessiongate/internal/auth"
)

// DefaultPrefix namespaces every key the repository writes.
const DefaultPrefix = "sessiongate"

const maxTxRetries = 4

// AccountRepository implements auth.Repository on Redis.
type AccountRepository struct {
	client goredis.UniversalClient
	prefix string
}

var _ auth.Repository = (*AccountRepository)(nil)

// NewAccountRepository creates a repository. An empty prefix means
// DefaultPrefix.
func NewAccountRepository(client goredis.UniversalClient, prefix string) *AccountRepository {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &AccountRepository{client: client, prefix: prefix}
}

func (r *AccountRepository) accountKey(id ulid.ULID) string {
	return r.prefix + ":acct:" + id.String()
}

func (r *AccountRepository) nameKey(username string) string {
	return r.prefix + ":name:" + auth.NormalizeUsername(username)
}

// Create stores a new account and claims its username atomically.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	fields, err := encodeAccount(account)
	if err != nil {
		return oops.Code("ACCOUNT_CREATE_FAILED").With("operation", "encode account").Wrap(err)
	}
	nameKey := r.nameKey(account.Username)
	acctKey := r.accountKey(account.ID)

	err = r.transact(ctx, func(tx *goredis.Tx) error {
		n, err := tx.Exists(ctx, nameKey, acctKey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return auth.ErrUsernameTaken
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, nameKey, account.ID.String(), 0)
			pipe.HSet(ctx, acctKey, fields)
			return nil
		})
		return err
	}, nameKey, acctKey)

	switch {
	case errors.Is(err, auth.ErrUsernameTaken):
		return oops.Code("USERNAME_TAKEN").With("username", account.Username).Wrap(err)
	case err != nil:
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "store account").
			With("username", account.Username).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	fields, err := r.client.HGetAll(ctx, r.accountKey(id)).Result()
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").
			With("operation", "get account by id").
			With("id", id.String()).
			Wrap(err)
	}
	if len(fields) == 0 {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	account, err := decodeAccount(id, fields)
	if err != nil {
		return nil, oops.Code("ACCOUNT_CORRUPT").With("id", id.String()).Wrap(err)
	}
	return account, nil
}

// GetByUsername retrieves an account by username (case-insensitive).
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*auth.Account, error) {
	raw, err := r.client.Get(ctx, r.nameKey(username)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("username", username).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").
			With("operation", "get account by username").
			With("username", username).
			Wrap(err)
	}
	id, err := ulid.Parse(raw)
	if err != nil {
		return nil, oops.Code("ACCOUNT_CORRUPT").With("username", username).Wrap(err)
	}
	return r.GetByID(ctx, id)
}

// Update stores the password hash, roles and lockout state of an existing
// account.
func (r *AccountRepository) Update(ctx context.Context, account *auth.Account) error {
	fields, err := encodeAccount(account)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").With("operation", "encode account").Wrap(err)
	}
	delete(fields, "username")
	delete(fields, "created_at")
	acctKey := r.accountKey(account.ID)

	err = r.transact(ctx, func(tx *goredis.Tx) error {
		n, err := tx.Exists(ctx, acctKey).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return auth.ErrNotFound
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, acctKey, fields)
			if account.LockedUntil == nil {
				pipe.HDel(ctx, acctKey, "locked_until")
			}
			return nil
		})
		return err
	}, acctKey)

	switch {
	case errors.Is(err, auth.ErrNotFound):
		return oops.Code("ACCOUNT_NOT_FOUND").With("id", account.ID.String()).Wrap(err)
	case err != nil:
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "update account").
			With("id", account.ID.String()).
			Wrap(err)
	}
	return nil
}

// transact runs fn under WATCH on keys, retrying when another client
// touched them first.
func (r *AccountRepository) transact(ctx context.Context, fn func(tx *goredis.Tx) error, keys ...string) error {
	var err error
	for range maxTxRetries {
		err = r.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, goredis.TxFailedErr) {
			return err //nolint:wrapcheck // callers wrap
		}
	}
	return err //nolint:wrapcheck // callers wrap
}

func encodeAccount(a *auth.Account) (map[string]any, error) {
	roles, err := json.Marshal(a.Roles)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap
	}
	fields := map[string]any{
		"username":        a.Username,
		"password_hash":   a.PasswordHash,
		"roles":           string(roles),
		"failed_attempts": strconv.Itoa(a.FailedAttempts),
		"created_at":      a.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":      a.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if a.LockedUntil != nil {
		fields["locked_until"] = a.LockedUntil.UTC().Format(time.RFC3339Nano)
	}
	return fields, nil
}

func decodeAccount(id ulid.ULID, fields map[string]string) (*auth.Account, error) {
	account := &auth.Account{
		ID:           id,
		Username:     fields["username"],
		PasswordHash: fields["password_hash"],
	}
	var err error
	if raw := fields["roles"]; raw != "" && raw != "null" {
		if err = json.Unmarshal([]byte(raw), &account.Roles); err != nil {
			return nil, err //nolint:wrapcheck // callers wrap
		}
	}
	if raw := fields["failed_attempts"]; raw != "" {
		if account.FailedAttempts, err = strconv.Atoi(raw); err != nil {
			return nil, err //nolint:wrapcheck // callers wrap
		}
	}
	if raw := fields["locked_until"]; raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, err //nolint:wrapcheck // callers wrap
		}
		account.LockedUntil = &t
	}
	if account.CreatedAt, err = time.Parse(time.RFC3339Nano, fields["created_at"]); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap
	}
	if account.UpdatedAt, err = time.Parse(time.RFC3339Nano, fields["updated_at"]); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap
	}
	return account, nil
}
