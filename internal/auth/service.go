// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/sessiongate/internal/protocol"
	"github.com/holomush/sessiongate/internal/session"
	"github.com/holomush/sessiongate/internal/transport"
	"github.com/holomush/sessiongate/pkg/errutil"
)

// SampleMethod is the method name of the username/password login and
// registration.
const SampleMethod = "Sample"

// Failure reasons sent to clients.
const (
	ReasonInvalidCredentials = "invalid username or password"
	ReasonLocked             = "account locked"
	ReasonUsernameTaken      = "username taken"
)

// RolesKey is the system session slot holding the account's roles.
var RolesKey = session.NewSystemKey[[]string]("auth.roles")

// dummyPasswordHash is used when a user doesn't exist to prevent timing attacks.
// We still run password verification to make response time consistent.
// This is NOT a real credential - it's a fake hash that will never match any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Credentials is the payload of Login:Sample and Register:Sample.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Failure is the payload of Failed and Register:Failed.
type Failure struct {
	Reason string `json:"reason"`
}

// Service implements the Sample methods over a Repository.
type Service struct {
	accounts Repository
	hasher   PasswordHasher
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a Service. A nil logger discards output.
func NewService(accounts Repository, hasher PasswordHasher, logger *slog.Logger) (*Service, error) {
	if accounts == nil {
		return nil, oops.In("auth").Code("CONFIG_INVALID").Errorf("account repository is required")
	}
	if hasher == nil {
		return nil, oops.In("auth").Code("CONFIG_INVALID").Errorf("password hasher is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		accounts: accounts,
		hasher:   hasher,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Mount registers Login:Sample and Register:Sample on mux.
func (s *Service) Mount(srv *protocol.Server[ulid.ULID], mux transport.Mux) error {
	if err := protocol.HandleLogin(srv, mux, SampleMethod, s.Login); err != nil {
		return oops.In("auth").Wrap(err)
	}
	if err := protocol.HandleRegister(srv, mux, SampleMethod, s.Register); err != nil {
		return oops.In("auth").Wrap(err)
	}
	return nil
}

// Login checks credentials. Unknown usernames and wrong passwords get the
// same answer and take about the same time.
func (s *Service) Login(ctx context.Context, conn transport.ConnID, msg Credentials) (protocol.LoginResult, error) {
	account, lookupErr := s.accounts.GetByUsername(ctx, msg.Username)

	var targetHash string
	switch {
	case lookupErr == nil:
		targetHash = account.PasswordHash
	case errors.Is(lookupErr, ErrNotFound):
		targetHash = dummyPasswordHash
	default:
		return nil, oops.In("auth").Code("AUTH_LOGIN_FAILED").
			With("operation", "get account by username").
			Wrap(lookupErr)
	}

	valid, verifyErr := s.hasher.Verify(msg.Password, targetHash)
	if account == nil {
		return rejected(ReasonInvalidCredentials), nil
	}
	if verifyErr != nil {
		return nil, oops.In("auth").Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("account_id", account.ID.String()).
			Wrap(verifyErr)
	}

	now := s.now()
	if !valid {
		account.RecordFailure(now)
		s.update(ctx, account)
		s.logger.InfoContext(ctx, "login failed",
			"conn_id", conn,
			"account_id", account.ID.String(),
			"failed_attempts", account.FailedAttempts,
		)
		return rejected(ReasonInvalidCredentials), nil
	}

	// Lockout is checked after verification to keep timing uniform.
	if account.IsLocked(now) {
		return rejected(ReasonLocked), nil
	}

	account.RecordSuccess(now)
	if s.hasher.NeedsUpgrade(account.PasswordHash) {
		if upgraded, err := s.hasher.Hash(msg.Password); err == nil {
			account.PasswordHash = upgraded
		}
	}
	s.update(ctx, account)

	return protocol.Accepted[ulid.ULID]{Payload: account.Preview(), AccountID: account.ID}, nil
}

// Register creates an account. Validation problems and taken usernames are
// answered with Register:Failed; storage errors close the connection.
func (s *Service) Register(ctx context.Context, conn transport.ConnID, msg Credentials) (protocol.RegisterResult, error) {
	if err := ValidateUsername(msg.Username); err != nil {
		return registerRejected(err), nil
	}
	if err := ValidatePassword(msg.Password); err != nil {
		return registerRejected(err), nil
	}

	hash, err := s.hasher.Hash(msg.Password)
	if err != nil {
		return nil, oops.In("auth").Code("AUTH_REGISTER_FAILED").With("operation", "hash password").Wrap(err)
	}
	account, err := NewAccount(msg.Username, hash, nil)
	if err != nil {
		return registerRejected(err), nil
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return protocol.RegisterRejected{Payload: Failure{Reason: ReasonUsernameTaken}}, nil
		}
		return nil, oops.In("auth").Code("AUTH_REGISTER_FAILED").
			With("operation", "create account").
			With("username", account.Username).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "account registered",
		"conn_id", conn,
		"account_id", account.ID.String(),
		"username", account.Username,
	)
	return protocol.Registered{Payload: account.Preview()}, nil
}

// FindAccount implements protocol.AccountFinder.
func (s *Service) FindAccount(ctx context.Context, id ulid.ULID) (protocol.Account[ulid.ULID], error) {
	account, err := s.accounts.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.In("auth").Code("AUTH_LOOKUP_FAILED").With("account_id", id.String()).Wrap(err)
	}
	return account, nil
}

// StartingHook copies the account's roles into RolesKey of store.
func (s *Service) StartingHook(store *session.Store[ulid.ULID]) protocol.StartingHook[ulid.ULID] {
	return func(_ context.Context, conn transport.ConnID, account protocol.Account[ulid.ULID]) error {
		var roles []string
		if a, ok := account.(*Account); ok {
			roles = a.Roles
		}
		return session.Set(store, conn, RolesKey, roles)
	}
}

// update persists login bookkeeping. A failure is logged and otherwise
// ignored; the login outcome does not depend on it.
func (s *Service) update(ctx context.Context, account *Account) {
	if err := s.accounts.Update(ctx, account); err != nil {
		errutil.LogErrorContext(ctx, s.logger, "failed to store login bookkeeping", err,
			"account_id", account.ID.String(),
		)
	}
}

func rejected(reason string) protocol.LoginResult {
	return protocol.Rejected{Payload: Failure{Reason: reason}}
}

func registerRejected(err error) protocol.RegisterResult {
	return protocol.RegisterRejected{Payload: Failure{Reason: err.Error()}}
}
