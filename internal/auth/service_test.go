// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/holomush/sessiongate/internal/auth"
	"github.com/holomush/sessiongate/internal/auth/mocks"
	"github.com/holomush/sessiongate/internal/protocol"
	"github.com/holomush/sessiongate/internal/session"
	"github.com/holomush/sessiongate/internal/transport"
	"github.com/holomush/sessiongate/pkg/errutil"
)

func cheapHasher() *auth.Argon2idHasher {
	return auth.NewArgon2idHasherWithParams(auth.Argon2Params{Time: 1, Memory: 1024, Threads: 1})
}

func newService(t *testing.T, repo auth.Repository) *auth.Service {
	t.Helper()
	svc, err := auth.NewService(repo, cheapHasher(), nil)
	require.NoError(t, err)
	return svc
}

func seedAccount(t *testing.T, repo auth.Repository, username, password string, roles ...string) *auth.Account {
	t.Helper()
	hash, err := cheapHasher().Hash(password)
	require.NoError(t, err)
	account, err := auth.NewAccount(username, hash, roles)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), account))
	return account
}

func TestNewService_NilDependencies(t *testing.T) {
	_, err := auth.NewService(nil, cheapHasher(), nil)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")

	_, err = auth.NewService(auth.NewMemoryRepository(), nil, nil)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestService_Login(t *testing.T) {
	ctx := context.Background()
	repo := auth.NewMemoryRepository()
	svc := newService(t, repo)
	alice := seedAccount(t, repo, "alice", "wonderland")

	t.Run("accepts valid credentials case-insensitively", func(t *testing.T) {
		result, err := svc.Login(ctx, 1, auth.Credentials{Username: "ALICE", Password: "wonderland"})
		require.NoError(t, err)
		assert.Equal(t, protocol.Accepted[ulid.ULID]{Payload: alice.Preview(), AccountID: alice.ID}, result)
	})

	t.Run("unknown user and wrong password look the same", func(t *testing.T) {
		unknown, err := svc.Login(ctx, 1, auth.Credentials{Username: "mallory", Password: "wonderland"})
		require.NoError(t, err)
		wrong, err := svc.Login(ctx, 1, auth.Credentials{Username: "alice", Password: "nope"})
		require.NoError(t, err)

		want := protocol.Rejected{Payload: auth.Failure{Reason: auth.ReasonInvalidCredentials}}
		assert.Equal(t, want, unknown)
		assert.Equal(t, want, wrong)

		stored, err := repo.GetByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, stored.FailedAttempts)
	})

	t.Run("success resets failures", func(t *testing.T) {
		_, err := svc.Login(ctx, 1, auth.Credentials{Username: "alice", Password: "wonderland"})
		require.NoError(t, err)
		stored, err := repo.GetByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Zero(t, stored.FailedAttempts)
	})

	t.Run("locks after repeated failures", func(t *testing.T) {
		for range auth.LockoutThreshold {
			_, err := svc.Login(ctx, 1, auth.Credentials{Username: "alice", Password: "nope"})
			require.NoError(t, err)
		}
		result, err := svc.Login(ctx, 1, auth.Credentials{Username: "alice", Password: "wonderland"})
		require.NoError(t, err)
		assert.Equal(t, protocol.Rejected{Payload: auth.Failure{Reason: auth.ReasonLocked}}, result)
	})
}

func TestService_Login_RehashesOutdatedHash(t *testing.T) {
	ctx := context.Background()
	repo := auth.NewMemoryRepository()
	old := auth.NewArgon2idHasherWithParams(auth.Argon2Params{Time: 2, Memory: 1024, Threads: 1})
	hash, err := old.Hash("wonderland")
	require.NoError(t, err)
	account, err := auth.NewAccount("alice", hash, nil)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, account))

	svc := newService(t, repo)
	_, err = svc.Login(ctx, 1, auth.Credentials{Username: "alice", Password: "wonderland"})
	require.NoError(t, err)

	stored, err := repo.GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.NotEqual(t, hash, stored.PasswordHash)
	assert.False(t, cheapHasher().NeedsUpgrade(stored.PasswordHash))
}

func TestService_Login_RepositoryFailures(t *testing.T) {
	ctx := context.Background()
	errDB := errors.New("connection refused")

	t.Run("lookup failure is an error", func(t *testing.T) {
		repo := mocks.NewMockRepository(t)
		repo.EXPECT().GetByUsername(mock.Anything, "alice").Return(nil, errDB)

		_, err := newService(t, repo).Login(ctx, 1, auth.Credentials{Username: "alice", Password: "x"})
		require.ErrorIs(t, err, errDB)
		errutil.AssertErrorCode(t, err, "AUTH_LOGIN_FAILED")
	})

	t.Run("bookkeeping failure does not block login", func(t *testing.T) {
		hash, err := cheapHasher().Hash("wonderland")
		require.NoError(t, err)
		account, err := auth.NewAccount("alice", hash, nil)
		require.NoError(t, err)

		repo := mocks.NewMockRepository(t)
		repo.EXPECT().GetByUsername(mock.Anything, "alice").Return(account, nil)
		repo.EXPECT().Update(mock.Anything, account).Return(errDB)

		result, err := newService(t, repo).Login(ctx, 1, auth.Credentials{Username: "alice", Password: "wonderland"})
		require.NoError(t, err)
		assert.IsType(t, protocol.Accepted[ulid.ULID]{}, result)
	})
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()
	repo := auth.NewMemoryRepository()
	svc := newService(t, repo)

	result, err := svc.Register(ctx, 1, auth.Credentials{Username: "carol", Password: "long-enough"})
	require.NoError(t, err)
	registered, ok := result.(protocol.Registered)
	require.True(t, ok)
	preview, ok := registered.Payload.(auth.Preview)
	require.True(t, ok)
	assert.Equal(t, "carol", preview.Username)

	stored, err := repo.GetByUsername(ctx, "carol")
	require.NoError(t, err)
	assert.NotEqual(t, "long-enough", stored.PasswordHash)

	tests := []struct {
		name   string
		creds  auth.Credentials
		reason string
	}{
		{"taken", auth.Credentials{Username: "Carol", Password: "long-enough"}, auth.ReasonUsernameTaken},
		{"bad username", auth.Credentials{Username: "9lives", Password: "long-enough"}, "username must start with a letter"},
		{"short password", auth.Credentials{Username: "dave", Password: "short"}, "password must be at least"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := svc.Register(ctx, 1, tt.creds)
			require.NoError(t, err)
			rejected, ok := result.(protocol.RegisterRejected)
			require.True(t, ok)
			failure, ok := rejected.Payload.(auth.Failure)
			require.True(t, ok)
			assert.Contains(t, failure.Reason, tt.reason)
		})
	}
}

func TestService_Register_StorageFailure(t *testing.T) {
	repo := mocks.NewMockRepository(t)
	repo.EXPECT().Create(mock.Anything, mock.Anything).Return(errors.New("disk full"))

	_, err := newService(t, repo).Register(context.Background(), 1, auth.Credentials{Username: "carol", Password: "long-enough"})
	errutil.AssertErrorCode(t, err, "AUTH_REGISTER_FAILED")
}

func TestService_FindAccount(t *testing.T) {
	ctx := context.Background()
	repo := auth.NewMemoryRepository()
	svc := newService(t, repo)
	alice := seedAccount(t, repo, "alice", "wonderland")

	got, err := svc.FindAccount(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.AccountID())

	missing, err := svc.FindAccount(ctx, ulid.Make())
	require.NoError(t, err)
	assert.Nil(t, missing, "a missing account is a nil interface, not a typed nil")

	failing := mocks.NewMockRepository(t)
	failing.EXPECT().GetByID(mock.Anything, alice.ID).Return(nil, errors.New("timeout"))
	_, err = newService(t, failing).FindAccount(ctx, alice.ID)
	errutil.AssertErrorCode(t, err, "AUTH_LOOKUP_FAILED")
}

type sentMessage struct {
	conn transport.ConnID
	name string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (r *recordingSender) Send(conn transport.ConnID, name string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentMessage{conn: conn, name: name})
	return nil
}

func (r *recordingSender) Close(transport.ConnID) error { return nil }

func (r *recordingSender) names(conn transport.ConnID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var names []string
	for _, m := range r.sent {
		if m.conn == conn {
			names = append(names, m.name)
		}
	}
	return names
}

func TestService_MountedOnServer(t *testing.T) {
	ctx := context.Background()
	repo := auth.NewMemoryRepository()
	svc := newService(t, repo)
	seedAccount(t, repo, "admin", "administrator", "admin")

	sender := &recordingSender{}
	var srv *protocol.Server[ulid.ULID]
	var err error
	srv, err = protocol.NewServer(protocol.Config[ulid.ULID]{
		Transport:    sender,
		Accounts:     svc,
		LoginTimeout: time.Minute,
		Hooks: protocol.Hooks[ulid.ULID]{
			Starting: []protocol.StartingHook[ulid.ULID]{
				func(ctx context.Context, conn transport.ConnID, account protocol.Account[ulid.ULID]) error {
					return svc.StartingHook(srv.Sessions())(ctx, conn, account)
				},
			},
		},
	})
	require.NoError(t, err)
	router := transport.NewRouter()
	require.NoError(t, srv.Mount(router))
	require.NoError(t, svc.Mount(srv, router))
	assert.ElementsMatch(t, []string{protocol.MsgLogout, "Login:Sample", "Register:Sample"}, router.Names())

	srv.Connected(ctx, 1)
	require.NoError(t, router.Dispatch(ctx, 1, "Register:Sample",
		transport.MustJSON(auth.Credentials{Username: "newbie", Password: "password1"})))
	require.NoError(t, router.Dispatch(ctx, 1, "Login:Sample",
		transport.MustJSON(auth.Credentials{Username: "admin", Password: "administrator"})))

	assert.Equal(t, []string{protocol.MsgWelcome, protocol.MsgRegisterOK, protocol.MsgOK}, sender.names(1))

	roles, err := session.Get(srv.Sessions(), 1, auth.RolesKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, roles)

	require.NoError(t, session.Set(srv.Sessions(), 1, session.NewKey[string]("scratch"), "x"))
	require.NoError(t, srv.Sessions().ClearUserData(1, true))
	roles, err = session.Get(srv.Sessions(), 1, auth.RolesKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, roles, "system data survives a user-data clear")
}
