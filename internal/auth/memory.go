// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"slices"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MemoryRepository is a process-local Repository.
type MemoryRepository struct {
	mu         sync.RWMutex
	byID       map[ulid.ULID]*Account
	byUsername map[string]ulid.ULID
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:       make(map[ulid.ULID]*Account),
		byUsername: make(map[string]ulid.ULID),
	}
}

// Create stores a copy of account.
func (r *MemoryRepository) Create(_ context.Context, account *Account) error {
	key := NormalizeUsername(account.Username)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byUsername[key]; taken {
		return oops.In("auth").Code("USERNAME_TAKEN").With("username", account.Username).Wrap(ErrUsernameTaken)
	}
	if _, exists := r.byID[account.ID]; exists {
		return oops.In("auth").Code("ACCOUNT_EXISTS").With("id", account.ID.String()).Errorf("account id already stored")
	}
	r.byID[account.ID] = cloneAccount(account)
	r.byUsername[key] = account.ID
	return nil
}

// GetByID returns a copy of the stored account.
func (r *MemoryRepository) GetByID(_ context.Context, id ulid.ULID) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byID[id]
	if !ok {
		return nil, oops.In("auth").Code("ACCOUNT_NOT_FOUND").With("id", id.String()).Wrap(ErrNotFound)
	}
	return cloneAccount(a), nil
}

// GetByUsername returns a copy of the stored account.
func (r *MemoryRepository) GetByUsername(_ context.Context, username string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUsername[NormalizeUsername(username)]
	if !ok {
		return nil, oops.In("auth").Code("ACCOUNT_NOT_FOUND").With("username", username).Wrap(ErrNotFound)
	}
	return cloneAccount(r.byID[id]), nil
}

// Update replaces the stored account. Usernames are immutable.
func (r *MemoryRepository) Update(_ context.Context, account *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[account.ID]; !ok {
		return oops.In("auth").Code("ACCOUNT_NOT_FOUND").With("id", account.ID.String()).Wrap(ErrNotFound)
	}
	r.byID[account.ID] = cloneAccount(account)
	return nil
}

// Len returns the number of stored accounts.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func cloneAccount(a *Account) *Account {
	c := *a
	c.Roles = slices.Clone(a.Roles)
	if a.LockedUntil != nil {
		t := *a.LockedUntil
		c.LockedUntil = &t
	}
	return &c
}
