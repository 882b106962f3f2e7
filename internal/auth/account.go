// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/sessiongate/internal/protocol"
	"github.com/holomush/sessiongate/internal/session"
)

// Username and password constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
	MinPasswordLength = 8
)

// usernameRegex matches usernames that:
// - Start with a letter (a-z, A-Z)
// - Contain only letters, numbers, and underscores
var usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// Account is a login identity.
type Account struct {
	ID             ulid.ULID
	Username       string
	PasswordHash   string
	Roles          []string
	FailedAttempts int
	LockedUntil    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

var _ protocol.Account[ulid.ULID] = (*Account)(nil)

// Preview is the part of an account other sessions may see.
type Preview struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// NewAccount creates an account with a fresh id. passwordHash must already
// be hashed.
func NewAccount(username, passwordHash string, roles []string) (*Account, error) {
	username = strings.TrimSpace(username)
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.In("auth").Code("AUTH_INVALID_ACCOUNT").Errorf("password hash cannot be empty")
	}

	now := time.Now().UTC()
	return &Account{
		ID:           session.NewID(),
		Username:     username,
		PasswordHash: passwordHash,
		Roles:        slices.Clone(roles),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// AccountID implements protocol.Account.
func (a *Account) AccountID() ulid.ULID { return a.ID }

// Preview implements protocol.Account.
func (a *Account) Preview() any {
	return Preview{ID: a.ID.String(), Username: a.Username}
}

// IsLocked returns true if the account is currently locked out.
func (a *Account) IsLocked(now time.Time) bool {
	return IsLockedOut(a.LockedUntil, now)
}

// RecordFailure increments the failure counter and sets lockout if threshold reached.
func (a *Account) RecordFailure(now time.Time) {
	a.FailedAttempts++
	a.LockedUntil = ComputeLockoutTime(a.FailedAttempts, now)
	a.UpdatedAt = now
}

// RecordSuccess resets failure counter and lockout.
func (a *Account) RecordSuccess(now time.Time) {
	a.FailedAttempts = 0
	a.LockedUntil = nil
	a.UpdatedAt = now
}

// HasRole reports whether the account carries role.
func (a *Account) HasRole(role string) bool {
	return slices.Contains(a.Roles, role)
}

// NormalizeUsername is the lookup form of a username.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// ValidateUsername validates a username against rules.
// Username requirements:
// - Length: MinUsernameLength to MaxUsernameLength characters
// - Must start with a letter
// - Can contain only letters (a-z, A-Z), numbers (0-9), and underscores (_)
func ValidateUsername(username string) error {
	if username == "" {
		return oops.In("auth").Code("AUTH_INVALID_USERNAME").Errorf("username cannot be empty")
	}
	if len(username) < MinUsernameLength {
		return oops.In("auth").Code("AUTH_INVALID_USERNAME").
			With("min", MinUsernameLength).
			Errorf("username must be at least %d characters", MinUsernameLength)
	}
	if len(username) > MaxUsernameLength {
		return oops.In("auth").Code("AUTH_INVALID_USERNAME").
			With("max", MaxUsernameLength).
			Errorf("username must be at most %d characters", MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return oops.In("auth").Code("AUTH_INVALID_USERNAME").
			Errorf("username must start with a letter and contain only letters, numbers, and underscores")
	}
	return nil
}

// ValidatePassword checks the plaintext password length.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return oops.In("auth").Code("AUTH_INVALID_PASSWORD").
			With("min", MinPasswordLength).
			Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

// Repository manages account persistence.
type Repository interface {
	// Create stores a new account. Returns ErrUsernameTaken if the
	// username is in use.
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account by ID. Returns ErrNotFound if missing.
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// GetByUsername retrieves an account by username (case-insensitive).
	GetByUsername(ctx context.Context, username string) (*Account, error)

	// Update stores the mutable fields of an existing account.
	Update(ctx context.Context, account *Account) error
}
