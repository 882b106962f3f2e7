// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested account does not exist.
var ErrNotFound = errors.New("not found")

// ErrUsernameTaken is returned when creating an account whose username is
// already in use, compared case-insensitively.
var ErrUsernameTaken = errors.New("username taken")
