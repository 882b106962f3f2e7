// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil

import "github.com/samber/oops"

// Safely runs fn and returns its error. A panic inside fn is converted into
// an oops error carrying code, so callers can treat it like any other failure.
func Safely(code string, fn func() error) error {
	var err error
	if panicErr := oops.Code(code).With("panic", true).Recover(func() {
		err = fn()
	}); panicErr != nil {
		return panicErr
	}
	return err
}
