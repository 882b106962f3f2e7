// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package protocol

import (
	"strings"

	"github.com/samber/oops"
)

// DuplicatePolicy decides what happens when an account that already has a
// session logs in again.
type DuplicatePolicy int

// Duplicate-account policies.
const (
	// PolicyReject refuses the new login with AccountAlreadyInUse.
	PolicyReject DuplicatePolicy = iota
	// PolicyGhost kicks every existing session before the new one starts.
	PolicyGhost
	// PolicyAllowAll lets sessions for the same account coexist.
	PolicyAllowAll
)

// String returns the configuration spelling of the policy.
func (p DuplicatePolicy) String() string {
	switch p {
	case PolicyReject:
		return "reject"
	case PolicyGhost:
		return "ghost"
	case PolicyAllowAll:
		return "allow-all"
	default:
		return "unknown"
	}
}

// ParsePolicy parses "reject", "ghost" or "allow-all" (case-insensitive).
func ParsePolicy(s string) (DuplicatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "reject":
		return PolicyReject, nil
	case "ghost":
		return PolicyGhost, nil
	case "allow-all", "allowall", "allow_all":
		return PolicyAllowAll, nil
	default:
		return 0, oops.In("protocol").Code("INVALID_POLICY").
			With("policy", s).
			Errorf("unknown duplicate policy %q", s)
	}
}

// Resolution is the resolver's verdict for one login.
type Resolution int

// Resolutions.
const (
	// Proceed creates the session with no further action.
	Proceed Resolution = iota
	// RejectNew refuses the incoming login.
	RejectNew
	// GhostExisting kicks the account's current sessions first.
	GhostExisting
)

// Resolve maps a policy and the number of sessions the account already has
// to a resolution.
func Resolve(policy DuplicatePolicy, existing int) Resolution {
	if existing == 0 {
		return Proceed
	}
	switch policy {
	case PolicyReject:
		return RejectNew
	case PolicyGhost:
		return GhostExisting
	default:
		return Proceed
	}
}
