// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package protocol

import "fmt"

// KickKind classifies why a session ended without a client logout.
type KickKind string

// Kick kinds. KickNonGracefulDisconnection is never sent to a client.
const (
	KickGhosted                    KickKind = "ghosted"
	KickAccountLoadError           KickKind = "account_load_error"
	KickSessionInitializationError KickKind = "session_initialization_error"
	KickNonGracefulDisconnection   KickKind = "non_graceful_disconnection"
	KickCustom                     KickKind = "custom"
)

// KickReason is the payload of Kicked and the reason handed to terminating
// hooks. A nil *KickReason means a client-initiated logout.
type KickReason struct {
	Kind    KickKind `json:"kind"`
	Message string   `json:"message,omitempty"`
	// Cause is the transport error behind a non-graceful disconnection.
	Cause error `json:"-"`
}

// Ghosted is the reason given to sessions replaced by a newer login.
func Ghosted() KickReason {
	return KickReason{Kind: KickGhosted, Message: "logged in from another connection"}
}

// AccountLoadError is sent when the account could not be loaded after login.
func AccountLoadError() KickReason {
	return KickReason{Kind: KickAccountLoadError, Message: "account could not be loaded"}
}

// SessionInitializationError is sent when a session-starting hook failed.
func SessionInitializationError() KickReason {
	return KickReason{Kind: KickSessionInitializationError, Message: "session could not be initialized"}
}

// NonGracefulDisconnection wraps the transport's cause for hooks.
func NonGracefulDisconnection(cause error) KickReason {
	return KickReason{Kind: KickNonGracefulDisconnection, Cause: cause}
}

// Custom builds an application-supplied reason.
func Custom(message string) KickReason {
	return KickReason{Kind: KickCustom, Message: message}
}

// Transmittable reports whether the reason may be sent to a client.
func (r KickReason) Transmittable() bool {
	return r.Kind != KickNonGracefulDisconnection
}

// String renders the reason for logs.
func (r KickReason) String() string {
	switch {
	case r.Cause != nil && r.Message != "":
		return fmt.Sprintf("%s: %s: %v", r.Kind, r.Message, r.Cause)
	case r.Cause != nil:
		return fmt.Sprintf("%s: %v", r.Kind, r.Cause)
	case r.Message != "":
		return fmt.Sprintf("%s: %s", r.Kind, r.Message)
	default:
		return string(r.Kind)
	}
}

func reasonLabel(r *KickReason) string {
	if r == nil {
		return "logout"
	}
	return string(r.Kind)
}
